// Package span defines the Span type — the unit of PHI detection and
// application — and the bounded, clearing object pool that backs it.
//
// A Span moves through a fixed lifecycle (spec.md §4.13):
//
//	CREATED -> ENRICHED -> SCORED -> [DROPPED] or SELECTED -> TOKENIZED -> APPLIED
//
// DROPPED and APPLIED are terminal. Once a span is APPLIED it is immutable
// for the remainder of the request; once a span is released back to the pool
// every PHI-bearing field is zeroed before reuse.
package span

// FilterType enumerates the PHI category a span was detected as.
type FilterType string

// Supported PHI categories (spec.md §3).
const (
	TypeName         FilterType = "NAME"
	TypeSSN          FilterType = "SSN"
	TypePhone        FilterType = "PHONE"
	TypeEmail        FilterType = "EMAIL"
	TypeDate         FilterType = "DATE"
	TypeAge          FilterType = "AGE"
	TypeMRN          FilterType = "MRN"
	TypeAddress      FilterType = "ADDRESS"
	TypeZipcode      FilterType = "ZIPCODE"
	TypeIP           FilterType = "IP"
	TypeURL          FilterType = "URL"
	TypeFax          FilterType = "FAX"
	TypeAccount      FilterType = "ACCOUNT"
	TypeCreditCard   FilterType = "CREDIT_CARD"
	TypeLicense      FilterType = "LICENSE"
	TypePassport     FilterType = "PASSPORT"
	TypeDevice       FilterType = "DEVICE"
	TypeVehicle      FilterType = "VEHICLE"
	TypeBiometric    FilterType = "BIOMETRIC"
	TypeHealthPlan   FilterType = "HEALTH_PLAN"
	TypeNPI          FilterType = "NPI"
	TypeProviderName FilterType = "PROVIDER_NAME"
	TypeCustom       FilterType = "CUSTOM"
)

// State is a span's position in its lifecycle state machine.
type State int

// Lifecycle states, in the order a span normally passes through them.
const (
	StateCreated State = iota
	StateEnriched
	StateScored
	StateDropped
	StateSelected
	StateTokenized
	StateApplied
)

// Window holds tokenized text surrounding a span, populated lazily by the
// Context Window Service (spec.md §4.4).
type Window struct {
	Before []string
	After  []string
}

// Adjustment records one confidence delta applied to a span, retained for
// debugging per the cross-type reasoner's provenance requirement (spec.md §4.6).
type Adjustment struct {
	Rule        string
	Delta       float64
	Description string
}

// Span is one PHI candidate: a character-offset range, typed and scored.
// PHI-sensitive fields are Text, Context, Window and Replacement — these
// MUST be cleared by Release before a Span re-enters the pool.
type Span struct {
	Text string

	CharacterStart int
	CharacterEnd   int

	FilterType FilterType

	Confidence float64
	Priority   int

	Context string
	Window  Window

	Pattern string

	Replacement string

	AmbiguousWith       []FilterType
	DisambiguationScore *float64

	Adjustments []Adjustment

	Applied bool
	Ignored bool

	State State

	// id is an opaque pool-management handle, not exposed to detectors.
	id uint64
}

// Len returns the span's half-open character width.
func (s *Span) Len() int {
	return s.CharacterEnd - s.CharacterStart
}

// Overlaps reports whether s and o occupy any common character offset.
func (s *Span) Overlaps(o *Span) bool {
	return s.CharacterStart < o.CharacterEnd && o.CharacterStart < s.CharacterEnd
}

// clear zeros every PHI-bearing and per-request field, in place, leaving the
// Span ready for Factory.New to re-initialize on the next Acquire.
func (s *Span) clear() {
	id := s.id
	*s = Span{id: id}
	s.CharacterStart = -1
	s.CharacterEnd = -1
}
