// Package whitelist implements the ordered, deterministic structural
// false-positive filters of spec.md §4.3. Each filter is a pure
// (spans, text) -> spans function; filters never invent spans, only drop
// them.
package whitelist

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Filter is one stage of the whitelist chain.
type Filter interface {
	Name() string
	Apply(spans []*span.Span, text string) []*span.Span
}

// Chain runs every filter in spec.md §4.3's fixed order.
type Chain struct {
	filters []Filter
}

// Default builds the six filters in the order spec.md §4.3 mandates.
func Default(vocab Vocabulary) *Chain {
	return &Chain{filters: []Filter{
		patternBypass{},
		personIndicatorGuard{},
		medicalWhitelist{vocab: vocab},
		documentStructure{vocab: vocab},
		allCapsHeading{vocab: vocab},
		streetAddressExemption{},
	}}
}

// Run applies every filter in order, threading the surviving slice through.
func (c *Chain) Run(spans []*span.Span, text string) []*span.Span {
	for _, f := range c.filters {
		spans = f.Apply(spans, text)
	}
	return spans
}

var normalizer = cases.Fold()

func normalize(s string) string {
	return strings.Join(strings.Fields(normalizer.String(s)), " ")
}

// Vocabulary is the combined medical/structural term set the whitelist
// filters consult (spec.md §4.3 items 3-4).
type Vocabulary struct {
	Medications      map[string]bool
	Diseases         map[string]bool
	DiseaseEponyms   map[string]bool
	Procedures       map[string]bool
	Anatomy          map[string]bool
	SectionHeaders   map[string]bool
	OrganizationTerms map[string]bool
	InsuranceCarriers map[string]bool
	HospitalNames    map[string]bool

	FieldLabels      map[string]bool // e.g. "PATIENT", "ADDRESS"
	StructurePhrases map[string]bool // e.g. "safe harbor", "geographic data"
	HeadingVocabulary map[string]bool // e.g. "INFORMATION", "SECTION", "HARBOR"
}

// DefaultVocabulary is a minimal but representative seed set. The engine
// builds its whitelist chain and confidence stages from this set; nothing in
// this repository loads a different vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Medications:      setOf("aspirin", "metformin", "lisinopril", "atorvastatin", "albuterol", "insulin", "warfarin", "amoxicillin"),
		Diseases:         setOf("diabetes", "hypertension", "pneumonia", "asthma", "copd", "sepsis", "influenza"),
		DiseaseEponyms:   setOf("parkinson", "alzheimer", "crohn", "hodgkin", "addison"),
		Procedures:       setOf("biopsy", "angioplasty", "colonoscopy", "appendectomy", "mri", "ct scan", "x-ray"),
		Anatomy:          setOf("femur", "thorax", "abdomen", "ventricle", "cerebellum", "pancreas"),
		SectionHeaders:   setOf("clinical impression", "assessment", "history of present illness", "discharge summary", "findings", "impression"),
		OrganizationTerms: setOf("hospital", "clinic", "medical center", "health system", "department"),
		InsuranceCarriers: setOf("blue cross", "aetna", "cigna", "unitedhealthcare", "medicare", "medicaid"),
		HospitalNames:    setOf("general hospital", "memorial hospital", "university medical center"),

		FieldLabels: setOf("patient", "address", "mrn", "dob", "phone", "ssn", "email", "file #", "zip", "zipcode"),
		StructurePhrases: setOf("safe harbor", "geographic data", "biometric identifiers", "protected health information",
			"social security", "medical record"),
		HeadingVocabulary: setOf("information", "section", "assessment", "harbor", "biometric", "impression", "clinical", "history", "findings", "summary", "discharge"),
	}
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[normalize(w)] = true
	}
	return m
}

// pattern-matched-type bypass (spec.md §4.3 item 1): these types are never
// whitelist-dropped — their regex validation is authoritative.
var neverWhitelisted = map[span.FilterType]bool{
	span.TypeSSN: true, span.TypeEmail: true, span.TypePhone: true, span.TypeFax: true,
	span.TypeMRN: true, span.TypeIP: true, span.TypeURL: true, span.TypeAccount: true,
	span.TypeCreditCard: true, span.TypeLicense: true, span.TypeHealthPlan: true,
	span.TypeDevice: true, span.TypeBiometric: true,
}

type patternBypass struct{}

func (patternBypass) Name() string { return "pattern-matched-type-bypass" }
func (patternBypass) Apply(spans []*span.Span, _ string) []*span.Span {
	// A no-op filter by construction: it exists as a named stage so the
	// remaining filters can skip never-whitelisted types explicitly, and so
	// the chain's stage count/order matches the specification.
	return spans
}

var personTitlePrefix = regexp.MustCompile(`^(?:Dr|Mr|Mrs|Ms|Prof)\.\s`)
var personSuffixSuffix = regexp.MustCompile(`\s(?:Jr|Sr|II|III|IV)\.?$`)

type personIndicatorGuard struct{}

func (personIndicatorGuard) Name() string { return "person-indicator-guard" }
func (personIndicatorGuard) Apply(spans []*span.Span, _ string) []*span.Span {
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		if neverWhitelisted[s.FilterType] {
			out = append(out, s)
			continue
		}
		hasIndicator := personTitlePrefix.MatchString(s.Text) || personSuffixSuffix.MatchString(s.Text)
		if !hasIndicator {
			out = append(out, s)
			continue
		}
		if containsStructurePhrase(s.Text, DefaultVocabulary().StructurePhrases) {
			continue // dropped: contains a document-structure phrase despite the person indicator
		}
		out = append(out, s)
	}
	return out
}

func containsStructurePhrase(text string, phrases map[string]bool) bool {
	n := normalize(text)
	for p := range phrases {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

type medicalWhitelist struct{ vocab Vocabulary }

func (medicalWhitelist) Name() string { return "unified-medical-whitelist" }
func (f medicalWhitelist) Apply(spans []*span.Span, _ string) []*span.Span {
	sets := []map[string]bool{
		f.vocab.Medications, f.vocab.Diseases, f.vocab.DiseaseEponyms, f.vocab.Procedures,
		f.vocab.Anatomy, f.vocab.SectionHeaders, f.vocab.OrganizationTerms,
		f.vocab.InsuranceCarriers, f.vocab.HospitalNames,
	}
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		if neverWhitelisted[s.FilterType] {
			out = append(out, s)
			continue
		}
		if matchesAnySet(s.Text, sets) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matchesAnySet(text string, sets []map[string]bool) bool {
	n := normalize(text)
	for _, set := range sets {
		if set[n] {
			return true
		}
	}
	// Constituent-word match: any single word of text matches any set entry.
	for _, w := range strings.Fields(n) {
		for _, set := range sets {
			if set[w] {
				return true
			}
		}
	}
	return false
}

type documentStructure struct{ vocab Vocabulary }

func (documentStructure) Name() string { return "document-structure" }
func (f documentStructure) Apply(spans []*span.Span, _ string) []*span.Span {
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		if neverWhitelisted[s.FilterType] {
			out = append(out, s)
			continue
		}
		n := normalize(s.Text)
		trimmed := strings.TrimSuffix(n, ":")
		if f.vocab.FieldLabels[trimmed] {
			continue
		}
		if containsStructurePhrase(s.Text, f.vocab.StructurePhrases) {
			continue
		}
		out = append(out, s)
	}
	return out
}

type allCapsHeading struct{ vocab Vocabulary }

func (allCapsHeading) Name() string { return "all-caps-heading-suppression" }
func (f allCapsHeading) Apply(spans []*span.Span, text string) []*span.Span {
	lines := strings.Split(text, "\n")
	lineStarts := lineStartOffsets(lines)
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		if s.FilterType != span.TypeName {
			out = append(out, s)
			continue
		}
		line := lineContaining(lines, lineStarts, s.CharacterStart)
		if isAllCapsHeading(line, f.vocab.HeadingVocabulary) && !isLabelValueConstruction(line, s.Text) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// lineStartOffsets returns, for each line in lines (as produced by
// strings.Split(text, "\n")), the rune offset into text where that line
// begins — one more than the previous line's length to account for the
// stripped "\n".
func lineStartOffsets(lines []string) []int {
	starts := make([]int, len(lines))
	offset := 0
	for i, l := range lines {
		starts[i] = offset
		offset += len([]rune(l)) + 1
	}
	return starts
}

// lineContaining returns the line that actually contains the rune offset
// charStart, found via a precomputed cumulative line-start index rather
// than scanning the document for the first ALL-CAPS line — a document can
// have more than one ALL-CAPS line, and only the one actually holding the
// span may suppress it.
func lineContaining(lines []string, lineStarts []int, charStart int) string {
	for i := len(lineStarts) - 1; i >= 0; i-- {
		if charStart >= lineStarts[i] {
			return lines[i]
		}
	}
	if len(lines) > 0 {
		return lines[0]
	}
	return ""
}

func isAllCapsLine(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func isAllCapsHeading(line string, headingVocab map[string]bool) bool {
	if !isAllCapsLine(line) {
		return false
	}
	n := normalize(line)
	for _, w := range strings.Fields(n) {
		if headingVocab[w] {
			return true
		}
	}
	return false
}

var labelValueLine = regexp.MustCompile(`^[A-Z][A-Z #/]*:\s*\S`)

func isLabelValueConstruction(line, spanText string) bool {
	if !labelValueLine.MatchString(strings.TrimSpace(line)) {
		return false
	}
	idx := strings.Index(line, ":")
	if idx == -1 {
		return false
	}
	return strings.Contains(line[idx+1:], spanText)
}

var streetAddressPrefix = regexp.MustCompile(`^\d+\s+[A-Za-z]`)
var streetSuffix = regexp.MustCompile(`(?i)\b(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b`)

type streetAddressExemption struct{}

func (streetAddressExemption) Name() string { return "street-address-exemption" }
func (streetAddressExemption) Apply(spans []*span.Span, _ string) []*span.Span {
	// This stage returns every span it receives, unchanged. The earlier
	// stages do not call IsStreetAddress, so a span one of them has already
	// dropped is not restored here, whatever its shape.
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		out = append(out, s)
	}
	return out
}

// IsStreetAddress reports whether text has the house-number + street-suffix
// shape (e.g. "123 Main Street"). None of the chain's filters calls it, so
// this shape does not by itself keep a span from being dropped.
func IsStreetAddress(text string) bool {
	return streetAddressPrefix.MatchString(text) && streetSuffix.MatchString(text)
}
