package detect

import (
	ahocorasick "github.com/BobuSumisu/aho-corasick"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// DFAPreScanner is the optional fast multi-pattern screening stage (spec.md
// §2 step 4). It runs a single Aho-Corasick trie over a fixed keyword
// dictionary and emits low-priority (50) spans for any hit; the engine runs
// it after the Parallel Detector Runner and merges its spans with the
// runner's. These are not authoritative detections — they
// are cheap signals the confidence pipeline and whitelist filters use as
// additional evidence, and they are always subject to the same overlap
// resolution as any other span.
type DFAPreScanner struct {
	trie    *ahocorasick.Trie
	typeOf  map[string]span.FilterType
	enabled bool
}

// DefaultDFAKeywords pairs trigger phrases with the PHI type they hint at.
// These are deliberately cheap, high-recall screens (bare label words and
// common PHI-adjacent phrases), not validated patterns — the confidence
// pipeline and whitelist filters do the precision work downstream.
var DefaultDFAKeywords = map[string]span.FilterType{
	"ssn":           span.TypeSSN,
	"social security": span.TypeSSN,
	"dob":           span.TypeDate,
	"date of birth": span.TypeDate,
	"mrn":           span.TypeMRN,
	"medical record": span.TypeMRN,
	"patient":       span.TypeName,
	"phone":         span.TypePhone,
	"fax":           span.TypeFax,
	"email":         span.TypeEmail,
	"address":       span.TypeAddress,
	"zip":           span.TypeZipcode,
	"account":       span.TypeAccount,
	"license":       span.TypeLicense,
	"passport":      span.TypePassport,
	"npi":           span.TypeNPI,
	"health plan":   span.TypeHealthPlan,
	"device":        span.TypeDevice,
	"vin":           span.TypeVehicle,
}

// LowPriority is the fixed priority DFA pre-scan spans carry (spec.md §4.1:
// "DFA-prescan spans (marked low-priority 50)").
const LowPriority = 50

// NewDFAPreScanner builds the trie from keywords. An empty map disables
// scanning (Scan always returns nil).
func NewDFAPreScanner(keywords map[string]span.FilterType) *DFAPreScanner {
	if len(keywords) == 0 {
		return &DFAPreScanner{enabled: false}
	}
	words := make([]string, 0, len(keywords))
	typeOf := make(map[string]span.FilterType, len(keywords))
	for k, t := range keywords {
		words = append(words, k)
		typeOf[k] = t
	}
	trie := ahocorasick.NewTrieBuilder().
		AddStrings(words).
		Build()
	return &DFAPreScanner{trie: trie, typeOf: typeOf, enabled: true}
}

// Scan runs the trie over text (case-sensitive; callers lowercasing text is
// the caller's choice — the engine scans a lowercased copy and maps offsets
// back) and returns one Match per hit, tagged with its provenance type.
func (d *DFAPreScanner) Scan(text string) map[span.FilterType][]Match {
	if !d.enabled {
		return nil
	}
	out := make(map[span.FilterType][]Match)
	for _, m := range d.trie.MatchString(text) {
		word := string(m.Match())
		t, ok := d.typeOf[word]
		if !ok {
			continue
		}
		start := int(m.Pos())
		out[t] = append(out[t], Match{
			ByteStart:  start,
			ByteEnd:    start + len(word),
			Confidence: 0.3, // DFA hits are a screening signal, never an authoritative match
			Pattern:    "dfa-prescan:" + word,
		})
	}
	return out
}

// Enabled reports whether the scanner has a non-empty trie.
func (d *DFAPreScanner) Enabled() bool { return d.enabled }
