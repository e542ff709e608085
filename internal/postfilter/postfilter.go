// Package postfilter implements the Post-Filter of spec.md §4.9: a final,
// purely local heuristic pass that may drop spans but never reintroduces
// ones already dropped.
package postfilter

import (
	"regexp"
	"unicode"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Rule is one deterministic per-filterType removal rule: it inspects a
// surviving span and reports whether it should be dropped.
type Rule func(s *span.Span) bool

// Filter runs every configured rule, in order, over surviving spans.
type Filter struct {
	rules map[span.FilterType][]Rule
}

// Default builds the post-filter with the example rules named in spec.md
// §4.9: a two-character "name", an under-minimum-digit MRN, a DATE wholly
// inside a non-temporal numeric run.
func Default() *Filter {
	return &Filter{rules: map[span.FilterType][]Rule{
		span.TypeName: {tooShortName},
		span.TypeMRN:  {tooFewDigitsMRN},
		span.TypeDate: {nonTemporalNumericRun},
	}}
}

// Apply drops every span for which any configured rule for its type returns
// true.
func (f *Filter) Apply(spans []*span.Span, release func(*span.Span)) []*span.Span {
	out := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		dropped := false
		for _, rule := range f.rules[s.FilterType] {
			if rule(s) {
				dropped = true
				break
			}
		}
		if dropped {
			s.State = span.StateDropped
			s.Ignored = true
			if release != nil {
				release(s)
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// minMRNDigits is the fewest digits a valid MRN must contain.
const minMRNDigits = 5

func tooShortName(s *span.Span) bool {
	letters := 0
	for _, r := range s.Text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters <= 2
}

func tooFewDigitsMRN(s *span.Span) bool {
	digits := 0
	for _, r := range s.Text {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits < minMRNDigits
}

var longNumericRun = regexp.MustCompile(`^[0-9\-]{10,}$`)

// nonTemporalNumericRun drops a DATE span whose text is a long undifferentiated
// digit run rather than a recognizable date shape (no separators forming
// day/month/year groups).
func nonTemporalNumericRun(s *span.Span) bool {
	return longNumericRun.MatchString(s.Text) && !looksLikeDateShape(s.Text)
}

var dateShape = regexp.MustCompile(`^\d{1,4}[\-/]\d{1,2}[\-/]\d{1,4}$`)

func looksLikeDateShape(text string) bool {
	return dateShape.MatchString(text)
}
