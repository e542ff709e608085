package confidence

import (
	"regexp"
	"strings"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// HighPrecisionSet are filter types eligible for the ensemble enhancer's
// relaxed auto-approve threshold (spec.md §4.5 item 2).
var HighPrecisionSet = map[span.FilterType]bool{
	span.TypeSSN: true, span.TypeEmail: true, span.TypeCreditCard: true, span.TypeNPI: true,
}

const (
	autoApproveThreshold           = 0.92
	highPrecisionAutoApproveThresh = 0.88
	autoRejectThreshold            = 0.15
	maxLabelBoost                  = 0.25
	maxDeboostPenalty              = 0.10
	coOccurrencePenalty            = 0.98
)

var labelCue = regexp.MustCompile(`(?i)\b(name|ssn|dob|mrn|phone|email|address|zip)\s*:\s*$`)
var deboostCue = regexp.MustCompile(`(?i)\b(dr\.|hospital:|clinic:)\s*$`)

// BasicContextModifier applies spec.md §4.5 item 1: a small boost when the
// immediately preceding window matches a PHI label, a small penalty when it
// matches a de-boost cue.
type BasicContextModifier struct{}

func (BasicContextModifier) Name() string { return "basic-context-modifier" }

func (BasicContextModifier) Run(spans []*span.Span, _ string) []*span.Span {
	for _, s := range spans {
		before := strings.Join(s.Window.Before, " ")
		switch {
		case labelCue.MatchString(before):
			s.Confidence = clamp01(s.Confidence + maxLabelBoost)
		case deboostCue.MatchString(before):
			s.Confidence = clamp01(s.Confidence - maxDeboostPenalty)
		}
	}
	return spans
}

// EnsembleEnhancer is the weighted multi-signal stage of spec.md §4.5 item 2.
// Spans already confident enough (or noisy enough) skip full scoring —
// lazy evaluation short-circuits the ensemble, it never drops a span.
type EnsembleEnhancer struct {
	Vocabulary map[string]bool // normalized medical/structural terms; negative signal
}

func (EnsembleEnhancer) Name() string { return "ensemble-enhancer" }

func (e EnsembleEnhancer) Run(spans []*span.Span, _ string) []*span.Span {
	for _, s := range spans {
		if s.Confidence >= autoApproveThreshold {
			continue
		}
		if HighPrecisionSet[s.FilterType] && s.Confidence >= highPrecisionAutoApproveThresh {
			continue
		}
		if s.Confidence <= autoRejectThreshold {
			continue
		}

		signal := 0.0
		signal += provenanceWeight(s.Pattern)
		signal += dictionarySignal(s.Text)
		signal += labelProximitySignal(s.Window)
		signal -= whitelistSignal(s.Text, e.Vocabulary)

		s.Confidence = clamp01(s.Confidence + signal)
	}
	return spans
}

func provenanceWeight(pattern string) float64 {
	if strings.HasPrefix(pattern, "dfa-prescan:") {
		return 0.0
	}
	if strings.HasPrefix(pattern, "field-context:") {
		return 0.08
	}
	return 0.03
}

func dictionarySignal(text string) float64 {
	// A cheap proxy for a fuzzy first-name/surname match score: reward
	// title-case multi-word phrases, the common shape of a person's name.
	words := strings.Fields(text)
	if len(words) < 2 {
		return 0.0
	}
	for _, w := range words {
		if w == "" || !isTitleCase(w) {
			return 0.0
		}
	}
	return 0.05
}

func isTitleCase(w string) bool {
	r := []rune(w)
	if len(r) == 0 {
		return false
	}
	return strings.ToUpper(string(r[0])) == string(r[0]) && strings.ToLower(w[1:]) == w[1:]
}

func labelProximitySignal(win span.Window) float64 {
	if len(win.Before) == 0 {
		return 0.0
	}
	last := win.Before[len(win.Before)-1]
	if labelCue.MatchString(last + ":") {
		return 0.04
	}
	return 0.0
}

func whitelistSignal(text string, vocab map[string]bool) float64 {
	if vocab == nil {
		return 0.0
	}
	n := strings.ToLower(text)
	if vocab[n] {
		return 0.10
	}
	for _, w := range strings.Fields(n) {
		if vocab[w] {
			return 0.05
		}
	}
	return 0.0
}

// VectorDisambiguation marks overlapping spans ambiguousWith each other and
// applies a small co-occurrence penalty (spec.md §4.5 item 3).
type VectorDisambiguation struct{}

func (VectorDisambiguation) Name() string { return "vector-disambiguation" }

func (VectorDisambiguation) Run(spans []*span.Span, _ string) []*span.Span {
	for i, a := range spans {
		for j := i + 1; j < len(spans); j++ {
			b := spans[j]
			if !a.Overlaps(b) {
				continue
			}
			a.AmbiguousWith = appendUnique(a.AmbiguousWith, b.FilterType)
			b.AmbiguousWith = appendUnique(b.AmbiguousWith, a.FilterType)
			a.Confidence = clamp01(a.Confidence * coOccurrencePenalty)
			b.Confidence = clamp01(b.Confidence * coOccurrencePenalty)
		}
	}
	return spans
}

func appendUnique(list []span.FilterType, t span.FilterType) []span.FilterType {
	for _, x := range list {
		if x == t {
			return list
		}
	}
	return append(list, t)
}

// ClinicalContextModifier applies a uniform document-level boost when at
// least MinIndicatorWords clinical indicator words appear anywhere in the
// document (spec.md §4.5 item 5: optional, off by default, applied
// uniformly so it never distorts overlap rankings by position).
type ClinicalContextModifier struct {
	IndicatorWords   map[string]bool
	MinIndicatorWords int
	Boost            float64
}

func (ClinicalContextModifier) Name() string { return "clinical-context-modifier" }

func (c ClinicalContextModifier) Run(spans []*span.Span, text string) []*span.Span {
	count := 0
	n := strings.ToLower(text)
	for w := range c.IndicatorWords {
		if strings.Contains(n, w) {
			count++
		}
	}
	if count < c.MinIndicatorWords {
		return spans
	}
	for _, s := range spans {
		s.Confidence = clamp01(s.Confidence + c.Boost)
	}
	return spans
}
