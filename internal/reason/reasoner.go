package reason

import (
	"context"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

var fold = cases.Fold()

func normalizeText(s string) string {
	return strings.Join(strings.Fields(fold.String(s)), " ")
}

// Reasoner runs the full cross-type constraint derivation of spec.md §4.6.
type Reasoner struct {
	rules []Rule
}

// NewReasoner builds a Reasoner over rules (DefaultRules when nil).
func NewReasoner(rules []Rule) *Reasoner {
	if rules == nil {
		rules = DefaultRules
	}
	return &Reasoner{rules: rules}
}

// Run derives confidence deltas for every span and applies them in place,
// recording provenance via span.Adjustment (spec.md §4.6: "each adjustment
// carries (rule name, delta, description)... retained and queryable"). The
// Nearby relation is computed via a Prolog query over asserted facts — the
// Datalog-semantics path selected by the reasoner toggle of spec.md §6.
func (r *Reasoner) Run(ctx context.Context, spans []*span.Span) error {
	if len(spans) == 0 {
		return nil
	}
	eng := NewEngine(r.rules)
	if err := eng.loadFacts(spans); err != nil {
		return err
	}
	pairs, err := eng.nearbyPairs(ctx)
	if err != nil {
		return err
	}
	r.applyPairs(spans, pairs)
	r.applyDocumentConsistency(spans)
	for _, s := range spans {
		s.Confidence = clamp01(s.Confidence)
	}
	return nil
}

// RunImperative derives the same deltas without involving the Prolog
// engine: Nearby pairs are computed directly in Go. This is the "imperative
// reasoner" alternative to RunImperative's Datalog sibling Run, toggled per
// spec.md §6 ("select Datalog vs imperative reasoner") — useful in
// environments where embedding a Prolog interpreter is undesirable.
func (r *Reasoner) RunImperative(spans []*span.Span) {
	if len(spans) == 0 {
		return
	}
	var pairs [][2]int
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if nearby(spans[i], spans[j]) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	r.applyPairs(spans, pairs)
	r.applyDocumentConsistency(spans)
	for _, s := range spans {
		s.Confidence = clamp01(s.Confidence)
	}
}

func (r *Reasoner) applyPairs(spans []*span.Span, pairs [][2]int) {
	for _, pr := range pairs {
		a, b := spans[pr[0]], spans[pr[1]]
		ctxText := a.Context + " " + b.Context
		for _, rule := range r.rules {
			if !rule.Match(a.FilterType, b.FilterType) {
				continue
			}
			if re := contextRegexp(rule.ContextRegexp); re != nil && !re.MatchString(ctxText) {
				continue
			}
			applyRule(rule, a, b)
		}
	}
}

func applyRule(rule Rule, a, b *span.Span) {
	switch rule.Relation {
	case Exclusive:
		delta := -rule.Strength * KConflict
		loser := a
		if b.Confidence < a.Confidence {
			loser = b
		}
		loser.Confidence += delta
		loser.Adjustments = append(loser.Adjustments, span.Adjustment{
			Rule: rule.Name, Delta: delta, Description: rule.Description,
		})
	case Supportive:
		delta := rule.Strength * KSupport
		for _, s := range [2]*span.Span{a, b} {
			s.Confidence += delta
			s.Adjustments = append(s.Adjustments, span.Adjustment{
				Rule: rule.Name, Delta: delta, Description: rule.Description,
			})
		}
	}
}

// applyDocumentConsistency implements the SameText majority-type boost:
// within a group of spans sharing normalized text (size >= 2), spans
// matching the group's dominant type gain +0.10, others lose 0.5*0.25
// (spec.md §4.6).
func (r *Reasoner) applyDocumentConsistency(spans []*span.Span) {
	groups := make(map[string][]*span.Span)
	for _, s := range spans {
		key := normalizeText(s.Text)
		if key == "" {
			continue // no text, no SameText relation
		}
		groups[key] = append(groups[key], s)
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		counts := make(map[span.FilterType]int)
		var order []span.FilterType
		for _, s := range group {
			if counts[s.FilterType] == 0 {
				order = append(order, s.FilterType)
			}
			counts[s.FilterType]++
		}
		// Walk types in first-seen order (not map iteration order, which is
		// randomized) so a count tie always resolves to the type that
		// appeared first in the group, making the boost/penalty split
		// deterministic across runs (spec.md §8 Determinism).
		dominant, best := span.FilterType(""), 0
		for _, t := range order {
			if counts[t] > best {
				dominant, best = t, counts[t]
			}
		}
		for _, s := range group {
			if s.FilterType == dominant {
				s.Confidence += 0.10
				s.Adjustments = append(s.Adjustments, span.Adjustment{
					Rule: "document-consistency-majority", Delta: 0.10,
					Description: "matches the dominant type among same-text spans",
				})
			} else {
				delta := -0.5 * 0.25
				s.Confidence += delta
				s.Adjustments = append(s.Adjustments, span.Adjustment{
					Rule: "document-consistency-minority", Delta: delta,
					Description: "diverges from the dominant type among same-text spans",
				})
			}
		}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
