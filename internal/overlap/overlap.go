// Package overlap implements the deterministic Overlap Resolver of spec.md
// §4.8: a greedy pass over spans sorted by position, breaking ties by a
// fixed key order.
package overlap

import (
	"sort"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Resolver resolves overlapping spans into a non-overlapping sequence.
type Resolver struct {
	release func(*span.Span)
}

// NewResolver builds a Resolver. release, if non-nil, is called on every
// losing span so pooled spans return to their pool (spec.md §4.8: "Loser is
// dropped (and returned to the pool)").
func NewResolver(release func(*span.Span)) *Resolver {
	return &Resolver{release: release}
}

// Resolve sorts spans by (characterStart asc, characterEnd desc), then
// greedily keeps a non-overlapping winner set, breaking ties in the order:
// higher priority -> higher confidence -> longer length -> earlier start ->
// stable source order (spec.md §4.8). The returned slice preserves the
// insertion order winners were first encountered in.
func (r *Resolver) Resolve(spans []*span.Span) []*span.Span {
	if len(spans) == 0 {
		return spans
	}

	indexed := make([]indexedSpan, len(spans))
	for i, s := range spans {
		indexed[i] = indexedSpan{s: s, sourceOrder: i}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		a, b := indexed[i].s, indexed[j].s
		if a.CharacterStart != b.CharacterStart {
			return a.CharacterStart < b.CharacterStart
		}
		return a.CharacterEnd > b.CharacterEnd
	})

	var winners []indexedSpan
	var last *indexedSpan

	for i := range indexed {
		cur := indexed[i]
		if last == nil || !cur.s.Overlaps(last.s) {
			winners = append(winners, cur)
			last = &winners[len(winners)-1]
			continue
		}
		if wins(cur, *last) {
			r.drop(last.s)
			winners[len(winners)-1] = cur
			last = &winners[len(winners)-1]
		} else {
			r.drop(cur.s)
		}
	}

	out := make([]*span.Span, len(winners))
	for i, w := range winners {
		out[i] = w.s
	}
	return out
}

type indexedSpan struct {
	s           *span.Span
	sourceOrder int
}

// wins reports whether candidate beats incumbent under the tie-break order
// of spec.md §4.8.
func wins(candidate, incumbent indexedSpan) bool {
	c, inc := candidate.s, incumbent.s
	if c.Priority != inc.Priority {
		return c.Priority > inc.Priority
	}
	if c.Confidence != inc.Confidence {
		return c.Confidence > inc.Confidence
	}
	if c.Len() != inc.Len() {
		return c.Len() > inc.Len()
	}
	if c.CharacterStart != inc.CharacterStart {
		return c.CharacterStart < inc.CharacterStart
	}
	return candidate.sourceOrder < incumbent.sourceOrder
}

func (r *Resolver) drop(s *span.Span) {
	s.State = span.StateDropped
	s.Ignored = true
	if r.release != nil {
		r.release(s)
	}
}
