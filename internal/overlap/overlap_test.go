package overlap

import (
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func TestResolve_NoOverlapReturnsAllSpans(t *testing.T) {
	r := NewResolver(nil)
	a := &span.Span{CharacterStart: 0, CharacterEnd: 5}
	b := &span.Span{CharacterStart: 10, CharacterEnd: 15}

	out := r.Resolve([]*span.Span{a, b})
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
}

func TestResolve_HigherPriorityWins(t *testing.T) {
	r := NewResolver(nil)
	low := &span.Span{CharacterStart: 0, CharacterEnd: 10, Priority: 10, Confidence: 0.9}
	high := &span.Span{CharacterStart: 2, CharacterEnd: 12, Priority: 90, Confidence: 0.5}

	out := r.Resolve([]*span.Span{low, high})
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor after overlap resolution, got %d", len(out))
	}
	if out[0] != high {
		t.Errorf("expected the higher-priority span to win")
	}
	if low.State != span.StateDropped || !low.Ignored {
		t.Errorf("losing span should be marked dropped+ignored")
	}
}

func TestResolve_TieBreaksOnConfidenceThenLength(t *testing.T) {
	r := NewResolver(nil)
	shorter := &span.Span{CharacterStart: 0, CharacterEnd: 5, Priority: 50, Confidence: 0.8}
	longer := &span.Span{CharacterStart: 0, CharacterEnd: 8, Priority: 50, Confidence: 0.8}

	out := r.Resolve([]*span.Span{shorter, longer})
	if len(out) != 1 || out[0] != longer {
		t.Errorf("expected the longer span to win an equal-priority/confidence tie")
	}
}

func TestResolve_CallsReleaseOnLosers(t *testing.T) {
	var released []*span.Span
	r := NewResolver(func(s *span.Span) { released = append(released, s) })

	winner := &span.Span{CharacterStart: 0, CharacterEnd: 10, Priority: 90}
	loser := &span.Span{CharacterStart: 1, CharacterEnd: 5, Priority: 10}

	r.Resolve([]*span.Span{winner, loser})

	if len(released) != 1 || released[0] != loser {
		t.Errorf("expected release to be called exactly once, with the loser")
	}
}

func TestResolve_EmptyInput(t *testing.T) {
	r := NewResolver(nil)
	out := r.Resolve(nil)
	if len(out) != 0 {
		t.Errorf("expected empty output for empty input, got %d", len(out))
	}
}
