package span

import "fmt"

// Factory mints Spans from detector matches, pulling from a Pool rather than
// allocating directly. It enforces the creation-time offset invariant
// (spec.md §3): 0 <= start < end <= len(input), and text == input[start:end].
type Factory struct {
	pool *Pool
}

// NewFactory wraps a Pool.
func NewFactory(pool *Pool) *Factory {
	return &Factory{pool: pool}
}

// New acquires a Span from the pool and initializes it from a raw detector
// match. priority and pattern describe provenance; confidence is the
// detector's base score before the confidence pipeline runs.
//
// Returns an error (never panics) if the offsets violate the span invariant
// — callers must treat this as a detector failure, isolated per spec.md §7,
// not as a fatal engine error.
func (f *Factory) New(input string, start, end int, filterType FilterType, confidence float64, priority int, pattern string) (*Span, error) {
	runes := []rune(input)
	if start < 0 || end > len(runes) || start >= end {
		return nil, fmt.Errorf("span: invalid offsets [%d,%d) for input of length %d", start, end, len(runes))
	}
	text := string(runes[start:end])

	s := f.pool.Acquire()
	s.CharacterStart = start
	s.CharacterEnd = end
	s.Text = text
	s.FilterType = filterType
	s.Confidence = confidence
	s.Priority = priority
	s.Pattern = pattern
	s.State = StateCreated
	return s, nil
}

// Release returns s to the underlying pool.
func (f *Factory) Release(s *Span) {
	f.pool.Release(s)
}
