package span

import (
	"sync"
	"sync/atomic"
)

// DefaultPoolCapacity is the default bound on the number of Spans the pool
// will hold for reuse (spec.md §5: "process-wide, bounded (default 10k),
// LIFO").
const DefaultPoolCapacity = 10_000

// Pool is a process-wide, bounded, LIFO pool of reusable Spans. Acquire and
// Release are O(1). Fields are cleared on Release so no PHI-bearing state
// survives into the next Acquire.
//
// When the pool is empty, Acquire falls back to allocating a fresh Span
// (spec.md §7: resource exhaustion degrades gracefully rather than blocking
// or failing).
type Pool struct {
	mu       sync.Mutex
	free     []*Span // LIFO stack
	capacity int

	nextID atomic.Uint64

	debug bool
	live  map[uint64]*Span // debug-mode only: tracks spans currently on loan
}

// NewPool creates a Pool bounded to capacity entries. capacity <= 0 means
// DefaultPoolCapacity.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &Pool{capacity: capacity}
}

// NewDebugPool is like NewPool but tracks every span currently on loan in a
// live set, so double-release can be detected deterministically in tests.
func NewDebugPool(capacity int) *Pool {
	p := NewPool(capacity)
	p.debug = true
	p.live = make(map[uint64]*Span)
	return p
}

// Acquire returns a Span ready for a detector to populate, either recycled
// from the pool or freshly allocated if the pool is empty.
func (p *Pool) Acquire() *Span {
	p.mu.Lock()
	var s *Span
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free = p.free[:n-1]
	}
	if s == nil {
		s = &Span{id: p.nextID.Add(1)}
		s.CharacterStart, s.CharacterEnd = -1, -1
	}
	if p.debug {
		p.live[s.id] = s
	}
	p.mu.Unlock()
	return s
}

// Release clears s's PHI-bearing fields and returns it to the pool, unless
// the pool is at capacity, in which case it is abandoned to the garbage
// collector. Double-release of the same Span in debug mode panics — this is
// treated as an internal invariant violation (spec.md §7), never silently
// tolerated.
func (p *Pool) Release(s *Span) {
	if s == nil {
		return
	}
	id := s.id
	s.clear()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debug {
		if _, onLoan := p.live[id]; !onLoan {
			panic("span: double release detected (invariant violation)")
		}
		delete(p.live, id)
	}

	if len(p.free) >= p.capacity {
		return // abandoned to GC; pool stays within its bound
	}
	p.free = append(p.free, s)
}

// Len returns the number of spans currently resident in the free list.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// LiveCount returns the number of spans currently on loan. Only meaningful
// for pools created with NewDebugPool; always 0 otherwise.
func (p *Pool) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Shrink trims the free list when utilization falls below threshold
// (fraction of capacity, e.g. 0.25), releasing the excess to the GC. It is
// intended to run periodically from a low-frequency maintenance goroutine.
func (p *Pool) Shrink(threshold float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := int(float64(p.capacity) * threshold)
	if len(p.free) <= target || target <= 0 {
		return
	}
	keep := target
	// Drop every excess entry from the oldest end; keep the most recently
	// released (hottest) ones, consistent with LIFO reuse order.
	drop := len(p.free) - keep
	copy(p.free, p.free[drop:])
	p.free = p.free[:keep]
}
