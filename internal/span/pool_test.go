package span

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireReleaseClearsPHIFields(t *testing.T) {
	p := NewPool(4)
	s := p.Acquire()
	s.Text = "123-45-6789"
	s.Context = "SSN: 123-45-6789 on file"
	s.Replacement = "T_SSN_abc123"
	s.Window = Window{Before: []string{"ssn", ":"}, After: []string{"on", "file"}}

	p.Release(s)

	require.Equal(t, -1, s.CharacterStart)
	require.Equal(t, -1, s.CharacterEnd)
	assert.Equal(t, "", s.Text)
	assert.Equal(t, "", s.Context)
	assert.Equal(t, "", s.Replacement)
	assert.Nil(t, s.Window.Before)
	assert.Nil(t, s.Window.After)
}

func TestPoolBoundedCapacity(t *testing.T) {
	p := NewPool(2)
	a, b, c := p.Acquire(), p.Acquire(), p.Acquire()
	p.Release(a)
	p.Release(b)
	p.Release(c) // pool is already at capacity 2; c is abandoned to GC

	assert.Equal(t, 2, p.Len())
}

func TestPoolLIFOReuse(t *testing.T) {
	p := NewPool(4)
	a := p.Acquire()
	a.Pattern = "first"
	p.Release(a)

	b := p.Acquire()
	// b should be the same underlying Span as a (LIFO reuse), cleared.
	assert.Equal(t, "", b.Pattern)
}

func TestDebugPoolDoubleReleasePanics(t *testing.T) {
	p := NewDebugPool(4)
	s := p.Acquire()
	p.Release(s)
	assert.Panics(t, func() { p.Release(s) })
}

func TestPoolShrink(t *testing.T) {
	p := NewPool(100)
	spans := make([]*Span, 20)
	for i := range spans {
		spans[i] = p.Acquire()
	}
	for _, s := range spans {
		p.Release(s)
	}
	require.Equal(t, 20, p.Len())

	p.Shrink(0.1) // target = 10
	assert.Equal(t, 10, p.Len())
}

func TestFactoryNewValidatesOffsets(t *testing.T) {
	pool := NewPool(8)
	f := NewFactory(pool)

	s, err := f.New("Contact Dr. Wilson at 617-555-0199", 8, 18, TypeName, 0.9, 100, "field-context")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Wilson", s.Text)
	assert.Equal(t, TypeName, s.FilterType)

	_, err = f.New("short", 2, 1, TypeName, 0.9, 100, "bad")
	assert.Error(t, err)

	_, err = f.New("short", 0, 100, TypeName, 0.9, 100, "bad")
	assert.Error(t, err)
}
