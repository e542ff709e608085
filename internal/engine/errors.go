package engine

import "fmt"

// ErrKind classifies an engine-level error by the taxonomy of spec.md §7.
// It is a kind, not a type: callers use errors.As(err, &kindErr) to read it
// off a wrapped error rather than switching on concrete error types.
type ErrKind int

const (
	KindConfig ErrKind = iota
	KindDetector
	KindPlugin
	KindResource
	KindInvariant
)

func (k ErrKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDetector:
		return "detector"
	case KindPlugin:
		return "plugin"
	case KindResource:
		return "resource"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// KindError wraps an error with its taxonomy kind (spec.md §7).
type KindError struct {
	Kind ErrKind
	Err  error
}

func (e *KindError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *KindError) Unwrap() error { return e.Err }

func wrapKind(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// InvariantError is fatal: on this error the engine returns the original
// text unchanged (spec.md §7: "the request returns the original text
// unchanged and reports the invariant name").
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation %q: %s", e.Invariant, e.Detail)
}

func invariantError(name, detail string) error {
	return wrapKind(KindInvariant, &InvariantError{Invariant: name, Detail: detail})
}
