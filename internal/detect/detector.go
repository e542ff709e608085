// Package detect implements the Parallel Detector Runner (spec.md §4.1), the
// DFA Pre-Scanner (spec.md §2 step 4), and the Field Context Analyzer
// (spec.md §4.2). Detectors themselves are pluggable leaves (spec.md §1,
// "out of scope") — this package defines their contract and schedules them.
package detect

import (
	"context"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Detector is the plug-in contract every PHI leaf detector implements.
// Implementations must not mutate text and must not retain references to it
// after Detect returns (spec.md §6).
type Detector interface {
	// Type returns the PHI filter type this detector produces.
	Type() span.FilterType
	// Priority is the base span priority this detector assigns, used to
	// break overlap ties (spec.md §4.8).
	Priority() int
	// Detect scans text and returns candidate offsets. Implementations
	// return byte offsets into text (Go's native string indexing); the
	// runner converts them to character offsets before minting spans.
	Detect(ctx context.Context, text string, cfg map[string]any) ([]Match, error)
}

// Match is a raw detector hit before it becomes a Span: byte offsets into
// the scanned text, plus a base confidence and a provenance tag.
type Match struct {
	ByteStart  int
	ByteEnd    int
	Confidence float64
	Pattern    string
}

// Handle pairs a Detector with its policy-derived enable/config state.
type Handle struct {
	Detector Detector
	Enabled  bool
	Config   map[string]any
}
