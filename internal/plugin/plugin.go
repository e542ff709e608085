// Package plugin implements the Plugin Manager of spec.md §4.12: four
// ordered hook points plus a special pre-pipeline short-circuit, all
// awaited sequentially in registration order (spec.md §5).
package plugin

import (
	"context"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// SpanLike is the minimal view of a Span plugins operate on — the core
// converts to/from real Spans at each hook boundary so plugin code never
// holds a pool-backed pointer past the call.
type SpanLike struct {
	CharacterStart int
	CharacterEnd   int
	FilterType     span.FilterType
	Confidence     float64
	Text           string
}

func toSpanLike(s *span.Span) SpanLike {
	return SpanLike{
		CharacterStart: s.CharacterStart,
		CharacterEnd:   s.CharacterEnd,
		FilterType:     s.FilterType,
		Confidence:     s.Confidence,
		Text:           s.Text,
	}
}

func applySpanLike(s *span.Span, v SpanLike) {
	s.CharacterStart = v.CharacterStart
	s.CharacterEnd = v.CharacterEnd
	s.FilterType = v.FilterType
	s.Confidence = v.Confidence
}

// Result is the engine's final output, as seen by postRedaction plugins.
type Result struct {
	RedactedText string
	Spans        []SpanLike
}

// ShortCircuitResult lets a plugin bypass the rest of the pipeline entirely
// (spec.md §4.12: "used e.g. for cache-plugin integrations").
type ShortCircuitResult struct {
	Triggered bool
	Result    Result
}

// Plugin implements any subset of the four hooks plus ShortCircuit; a
// no-op default is provided via the embeddable Base type.
type Plugin interface {
	Name() string
	ShortCircuit(ctx context.Context, text string) (ShortCircuitResult, error)
	PreProcess(ctx context.Context, text string) (string, error)
	PostDetection(ctx context.Context, spans []SpanLike) ([]SpanLike, error)
	PreRedaction(ctx context.Context, spans []SpanLike) ([]SpanLike, error)
	PostRedaction(ctx context.Context, result Result) (Result, error)
}

// Base is a no-op Plugin; embed it and override only the hooks a plugin
// actually needs.
type Base struct{ PluginName string }

func (b Base) Name() string { return b.PluginName }
func (Base) ShortCircuit(_ context.Context, _ string) (ShortCircuitResult, error) {
	return ShortCircuitResult{}, nil
}
func (Base) PreProcess(_ context.Context, text string) (string, error) { return text, nil }
func (Base) PostDetection(_ context.Context, spans []SpanLike) ([]SpanLike, error) {
	return spans, nil
}
func (Base) PreRedaction(_ context.Context, spans []SpanLike) ([]SpanLike, error) {
	return spans, nil
}
func (Base) PostRedaction(_ context.Context, result Result) (Result, error) { return result, nil }

// HookFailure records a non-fatal plugin error for the execution report;
// plugin failures never abort the pipeline (spec.md §7's isolation
// convention, generalized from detectors to plugins).
type HookFailure struct {
	Plugin string
	Hook   string
	Err    error
}

// Manager runs registered plugins through each hook, sequentially, in
// registration order.
type Manager struct {
	plugins  []Plugin
	failures []HookFailure
}

// NewManager builds a Manager over plugins, run in the given order.
func NewManager(plugins ...Plugin) *Manager {
	return &Manager{plugins: plugins}
}

// Failures returns every non-fatal hook error recorded since the last call
// to Reset.
func (m *Manager) Failures() []HookFailure { return m.failures }

// Reset clears recorded failures, for reuse across requests.
func (m *Manager) Reset() { m.failures = nil }

// RunShortCircuit gives every plugin, in order, a chance to short-circuit
// before the pipeline runs. The first plugin to trigger wins.
func (m *Manager) RunShortCircuit(ctx context.Context, text string) (ShortCircuitResult, bool) {
	for _, p := range m.plugins {
		res, err := p.ShortCircuit(ctx, text)
		if err != nil {
			m.record(p.Name(), "shortCircuit", err)
			continue
		}
		if res.Triggered {
			return res, true
		}
	}
	return ShortCircuitResult{}, false
}

// RunPreProcess runs preProcess(text) -> text' through every plugin in order.
func (m *Manager) RunPreProcess(ctx context.Context, text string) string {
	for _, p := range m.plugins {
		out, err := p.PreProcess(ctx, text)
		if err != nil {
			m.record(p.Name(), "preProcess", err)
			continue
		}
		text = out
	}
	return text
}

// RunPostDetection runs postDetection(spans) -> spans' through every plugin
// in order, converting to/from SpanLike at the boundary.
func (m *Manager) RunPostDetection(ctx context.Context, spans []*span.Span) []*span.Span {
	return m.runSpanHook(ctx, "postDetection", spans, func(p Plugin, v []SpanLike) ([]SpanLike, error) {
		return p.PostDetection(ctx, v)
	})
}

// RunPreRedaction runs preRedaction(spans) -> spans' through every plugin in
// order.
func (m *Manager) RunPreRedaction(ctx context.Context, spans []*span.Span) []*span.Span {
	return m.runSpanHook(ctx, "preRedaction", spans, func(p Plugin, v []SpanLike) ([]SpanLike, error) {
		return p.PreRedaction(ctx, v)
	})
}

func (m *Manager) runSpanHook(_ context.Context, hookName string, spans []*span.Span, call func(Plugin, []SpanLike) ([]SpanLike, error)) []*span.Span {
	views := make([]SpanLike, len(spans))
	for i, s := range spans {
		views[i] = toSpanLike(s)
	}
	for _, p := range m.plugins {
		out, err := call(p, views)
		if err != nil {
			m.record(p.Name(), hookName, err)
			continue
		}
		views = out
	}
	// A plugin may only reorder/trim the view slice (it has no way to mint a
	// new pool-backed Span). Each surviving view is matched back to the first
	// unused original span with the same Text (Text is never written back),
	// falling back to the span at the view's own position; views with no
	// original left are discarded.
	used := make([]bool, len(spans))
	out := make([]*span.Span, 0, len(views))
	for i, v := range views {
		j := -1
		for k, s := range spans {
			if !used[k] && s.Text == v.Text {
				j = k
				break
			}
		}
		if j == -1 && i < len(spans) && !used[i] {
			j = i
		}
		if j == -1 {
			continue
		}
		used[j] = true
		applySpanLike(spans[j], v)
		out = append(out, spans[j])
	}
	return out
}

// RunPostRedaction runs postRedaction(result) -> result' through every
// plugin in order.
func (m *Manager) RunPostRedaction(ctx context.Context, result Result) Result {
	for _, p := range m.plugins {
		out, err := p.PostRedaction(ctx, result)
		if err != nil {
			m.record(p.Name(), "postRedaction", err)
			continue
		}
		result = out
	}
	return result
}

func (m *Manager) record(plugin, hook string, err error) {
	m.failures = append(m.failures, HookFailure{Plugin: plugin, Hook: hook, Err: err})
}
