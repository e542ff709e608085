package detect

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinical-nlp/redact-engine/internal/logger"
	"github.com/clinical-nlp/redact-engine/internal/span"
)

// TimeoutPolicy derives a per-detector timeout from document size, clamped
// to [Min,Max] (spec.md §5: "base + per_kB × (|text|/1000), clamped to
// [min,max]").
type TimeoutPolicy struct {
	Base  time.Duration
	PerKB time.Duration
	Min   time.Duration
	Max   time.Duration
}

// DefaultTimeoutPolicy matches the teacher's conservative HTTP timeouts,
// scaled down for in-process detector work.
var DefaultTimeoutPolicy = TimeoutPolicy{
	Base:  50 * time.Millisecond,
	PerKB: 5 * time.Millisecond,
	Min:   25 * time.Millisecond,
	Max:   2 * time.Second,
}

func (t TimeoutPolicy) For(textLen int) time.Duration {
	d := t.Base + time.Duration(textLen/1000)*t.PerKB
	if d < t.Min {
		return t.Min
	}
	if d > t.Max {
		return t.Max
	}
	return d
}

// ExecutionModel selects how the runner schedules detectors. Exactly one is
// active at a time, chosen at construction (spec.md §9, design note on the
// teacher's multiple alternative worker pools).
type ExecutionModel int

const (
	// Parallel dispatches detectors onto a bounded worker pool.
	Parallel ExecutionModel = iota
	// Sequential runs detectors one at a time on the calling goroutine — the
	// single-threaded cooperative fallback required for constrained
	// environments. Produces an identical span set to Parallel, only
	// ordering (irrelevant to the contract) may differ.
	Sequential
)

// DetectorOutcome reports one detector's execution for the engine's report
// (spec.md §6: per-detector {name,type,success,spansDetected,executionTimeMs,enabled}).
type DetectorOutcome struct {
	Name            string
	Type            span.FilterType
	Enabled         bool
	Success         bool
	SpansDetected   int
	ExecutionTimeMs float64
	Err             error
}

// RunReport summarizes one Run call across all detectors.
type RunReport struct {
	TotalFilters       int
	FiltersExecuted    int
	FiltersDisabled    int
	FiltersFailed      int
	TotalSpansDetected int
	TotalExecutionMs   float64
	Detectors          []DetectorOutcome
	FailedFilters      []string
}

// Runner dispatches enabled detectors concurrently (or sequentially) and
// merges their output into one span set, isolating per-detector failures
// (spec.md §4.1: "exception ⇒ empty span list, entry in failedFilters,
// pipeline proceeds").
type Runner struct {
	model   ExecutionModel
	workers int
	timeout TimeoutPolicy
	log     *logger.Logger
	factory *span.Factory
}

// NewRunner builds a Runner. workers <= 0 selects min(4, cores-1) as spec.md
// §5 mandates; it is ignored when model is Sequential.
func NewRunner(model ExecutionModel, workers int, timeout TimeoutPolicy, factory *span.Factory, log *logger.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers > 4 {
			workers = 4
		}
		if workers < 1 {
			workers = 1
		}
	}
	return &Runner{model: model, workers: workers, timeout: timeout, factory: factory, log: log}
}

// Run executes every enabled handle against text and returns the merged,
// deduplicated-by-nothing (overlap resolution happens later) span set plus
// an execution report. All detectors observe the identical input text; no
// detector observes another's output (spec.md §4.1).
func (r *Runner) Run(ctx context.Context, text string, handles []Handle) ([]*span.Span, RunReport) {
	report := RunReport{TotalFilters: len(handles)}
	outcomes := make([]DetectorOutcome, len(handles))

	runOne := func(i int) []*span.Span {
		h := handles[i]
		name := detectorName(h.Detector)
		outcomes[i] = DetectorOutcome{Name: name, Type: h.Detector.Type(), Enabled: h.Enabled}
		if !h.Enabled {
			return nil
		}

		start := time.Now()
		dctx, cancel := context.WithTimeout(ctx, r.timeout.For(len(text)))
		defer cancel()

		matches, err := runDetectorIsolated(dctx, h.Detector, text, h.Config)
		elapsed := time.Since(start)
		outcomes[i].ExecutionTimeMs = float64(elapsed.Microseconds()) / 1000.0

		if err != nil {
			outcomes[i].Success = false
			outcomes[i].Err = err
			r.log.Warnf("detect", "detector %s failed: %v", name, err)
			return nil
		}
		outcomes[i].Success = true

		spans := make([]*span.Span, 0, len(matches))
		for _, m := range matches {
			rs, re := ByteToRune(text, m.ByteStart, m.ByteEnd)
			s, serr := r.factory.New(text, rs, re, h.Detector.Type(), m.Confidence, h.Detector.Priority(), m.Pattern)
			if serr != nil {
				r.log.Warnf("detect", "detector %s produced invalid span: %v", name, serr)
				continue
			}
			spans = append(spans, s)
		}
		outcomes[i].SpansDetected = len(spans)
		return spans
	}

	var all []*span.Span
	switch r.model {
	case Sequential:
		for i := range handles {
			all = append(all, runOne(i)...)
		}
	default:
		results := make([][]*span.Span, len(handles))
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for i := range handles {
			i := i
			g.Go(func() error {
				results[i] = runOne(i)
				return nil
			})
		}
		_ = g.Wait() // runOne never returns an error; failures are isolated internally
		for _, rs := range results {
			all = append(all, rs...)
		}
	}

	for _, o := range outcomes {
		report.Detectors = append(report.Detectors, o)
		if !o.Enabled {
			report.FiltersDisabled++
			continue
		}
		report.FiltersExecuted++
		if !o.Success {
			report.FiltersFailed++
			report.FailedFilters = append(report.FailedFilters, o.Name)
		}
		report.TotalSpansDetected += o.SpansDetected
		report.TotalExecutionMs += o.ExecutionTimeMs
	}
	return all, report
}

// runDetectorIsolated recovers from detector panics, treating them as
// ordinary detector failures (spec.md §7: detector errors are caught at
// their boundary and never propagate).
func runDetectorIsolated(ctx context.Context, d Detector, text string, cfg map[string]any) (matches []Match, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("detector panic: %v", rec)
		}
	}()
	return d.Detect(ctx, text, cfg)
}

func detectorName(d Detector) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}
	return string(d.Type())
}

// ByteToRune converts a [byteStart,byteEnd) byte range within text to the
// equivalent half-open character (rune) offsets, matching spec.md §3's
// UTF-8 character-offset convention for Span.CharacterStart/End.
func ByteToRune(text string, byteStart, byteEnd int) (int, int) {
	runeStart, runeEnd := -1, -1
	count := 0
	for i := range text {
		if i == byteStart {
			runeStart = count
		}
		if i == byteEnd {
			runeEnd = count
		}
		count++
	}
	if runeStart == -1 {
		runeStart = count
	}
	if runeEnd == -1 {
		runeEnd = count
	}
	return runeStart, runeEnd
}
