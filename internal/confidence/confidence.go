// Package confidence implements the ordered, individually-toggleable
// confidence pipeline of spec.md §4.5: a chain of pure spans -> spans
// functions that mutate only Confidence and AmbiguousWith.
package confidence

import (
	"math"
	"time"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Stage is one pipeline step.
type Stage interface {
	Name() string
	Run(spans []*span.Span, text string) []*span.Span
}

// StageReport measures one stage's effect (spec.md §4.5: "spans modified,
// average Δconfidence, elapsed ms").
type StageReport struct {
	Stage           string
	SpansModified   int
	AvgDeltaConf    float64
	ElapsedMs       float64
}

// Pipeline runs a fixed, ordered sequence of toggleable stages.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds the default stage order from spec.md §4.5. Any stage
// with a nil entry is skipped (toggle off); ClinicalContextModifier is
// nil-by-default per the spec ("optional, off by default").
func NewPipeline(stages ...Stage) *Pipeline {
	p := &Pipeline{}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// Run executes every configured stage in order and returns per-stage
// measurements alongside the mutated span set (mutation is in place;
// the returned slice may additionally differ in length if a stage drops
// auto-rejected spans — this pipeline itself never drops spans, callers
// do that via Overlap Resolver / Post-Filter).
func (p *Pipeline) Run(spans []*span.Span, text string) ([]*span.Span, []StageReport) {
	reports := make([]StageReport, 0, len(p.stages))
	for _, st := range p.stages {
		before := snapshotConfidence(spans)
		start := time.Now()
		spans = st.Run(spans, text)
		elapsed := time.Since(start)

		modified := 0
		var deltaSum float64
		for _, s := range spans {
			prev, ok := before[s]
			if !ok {
				continue
			}
			d := s.Confidence - prev
			if d != 0 {
				modified++
				deltaSum += d
			}
		}
		avg := 0.0
		if modified > 0 {
			avg = deltaSum / float64(modified)
		}
		reports = append(reports, StageReport{
			Stage:         st.Name(),
			SpansModified: modified,
			AvgDeltaConf:  avg,
			ElapsedMs:     float64(elapsed.Microseconds()) / 1000.0,
		})
	}
	return spans, reports
}

func snapshotConfidence(spans []*span.Span) map[*span.Span]float64 {
	m := make(map[*span.Span]float64, len(spans))
	for _, s := range spans {
		m[s] = s.Confidence
	}
	return m
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
