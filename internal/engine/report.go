package engine

import (
	"github.com/clinical-nlp/redact-engine/internal/confidence"
	"github.com/clinical-nlp/redact-engine/internal/detect"
	"github.com/clinical-nlp/redact-engine/internal/plugin"
)

// CacheReport describes a semantic cache lookup for one request (spec.md
// §6: "optional cache{hit,hitType,confidence,lookupTimeMs}").
type CacheReport struct {
	Hit           bool
	HitType       string // "exact" | "structural" | ""
	Confidence    float64
	LookupTimeMs  float64
}

// PluginReport describes plugin-subsystem activity for one request (spec.md
// §6: "optional plugins{enabled,count,shortCircuited,totalPluginTimeMs}").
type PluginReport struct {
	Enabled         bool
	Count           int
	ShortCircuited  bool
	TotalPluginMs   float64
	Failures        []plugin.HookFailure
}

// Report is the full external-interface execution report of spec.md §6.
type Report struct {
	TotalFilters       int
	FiltersExecuted    int
	FiltersDisabled    int
	FiltersFailed      int
	TotalSpansDetected int
	TotalExecutionMs   float64

	Detectors     []detect.DetectorOutcome
	FailedFilters []string

	ConfidenceStages []confidence.StageReport

	Cache   *CacheReport
	Plugins *PluginReport

	// InvariantViolation is set when Redact short-circuited on a fatal
	// invariant error (spec.md §7); RedactedText then equals the original,
	// unmodified input.
	InvariantViolation string
}

func reportFromRun(rr detect.RunReport) Report {
	return Report{
		TotalFilters:       rr.TotalFilters,
		FiltersExecuted:    rr.FiltersExecuted,
		FiltersDisabled:    rr.FiltersDisabled,
		FiltersFailed:      rr.FiltersFailed,
		TotalSpansDetected: rr.TotalSpansDetected,
		TotalExecutionMs:   rr.TotalExecutionMs,
		Detectors:          rr.Detectors,
		FailedFilters:      rr.FailedFilters,
	}
}
