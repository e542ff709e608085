// Package metrics provides lightweight, lock-minimal performance counters
// for the redaction engine, plus a Prometheus exposition alongside the
// existing JSON snapshot (spec.md's ambient observability stack, carried
// over from the teacher's proxy metrics in the same shape: atomic counters
// for hot-path volume, a mutex-guarded accumulator per latency dimension).
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all runtime counters for a running engine instance.
// The zero value is not ready to use; call New().
type Metrics struct {
	RequestsTotal     atomic.Int64
	RequestsRedacted  atomic.Int64
	RequestsCacheHit  atomic.Int64
	RequestsInvariant atomic.Int64

	DetectorFailures atomic.Int64
	PluginFailures   atomic.Int64

	SpansDetected atomic.Int64
	SpansApplied  atomic.Int64
	SpansDropped  atomic.Int64

	pipelineMu   sync.Mutex
	pipelineStat latencyStats

	detectMu   sync.Mutex
	detectStat latencyStats

	startTime time.Time

	promRequests  prometheus.Counter
	promCacheHits prometheus.Counter
	promSpans     *prometheus.CounterVec
	promLatency   prometheus.Histogram
}

// New returns a new Metrics with the start time recorded and its
// Prometheus collectors registered against reg (pass prometheus.NewRegistry()
// for an isolated registry, or prometheus.DefaultRegisterer to expose on the
// process-wide /metrics convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{startTime: time.Now()}

	m.promRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redact_requests_total",
		Help: "Total redaction requests processed.",
	})
	m.promCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redact_cache_hits_total",
		Help: "Semantic cache hits.",
	})
	m.promSpans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redact_spans_total",
		Help: "Spans processed, by outcome (detected|applied|dropped).",
	}, []string{"outcome"})
	m.promLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "redact_pipeline_duration_ms",
		Help:    "End-to-end pipeline latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	})

	if reg != nil {
		reg.MustRegister(m.promRequests, m.promCacheHits, m.promSpans, m.promLatency)
	}
	return m
}

// RecordRequest records one completed request's outcome.
func (m *Metrics) RecordRequest(cacheHit, invariantViolation bool) {
	m.RequestsTotal.Add(1)
	m.promRequests.Inc()
	if cacheHit {
		m.RequestsCacheHit.Add(1)
		m.promCacheHits.Inc()
		return
	}
	if invariantViolation {
		m.RequestsInvariant.Add(1)
		return
	}
	m.RequestsRedacted.Add(1)
}

// RecordSpans records one request's span counts at each outcome.
func (m *Metrics) RecordSpans(detected, applied, dropped int) {
	m.SpansDetected.Add(int64(detected))
	m.SpansApplied.Add(int64(applied))
	m.SpansDropped.Add(int64(dropped))
	m.promSpans.WithLabelValues("detected").Add(float64(detected))
	m.promSpans.WithLabelValues("applied").Add(float64(applied))
	m.promSpans.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordPipelineLatency records one full Redact call's wall-clock duration.
func (m *Metrics) RecordPipelineLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	m.pipelineMu.Lock()
	m.pipelineStat.record(ms)
	m.pipelineMu.Unlock()
	m.promLatency.Observe(ms)
}

// RecordDetectorLatency records one Parallel Detector Runner pass.
func (m *Metrics) RecordDetectorLatency(d time.Duration) {
	m.detectMu.Lock()
	m.detectStat.record(float64(d.Microseconds()) / 1000.0)
	m.detectMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.pipelineMu.Lock()
	pipeline := m.pipelineStat.snapshot()
	m.pipelineMu.Unlock()

	m.detectMu.Lock()
	detect := m.detectStat.snapshot()
	m.detectMu.Unlock()

	return Snapshot{
		Requests: RequestSnapshot{
			Total:     m.RequestsTotal.Load(),
			Redacted:  m.RequestsRedacted.Load(),
			CacheHit:  m.RequestsCacheHit.Load(),
			Invariant: m.RequestsInvariant.Load(),
		},
		Failures: FailureSnapshot{
			Detector: m.DetectorFailures.Load(),
			Plugin:   m.PluginFailures.Load(),
		},
		Spans: SpanSnapshot{
			Detected: m.SpansDetected.Load(),
			Applied:  m.SpansApplied.Load(),
			Dropped:  m.SpansDropped.Load(),
		},
		Latency: LatencyGroup{
			PipelineMs: pipeline,
			DetectorMs: detect,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot `json:"requests"`
	Failures   FailureSnapshot `json:"failures"`
	Spans      SpanSnapshot    `json:"spans"`
	Latency    LatencyGroup    `json:"latency"`
	UptimeSecs float64         `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total     int64 `json:"total"`
	Redacted  int64 `json:"redacted"`
	CacheHit  int64 `json:"cacheHit"`
	Invariant int64 `json:"invariant"`
}

// FailureSnapshot holds isolated-failure counters.
type FailureSnapshot struct {
	Detector int64 `json:"detector"`
	Plugin   int64 `json:"plugin"`
}

// SpanSnapshot holds span-volume counters by outcome.
type SpanSnapshot struct {
	Detected int64 `json:"detected"`
	Applied  int64 `json:"applied"`
	Dropped  int64 `json:"dropped"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	PipelineMs LatencySnapshot `json:"pipelineMs"`
	DetectorMs LatencySnapshot `json:"detectorMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
