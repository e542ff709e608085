package engine

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/clinical-nlp/redact-engine/internal/apply"
	"github.com/clinical-nlp/redact-engine/internal/cache"
	"github.com/clinical-nlp/redact-engine/internal/calibrate"
	"github.com/clinical-nlp/redact-engine/internal/confidence"
	"github.com/clinical-nlp/redact-engine/internal/detect"
	"github.com/clinical-nlp/redact-engine/internal/detectors"
	"github.com/clinical-nlp/redact-engine/internal/logger"
	"github.com/clinical-nlp/redact-engine/internal/metrics"
	"github.com/clinical-nlp/redact-engine/internal/overlap"
	"github.com/clinical-nlp/redact-engine/internal/plugin"
	"github.com/clinical-nlp/redact-engine/internal/policy"
	"github.com/clinical-nlp/redact-engine/internal/postfilter"
	"github.com/clinical-nlp/redact-engine/internal/reason"
	"github.com/clinical-nlp/redact-engine/internal/span"
	"github.com/clinical-nlp/redact-engine/internal/whitelist"
	"github.com/clinical-nlp/redact-engine/internal/window"
)

// Engine is the assembled redaction pipeline of spec.md §2: every stage
// built once at construction and reused, request-scoped state (spans,
// text) passed through Redact.
type Engine struct {
	cfg *Config
	log *logger.Logger

	pool    *span.Pool
	factory *span.Factory

	fieldContext *detect.FieldContextAnalyzer
	dfa          *detect.DFAPreScanner
	runner       *detect.Runner
	handles      []detect.Handle

	whitelistChain *whitelist.Chain
	confidencePipe *confidence.Pipeline
	reasoner       *reason.Reasoner
	calibrator     *calibrate.Calibrator
	overlapR       *overlap.Resolver
	postFilter     *postfilter.Filter
	applier        *apply.Applier

	semanticCache *cache.SemanticCache
	plugins       *plugin.Manager

	metrics *metrics.Metrics
}

// New assembles an Engine from cfg, wiring every stage in spec.md §2's
// fixed order. det overrides the detector set (detectors.Default() when
// nil) so callers can register custom leaves without touching the engine.
// m is optional; pass nil to run without metrics collection.
func New(cfg *Config, det []detect.Detector, plugins []plugin.Plugin, m *metrics.Metrics) (*Engine, error) {
	log := logger.New("ENGINE", cfg.LogLevel)

	pool := span.NewPool(cfg.SpanPoolCapacity)
	factory := span.NewFactory(pool)

	if det == nil {
		det = detectors.Default()
	}
	handles := make([]detect.Handle, len(det))
	for i, d := range det {
		handles[i] = detect.Handle{Detector: d, Enabled: true}
	}

	runner := detect.NewRunner(cfg.ExecutionModel(), cfg.Workers(), cfg.TimeoutPolicy(), factory, logger.New("DETECT", cfg.LogLevel))

	var dfa *detect.DFAPreScanner
	if cfg.EnableDFAPreScan {
		dfa = detect.NewDFAPreScanner(detect.DefaultDFAKeywords)
	} else {
		dfa = detect.NewDFAPreScanner(nil)
	}

	var semanticCache *cache.SemanticCache
	if cfg.EnableSemanticCache {
		backing := cache.NewMemoryCache()
		if cfg.CachePath != "" {
			bc, err := cache.NewBboltCache(cfg.CachePath)
			if err != nil {
				return nil, wrapKind(KindResource, err)
			}
			backing = bc
		}
		s3 := cache.NewS3FIFOCache(backing, cfg.CacheCapacity)
		semanticCache = cache.New(s3, time.Duration(cfg.CacheTTLHours)*time.Hour)
	}

	var calibrator *calibrate.Calibrator
	if cfg.CalibratorPath != "" {
		data, err := os.ReadFile(cfg.CalibratorPath)
		if err != nil {
			return nil, wrapKind(KindConfig, err)
		}
		calibrator = calibrate.New(calibrate.MethodPlatt)
		if err := json.Unmarshal(data, calibrator); err != nil {
			return nil, wrapKind(KindConfig, err)
		}
	}

	e := &Engine{
		cfg:            cfg,
		log:            log,
		pool:           pool,
		factory:        factory,
		fieldContext:   detect.NewFieldContextAnalyzer(detect.DefaultLabels),
		dfa:            dfa,
		runner:         runner,
		handles:        handles,
		whitelistChain: whitelist.Default(whitelist.DefaultVocabulary()),
		confidencePipe: buildConfidencePipeline(cfg),
		reasoner:       reason.NewReasoner(reason.DefaultRules),
		calibrator:     calibrator,
		overlapR:       overlap.NewResolver(factory.Release),
		postFilter:     postfilter.Default(),
		applier:        apply.NewApplier(apply.NewTokenMinter()),
		semanticCache:  semanticCache,
		plugins:        plugin.NewManager(plugins...),
		metrics:        m,
	}
	return e, nil
}

func buildConfidencePipeline(cfg *Config) *confidence.Pipeline {
	vocab := whitelist.DefaultVocabulary()
	var clinical confidence.Stage
	if cfg.EnableGlobalContext {
		clinical = confidence.ClinicalContextModifier{
			IndicatorWords:    vocab.Diseases,
			MinIndicatorWords: 2,
			Boost:             0.05,
		}
	}
	return confidence.NewPipeline(
		confidence.BasicContextModifier{},
		confidence.EnsembleEnhancer{Vocabulary: vocab.Medications},
		confidence.VectorDisambiguation{},
		clinical,
	)
}

// Redact runs the full pipeline of spec.md §2 over text under pol, returning
// the redacted text, the final applied spans, and an execution report. On
// an InvariantError the original text is returned unchanged (spec.md §7).
func (e *Engine) Redact(ctx context.Context, text string, pol *policy.Policy) (redactedOut string, spansOut []*span.Span, reportOut Report, errOut error) {
	pipelineStart := time.Now()
	cacheHit := false
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordRequest(cacheHit, reportOut.InvariantViolation != "")
			e.metrics.RecordPipelineLatency(time.Since(pipelineStart))
		}
	}()

	if err := pol.Validate(); err != nil {
		return text, nil, Report{}, wrapKind(KindConfig, err)
	}
	if pol != nil && pol.Limits.MaxInputBytes > 0 && len(text) > pol.Limits.MaxInputBytes {
		err := invariantError("max-input-bytes", "input exceeds the policy's maxInputBytes limit")
		return text, nil, Report{InvariantViolation: "max-input-bytes"}, err
	}

	if e.cfg.EnablePlugins {
		if res, ok := e.plugins.RunShortCircuit(ctx, text); ok {
			spans := make([]*span.Span, 0, len(res.Result.Spans))
			return res.Result.RedactedText, spans, Report{
				Plugins: &PluginReport{Enabled: true, ShortCircuited: true, Failures: e.plugins.Failures()},
			}, nil
		}
	}

	if e.cfg.EnablePlugins {
		text = e.plugins.RunPreProcess(ctx, text)
	}

	runes := []rune(text)

	var cacheReport *CacheReport
	var cacheKey string
	if e.semanticCache != nil {
		policyHash := policyHash(pol)
		structHash := cache.StructureHash(text)
		cacheKey = cache.Key(policyHash, structHash)
		start := time.Now()
		if entry, ok := e.semanticCache.Lookup(cacheKey); ok {
			cacheHit = true
			cacheReport = &CacheReport{Hit: true, HitType: "structural", LookupTimeMs: elapsedMs(start)}
			replayed, ok := e.replayCacheEntry(entry, runes, pol)
			if ok {
				return replayed, nil, Report{Cache: cacheReport}, nil
			}
			// The cached span offsets no longer fit this request's text
			// (structural hash collision against a shorter/differently-typed
			// document) — fall through and run the full pipeline instead of
			// ever returning another request's stored output.
			cacheHit = false
			cacheReport.Hit = false
		}
		if cacheReport == nil {
			cacheReport = &CacheReport{Hit: false, LookupTimeMs: elapsedMs(start)}
		}
	}

	regions, fieldSpans := e.fieldContext.Analyze(text, e.factory)

	detectStart := time.Now()
	detected, runReport := e.runner.Run(ctx, text, e.handles)
	if e.metrics != nil {
		e.metrics.RecordDetectorLatency(time.Since(detectStart))
		e.metrics.DetectorFailures.Add(int64(runReport.FiltersFailed))
	}
	detected = append(detected, fieldSpans...)

	if e.dfa.Enabled() {
		lowered := strings.ToLower(text)
		for filterType, matches := range e.dfa.Scan(lowered) {
			for _, m := range matches {
				// Scan runs over a lowercased copy of text; ToLower never
				// inserts or deletes runes, only recases them in place, so a
				// rune offset computed against lowered is the same offset
				// into the original text.
				rs, re := detect.ByteToRune(lowered, m.ByteStart, m.ByteEnd)
				s, err := e.factory.New(text, rs, re, filterType, m.Confidence, detect.LowPriority, m.Pattern)
				if err != nil {
					continue
				}
				detected = append(detected, s)
			}
		}
	}

	if e.cfg.EnablePlugins {
		detected = e.plugins.RunPostDetection(ctx, detected)
	}

	detect.ApplyFieldRegions(detected, regions)

	for _, s := range detected {
		s.State = span.StateEnriched
	}

	surviving := e.whitelistChain.Run(detected, text)
	window.Attach(runes, surviving)

	confReports := e.runConfidence(ctx, surviving, text)

	for _, s := range surviving {
		s.State = span.StateScored
	}

	if e.calibrator != nil {
		e.calibrator.Apply(surviving)
	}

	resolved := e.overlapR.Resolve(surviving)
	finalSpans := e.postFilter.Apply(resolved, e.factory.Release)

	for _, s := range finalSpans {
		s.State = span.StateSelected
	}

	if e.cfg.EnablePlugins {
		finalSpans = e.plugins.RunPreRedaction(ctx, finalSpans)
	}

	for _, s := range finalSpans {
		s.State = span.StateTokenized
	}

	redacted := e.applier.Apply(runes, finalSpans, pol)

	if e.cfg.EnablePlugins {
		result := plugin.Result{RedactedText: redacted}
		out := e.plugins.RunPostRedaction(ctx, result)
		redacted = out.RedactedText
	}

	if e.semanticCache != nil && cacheKey != "" {
		snaps := make([]cache.SpanSnapshot, len(finalSpans))
		for i, s := range finalSpans {
			snaps[i] = cache.SpanSnapshot{
				CharacterStart: s.CharacterStart,
				CharacterEnd:   s.CharacterEnd,
				FilterType:     s.FilterType,
				Confidence:     s.Confidence,
				Replacement:    s.Replacement,
			}
		}
		e.semanticCache.Store(cacheKey, redacted, snaps, len(runes))
	}

	report := reportFromRun(runReport)
	report.ConfidenceStages = confReports
	report.Cache = cacheReport
	if e.cfg.EnablePlugins {
		failures := e.plugins.Failures()
		report.Plugins = &PluginReport{Enabled: true, Count: 0, Failures: failures}
		if e.metrics != nil {
			e.metrics.PluginFailures.Add(int64(len(failures)))
		}
	}

	if e.metrics != nil {
		e.metrics.RecordSpans(len(detected), len(finalSpans), len(detected)-len(finalSpans))
	}

	return redacted, finalSpans, report, nil
}

// replayCacheEntry rebuilds a redacted string for the current request's
// runes from a cached entry's span snapshots, rather than trusting the
// cached entry's own RedactedText: StructureHash is deliberately content-
// blind, so two different documents sharing a shape collide on the same
// cache key, and returning the stored string verbatim would leak one
// patient's redacted text into another's response. Every offset is
// re-validated against the current runes and every replacement is re-minted
// against the current text and policy/session, so only the cached *shape*
// of the redaction (which ranges, which types) is reused, never its content.
func (e *Engine) replayCacheEntry(entry cache.Entry, runes []rune, pol *policy.Policy) (string, bool) {
	rebuilt := make([]*span.Span, 0, len(entry.Spans))
	for _, snap := range entry.Spans {
		if snap.CharacterStart < 0 || snap.CharacterEnd > len(runes) || snap.CharacterStart >= snap.CharacterEnd {
			return "", false
		}
		rebuilt = append(rebuilt, &span.Span{
			CharacterStart: snap.CharacterStart,
			CharacterEnd:   snap.CharacterEnd,
			FilterType:     snap.FilterType,
			Confidence:     snap.Confidence,
			Text:           string(runes[snap.CharacterStart:snap.CharacterEnd]),
			// Replacement deliberately left blank: resolveReplacement mints a
			// fresh token (or applies the current policy's replacement) from
			// the current request's text and session, never the cached one.
		})
	}
	return e.applier.Apply(runes, rebuilt, pol), true
}

func (e *Engine) runConfidence(ctx context.Context, spans []*span.Span, text string) []confidence.StageReport {
	spans, reports := e.confidencePipe.Run(spans, text)
	switch e.cfg.ReasonerModel {
	case ReasonerImperative:
		e.reasoner.RunImperative(spans)
	default:
		_ = e.reasoner.Run(ctx, spans)
	}
	return reports
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func policyHash(pol *policy.Policy) string {
	if pol == nil {
		return "default"
	}
	var b strings.Builder
	for t, id := range pol.Identifiers {
		b.WriteString(string(t))
		if id.Enabled {
			b.WriteString("=1;")
		} else {
			b.WriteString("=0;")
		}
	}
	return b.String()
}
