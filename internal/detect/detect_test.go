package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinical-nlp/redact-engine/internal/logger"
	"github.com/clinical-nlp/redact-engine/internal/span"
)

func TestTimeoutPolicy_ClampsToMinAndMax(t *testing.T) {
	p := TimeoutPolicy{Base: 50 * time.Millisecond, PerKB: 5 * time.Millisecond, Min: 25 * time.Millisecond, Max: 100 * time.Millisecond}
	if got := p.For(0); got != 50*time.Millisecond {
		t.Errorf("For(0): got %v", got)
	}
	if got := p.For(100_000); got != 100*time.Millisecond {
		t.Errorf("expected clamp to Max, got %v", got)
	}
}

type fakeDetector struct {
	typ      span.FilterType
	priority int
	matches  []Match
	err      error
	panics   bool
}

func (f fakeDetector) Type() span.FilterType { return f.typ }
func (f fakeDetector) Priority() int         { return f.priority }
func (f fakeDetector) Detect(_ context.Context, _ string, _ map[string]any) ([]Match, error) {
	if f.panics {
		panic("kaboom")
	}
	return f.matches, f.err
}

func testFactory() *span.Factory {
	return span.NewFactory(span.NewPool(16))
}

func testLogger() *logger.Logger {
	return logger.New("detect-test", "error")
}

func TestRunner_Run_MergesEnabledDetectorsAndSkipsDisabled(t *testing.T) {
	text := "ssn 111-22-3333 and more"
	enabled := fakeDetector{typ: span.TypeSSN, priority: 100, matches: []Match{{ByteStart: 4, ByteEnd: 15, Confidence: 0.9, Pattern: "ssn"}}}
	disabled := fakeDetector{typ: span.TypePhone, priority: 100, matches: []Match{{ByteStart: 0, ByteEnd: 3, Confidence: 0.9}}}

	r := NewRunner(Parallel, 2, DefaultTimeoutPolicy, testFactory(), testLogger())
	spans, report := r.Run(context.Background(), text, []Handle{
		{Detector: enabled, Enabled: true},
		{Detector: disabled, Enabled: false},
	})

	if len(spans) != 1 {
		t.Fatalf("expected 1 span from the enabled detector, got %d", len(spans))
	}
	if report.FiltersDisabled != 1 || report.FiltersExecuted != 1 {
		t.Errorf("expected 1 disabled + 1 executed, got %+v", report)
	}
	if report.TotalSpansDetected != 1 {
		t.Errorf("expected TotalSpansDetected=1, got %d", report.TotalSpansDetected)
	}
}

func TestRunner_Run_IsolatesDetectorErrorsAndPanics(t *testing.T) {
	text := "some text"
	failing := fakeDetector{typ: span.TypeSSN, priority: 100, err: errors.New("boom")}
	panicking := fakeDetector{typ: span.TypePhone, priority: 100, panics: true}
	ok := fakeDetector{typ: span.TypeEmail, priority: 100, matches: []Match{{ByteStart: 0, ByteEnd: 4, Confidence: 0.8}}}

	r := NewRunner(Parallel, 2, DefaultTimeoutPolicy, testFactory(), testLogger())
	spans, report := r.Run(context.Background(), text, []Handle{
		{Detector: failing, Enabled: true},
		{Detector: panicking, Enabled: true},
		{Detector: ok, Enabled: true},
	})

	if len(spans) != 1 {
		t.Fatalf("expected only the healthy detector's span, got %d", len(spans))
	}
	if report.FiltersFailed != 2 {
		t.Errorf("expected 2 failed filters (error + panic), got %d", report.FiltersFailed)
	}
	if len(report.FailedFilters) != 2 {
		t.Errorf("expected 2 entries in FailedFilters, got %v", report.FailedFilters)
	}
}

func TestRunner_Run_SequentialModelProducesSameSpanCount(t *testing.T) {
	text := "abcd"
	d := fakeDetector{typ: span.TypeSSN, priority: 100, matches: []Match{{ByteStart: 0, ByteEnd: 4, Confidence: 0.9}}}

	r := NewRunner(Sequential, 0, DefaultTimeoutPolicy, testFactory(), testLogger())
	spans, report := r.Run(context.Background(), text, []Handle{{Detector: d, Enabled: true}})
	if len(spans) != 1 || report.FiltersExecuted != 1 {
		t.Errorf("expected 1 span and 1 executed filter, got %d spans, %+v", len(spans), report)
	}
}

func TestDFAPreScanner_EmptyKeywordsDisablesScanning(t *testing.T) {
	d := NewDFAPreScanner(nil)
	if d.Enabled() {
		t.Error("expected a nil-keyword scanner to be disabled")
	}
	if got := d.Scan("ssn and dob"); got != nil {
		t.Errorf("expected nil scan result when disabled, got %v", got)
	}
}

func TestDFAPreScanner_ScanFindsKnownKeywords(t *testing.T) {
	d := NewDFAPreScanner(map[string]span.FilterType{"ssn": span.TypeSSN, "dob": span.TypeDate})
	hits := d.Scan("patient ssn and dob on file")
	if len(hits[span.TypeSSN]) != 1 {
		t.Errorf("expected 1 ssn hit, got %d", len(hits[span.TypeSSN]))
	}
	if len(hits[span.TypeDate]) != 1 {
		t.Errorf("expected 1 dob hit, got %d", len(hits[span.TypeDate]))
	}
	for _, matches := range hits {
		for _, m := range matches {
			if m.Confidence != 0.3 {
				t.Errorf("expected DFA hits to carry confidence 0.3, got %f", m.Confidence)
			}
		}
	}
}

func TestFieldContextAnalyzer_FindsLabeledValueRegion(t *testing.T) {
	a := NewFieldContextAnalyzer(nil)
	text := "MRN: 00912345\nDOB: 01/02/1980\n"
	regions, _ := a.Analyze(text, testFactory())

	if len(regions) != 2 {
		t.Fatalf("expected 2 field regions, got %d: %+v", len(regions), regions)
	}
	var sawMRN, sawDOB bool
	for _, r := range regions {
		switch r.ExpectedType {
		case span.TypeMRN:
			sawMRN = true
		case span.TypeDate:
			sawDOB = true
		}
	}
	if !sawMRN || !sawDOB {
		t.Errorf("expected both MRN and DOB regions, got %+v", regions)
	}
}

func TestFieldContextAnalyzer_IgnoresUnknownLabels(t *testing.T) {
	a := NewFieldContextAnalyzer(nil)
	regions, _ := a.Analyze("RANDOM FIELD: some value\n", testFactory())
	if len(regions) != 0 {
		t.Errorf("expected no regions for an unrecognized label, got %+v", regions)
	}
}

func TestFieldContextAnalyzer_DetectsMultiLinePatientName(t *testing.T) {
	a := NewFieldContextAnalyzer(nil)
	text := "PATIENT:\nJANE SMITH\nDOB: 01/01/1990\n"
	_, synthesized := a.Analyze(text, testFactory())

	var found bool
	for _, s := range synthesized {
		if s.FilterType == span.TypeName && s.Text == "JANE SMITH" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a synthesized multi-line patient name span, got %+v", synthesized)
	}
}

func TestFieldContextAnalyzer_SkipsAllReservedStructuralHeading(t *testing.T) {
	a := NewFieldContextAnalyzer(nil)
	text := "PATIENT:\nCLINICAL IMPRESSION\n"
	_, synthesized := a.Analyze(text, testFactory())
	for _, s := range synthesized {
		if s.FilterType == span.TypeName {
			t.Errorf("did not expect a reserved structural heading to be treated as a patient name, got %q", s.Text)
		}
	}
}

func TestFieldContextAnalyzer_DetectsMultiLineFileNumber(t *testing.T) {
	a := NewFieldContextAnalyzer(nil)
	text := "FILE #:\n00-912345\n"
	_, synthesized := a.Analyze(text, testFactory())

	var found bool
	for _, s := range synthesized {
		if s.FilterType == span.TypeMRN {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a synthesized MRN span from the FILE # line, got %+v", synthesized)
	}
}

func TestDetectorName_PrefersNameMethodOverType(t *testing.T) {
	named := namedFakeDetector{fakeDetector: fakeDetector{typ: span.TypeSSN}, name: "ssn-regex"}
	if got := detectorName(named); got != "ssn-regex" {
		t.Errorf("expected Name() to be preferred, got %q", got)
	}
	unnamed := fakeDetector{typ: span.TypePhone}
	if got := detectorName(unnamed); got != string(span.TypePhone) {
		t.Errorf("expected fallback to Type(), got %q", got)
	}
}

type namedFakeDetector struct {
	fakeDetector
	name string
}

func (n namedFakeDetector) Name() string { return n.name }
