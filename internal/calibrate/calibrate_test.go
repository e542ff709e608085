package calibrate

import (
	"encoding/json"
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func syntheticPoints(n int) []Point {
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		conf := float64(i) / float64(n)
		points = append(points, Point{Confidence: conf, IsActualPHI: conf > 0.5})
	}
	return points
}

func TestCalibrator_ApplyIsIdentityBeforeFit(t *testing.T) {
	c := New(MethodPlatt)
	s := &span.Span{Confidence: 0.42}
	c.Apply([]*span.Span{s})
	if s.Confidence != 0.42 {
		t.Errorf("expected identity passthrough before Fit, got %f", s.Confidence)
	}
}

func TestCalibrator_BelowMinFitPointsStaysUnfit(t *testing.T) {
	c := New(MethodPlatt)
	c.Fit([]LabeledPoint{{Point: Point{Confidence: 0.5, IsActualPHI: true}, FilterType: span.TypeSSN}})
	if c.global.Fitted {
		t.Error("expected global calibrator to remain unfit below MinFitPoints")
	}
}

func TestCalibrator_FitEnoughPointsProducesFittedGlobalModel(t *testing.T) {
	c := New(MethodPlatt)
	points := make([]LabeledPoint, 0, MinFitPoints+5)
	for _, p := range syntheticPoints(MinFitPoints + 5) {
		points = append(points, LabeledPoint{Point: p, FilterType: span.TypeSSN})
	}
	c.Fit(points)
	if !c.global.Fitted {
		t.Error("expected global calibrator to be fitted")
	}

	s := &span.Span{Confidence: 0.5, FilterType: span.TypeEmail} // no per-type calibrator for Email
	c.Apply([]*span.Span{s})
	if s.Confidence == 0.5 {
		t.Error("expected the global calibrator to adjust the score")
	}
}

func TestCalibrator_PerTypeCalibratorPreferredWhenFitted(t *testing.T) {
	c := New(MethodPlatt)
	var points []LabeledPoint
	for _, p := range syntheticPoints(MinFitPoints + 5) {
		points = append(points, LabeledPoint{Point: p, FilterType: span.TypeName})
	}
	for _, p := range syntheticPoints(MinSubtypeSamples + 5) {
		points = append(points, LabeledPoint{Point: p, FilterType: span.TypeSSN})
	}
	c.Fit(points)

	if _, ok := c.perType[span.TypeSSN]; !ok {
		t.Fatal("expected a per-type calibrator for SSN given >= MinSubtypeSamples points")
	}
	if _, ok := c.perType[span.TypeName]; ok {
		t.Error("did not expect a per-type calibrator for NAME below MinSubtypeSamples")
	}
}

func TestCalibrator_MarshalUnmarshalRoundTrip(t *testing.T) {
	c := New(MethodPlatt)
	var points []LabeledPoint
	for _, p := range syntheticPoints(MinFitPoints + 5) {
		points = append(points, LabeledPoint{Point: p, FilterType: span.TypeSSN})
	}
	c.Fit(points)

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	restored := &Calibrator{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !restored.global.Fitted {
		t.Error("expected restored calibrator's global model to be fitted")
	}

	s1 := &span.Span{Confidence: 0.33, FilterType: span.TypeSSN}
	s2 := &span.Span{Confidence: 0.33, FilterType: span.TypeSSN}
	c.Apply([]*span.Span{s1})
	restored.Apply([]*span.Span{s2})
	if s1.Confidence != s2.Confidence {
		t.Errorf("expected identical calibration after round trip, got %f vs %f", s1.Confidence, s2.Confidence)
	}
}

func TestEvaluate_PerfectCalibrationHasLowECE(t *testing.T) {
	points := []Point{
		{Confidence: 0.1, IsActualPHI: false},
		{Confidence: 0.1, IsActualPHI: false},
		{Confidence: 0.9, IsActualPHI: true},
		{Confidence: 0.9, IsActualPHI: true},
	}
	report := Evaluate(points)
	if report.ECE > 0.2 {
		t.Errorf("expected low ECE for well-separated points, got %f", report.ECE)
	}
	if len(report.ReliabilityCurve) != eceBins {
		t.Errorf("expected %d reliability bins, got %d", eceBins, len(report.ReliabilityCurve))
	}
}
