package confidence

import (
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func TestPipeline_SkipsNilStages(t *testing.T) {
	p := NewPipeline(BasicContextModifier{}, nil, VectorDisambiguation{})
	if len(p.stages) != 2 {
		t.Fatalf("expected 2 non-nil stages, got %d", len(p.stages))
	}
}

func TestPipeline_ReportsPerStageDelta(t *testing.T) {
	p := NewPipeline(BasicContextModifier{})
	s := &span.Span{Confidence: 0.5, Window: span.Window{Before: []string{"SSN", ":"}}}

	_, reports := p.Run([]*span.Span{s}, "")

	if len(reports) != 1 {
		t.Fatalf("expected 1 stage report, got %d", len(reports))
	}
	if reports[0].SpansModified != 1 {
		t.Errorf("expected 1 modified span, got %d", reports[0].SpansModified)
	}
	if reports[0].AvgDeltaConf <= 0 {
		t.Errorf("expected positive delta after a label-cue boost, got %f", reports[0].AvgDeltaConf)
	}
}

func TestBasicContextModifier_BoostsOnLabelCue(t *testing.T) {
	s := &span.Span{Confidence: 0.5, Window: span.Window{Before: []string{"MRN", ":"}}}
	BasicContextModifier{}.Run([]*span.Span{s}, "")
	if s.Confidence <= 0.5 {
		t.Errorf("expected a boost after a label cue, got %f", s.Confidence)
	}
}

func TestBasicContextModifier_PenalizesOnDeboostCue(t *testing.T) {
	s := &span.Span{Confidence: 0.5, Window: span.Window{Before: []string{"Dr."}}}
	BasicContextModifier{}.Run([]*span.Span{s}, "")
	if s.Confidence >= 0.5 {
		t.Errorf("expected a penalty after a de-boost cue, got %f", s.Confidence)
	}
}

func TestEnsembleEnhancer_SkipsAlreadyApprovedSpans(t *testing.T) {
	s := &span.Span{Confidence: 0.95}
	EnsembleEnhancer{}.Run([]*span.Span{s}, "")
	if s.Confidence != 0.95 {
		t.Errorf("auto-approved span should not be touched, got %f", s.Confidence)
	}
}

func TestEnsembleEnhancer_SkipsAlreadyRejectedSpans(t *testing.T) {
	s := &span.Span{Confidence: 0.05}
	EnsembleEnhancer{}.Run([]*span.Span{s}, "")
	if s.Confidence != 0.05 {
		t.Errorf("auto-rejected span should not be touched, got %f", s.Confidence)
	}
}

func TestEnsembleEnhancer_PenalizesVocabularyMatch(t *testing.T) {
	s := &span.Span{Confidence: 0.5, Text: "diabetes", Pattern: "ner"}
	vocab := map[string]bool{"diabetes": true}
	EnsembleEnhancer{Vocabulary: vocab}.Run([]*span.Span{s}, "")
	if s.Confidence >= 0.5 {
		t.Errorf("expected whitelist signal to reduce confidence, got %f", s.Confidence)
	}
}

func TestVectorDisambiguation_MarksOverlapsAndAppliesPenalty(t *testing.T) {
	a := &span.Span{CharacterStart: 0, CharacterEnd: 10, FilterType: span.TypeName, Confidence: 0.8}
	b := &span.Span{CharacterStart: 5, CharacterEnd: 15, FilterType: span.TypeProviderName, Confidence: 0.8}

	VectorDisambiguation{}.Run([]*span.Span{a, b}, "")

	if len(a.AmbiguousWith) != 1 || a.AmbiguousWith[0] != span.TypeProviderName {
		t.Errorf("expected a.AmbiguousWith to include b's type, got %v", a.AmbiguousWith)
	}
	if a.Confidence >= 0.8 || b.Confidence >= 0.8 {
		t.Errorf("expected co-occurrence penalty on both spans")
	}
}

func TestVectorDisambiguation_NonOverlappingSpansUntouched(t *testing.T) {
	a := &span.Span{CharacterStart: 0, CharacterEnd: 5, Confidence: 0.8}
	b := &span.Span{CharacterStart: 10, CharacterEnd: 15, Confidence: 0.8}

	VectorDisambiguation{}.Run([]*span.Span{a, b}, "")

	if len(a.AmbiguousWith) != 0 || len(b.AmbiguousWith) != 0 {
		t.Error("non-overlapping spans should not be marked ambiguous")
	}
}

func TestClinicalContextModifier_RequiresMinimumIndicatorCount(t *testing.T) {
	c := ClinicalContextModifier{
		IndicatorWords:    map[string]bool{"diabetes": true, "hypertension": true},
		MinIndicatorWords: 2,
		Boost:             0.05,
	}
	s := &span.Span{Confidence: 0.5}

	c.Run([]*span.Span{s}, "patient has diabetes") // only one indicator present
	if s.Confidence != 0.5 {
		t.Errorf("should not boost below the indicator-word threshold, got %f", s.Confidence)
	}

	c.Run([]*span.Span{s}, "patient has diabetes and hypertension")
	if s.Confidence <= 0.5 {
		t.Errorf("expected a boost once the indicator-word threshold is met, got %f", s.Confidence)
	}
}
