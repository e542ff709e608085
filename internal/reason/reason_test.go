package reason

import (
	"context"
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func TestRule_MatchIsOrderIndependent(t *testing.T) {
	r := Rule{TypeA: span.TypeSSN, TypeB: span.TypePhone}
	if !r.Match(span.TypeSSN, span.TypePhone) {
		t.Error("expected forward order to match")
	}
	if !r.Match(span.TypePhone, span.TypeSSN) {
		t.Error("expected reverse order to match")
	}
	if r.Match(span.TypeSSN, span.TypeEmail) {
		t.Error("unrelated type pair should not match")
	}
}

func TestRunImperative_ExclusiveRuleLowersLoserConfidence(t *testing.T) {
	ssn := &span.Span{FilterType: span.TypeSSN, CharacterStart: 0, CharacterEnd: 11, Confidence: 0.9}
	phone := &span.Span{FilterType: span.TypePhone, CharacterStart: 12, CharacterEnd: 24, Confidence: 0.6}

	r := NewReasoner(DefaultRules)
	r.RunImperative([]*span.Span{ssn, phone})

	if phone.Confidence >= 0.6 {
		t.Errorf("expected the lower-confidence span (phone) to lose confidence, got %f", phone.Confidence)
	}
	if ssn.Confidence != 0.9 {
		t.Errorf("expected the winner's confidence untouched by the exclusive rule, got %f", ssn.Confidence)
	}
	if len(phone.Adjustments) == 0 {
		t.Error("expected the loser to record an Adjustment")
	}
}

func TestRunImperative_SupportiveRuleBoostsBoth(t *testing.T) {
	name := &span.Span{FilterType: span.TypeName, CharacterStart: 0, CharacterEnd: 10, Confidence: 0.5, Text: "Jane Doe"}
	ssn := &span.Span{FilterType: span.TypeSSN, CharacterStart: 11, CharacterEnd: 22, Confidence: 0.5, Text: "111223333"}

	r := NewReasoner(DefaultRules)
	r.RunImperative([]*span.Span{name, ssn})

	if name.Confidence <= 0.5 || ssn.Confidence <= 0.5 {
		t.Errorf("expected both spans boosted by the ssn-name-supportive rule, got name=%f ssn=%f", name.Confidence, ssn.Confidence)
	}
}

func TestRunImperative_SpansBeyondNearbyWindowUnaffected(t *testing.T) {
	a := &span.Span{FilterType: span.TypeSSN, CharacterStart: 0, CharacterEnd: 11, Confidence: 0.9}
	b := &span.Span{FilterType: span.TypePhone, CharacterStart: 1000, CharacterEnd: 1012, Confidence: 0.6}

	r := NewReasoner(DefaultRules)
	r.RunImperative([]*span.Span{a, b})

	if a.Confidence != 0.9 || b.Confidence != 0.6 {
		t.Errorf("spans outside the nearby window should be untouched, got a=%f b=%f", a.Confidence, b.Confidence)
	}
}

func TestApplyDocumentConsistency_BoostsDominantTypeInSameTextGroup(t *testing.T) {
	a := &span.Span{FilterType: span.TypeName, Text: "Jordan Lee", Confidence: 0.6}
	b := &span.Span{FilterType: span.TypeName, Text: "Jordan Lee", Confidence: 0.6}
	c := &span.Span{FilterType: span.TypeProviderName, Text: "Jordan Lee", Confidence: 0.6}

	r := NewReasoner(nil)
	r.applyDocumentConsistency([]*span.Span{a, b, c})

	if a.Confidence <= 0.6 || b.Confidence <= 0.6 {
		t.Errorf("dominant-type spans should gain confidence, got a=%f b=%f", a.Confidence, b.Confidence)
	}
	if c.Confidence >= 0.6 {
		t.Errorf("minority-type span should lose confidence, got %f", c.Confidence)
	}
}

func TestRun_DatalogPathMatchesImperativeOutcome(t *testing.T) {
	ssnRun := &span.Span{FilterType: span.TypeSSN, CharacterStart: 0, CharacterEnd: 11, Confidence: 0.9}
	phoneRun := &span.Span{FilterType: span.TypePhone, CharacterStart: 12, CharacterEnd: 24, Confidence: 0.6}

	r := NewReasoner(DefaultRules)
	if err := r.Run(context.Background(), []*span.Span{ssnRun, phoneRun}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if phoneRun.Confidence >= 0.6 {
		t.Errorf("expected Run to apply the same exclusive-rule penalty as RunImperative, got %f", phoneRun.Confidence)
	}
}

func TestRun_EmptySpansIsNoop(t *testing.T) {
	r := NewReasoner(nil)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Errorf("expected no error on empty input, got %v", err)
	}
}
