package postfilter

import (
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func TestApply_DropsTooShortName(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeName, Text: "Jo"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 0 {
		t.Errorf("expected 2-letter name to be dropped, got %d survivors", len(out))
	}
	if s.State != span.StateDropped || !s.Ignored {
		t.Errorf("dropped span should be marked State=Dropped, Ignored=true")
	}
}

func TestApply_KeepsLongerName(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeName, Text: "Jonathan"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 1 {
		t.Errorf("expected full name to survive, got %d survivors", len(out))
	}
}

func TestApply_DropsUnderMinimumDigitMRN(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeMRN, Text: "MRN-12"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 0 {
		t.Errorf("expected under-minimum-digit MRN to be dropped, got %d survivors", len(out))
	}
}

func TestApply_KeepsValidMRN(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeMRN, Text: "123456789"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 1 {
		t.Errorf("expected valid MRN to survive, got %d survivors", len(out))
	}
}

func TestApply_DropsNonTemporalNumericRunDate(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeDate, Text: "12345678901234"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 0 {
		t.Errorf("expected long undifferentiated digit run to be dropped, got %d survivors", len(out))
	}
}

func TestApply_KeepsShapedDate(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeDate, Text: "2024-03-15"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 1 {
		t.Errorf("expected a recognizable date shape to survive, got %d survivors", len(out))
	}
}

func TestApply_CallsReleaseOnDrop(t *testing.T) {
	f := Default()
	var released *span.Span
	s := &span.Span{FilterType: span.TypeName, Text: "Jo"}

	f.Apply([]*span.Span{s}, func(sp *span.Span) { released = sp })

	if released != s {
		t.Error("expected release to be called with the dropped span")
	}
}

func TestApply_UnconfiguredTypePassesThrough(t *testing.T) {
	f := Default()
	s := &span.Span{FilterType: span.TypeEmail, Text: "a@b.com"}

	out := f.Apply([]*span.Span{s}, nil)
	if len(out) != 1 {
		t.Errorf("types with no configured rules should always survive, got %d", len(out))
	}
}
