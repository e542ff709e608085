package detectors

import (
	"context"
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

func findDetector(t *testing.T, name string) *regexDetector {
	t.Helper()
	for _, d := range Default() {
		if rd, ok := d.(*regexDetector); ok && rd.name == name {
			return rd
		}
	}
	t.Fatalf("no detector named %q in Default()", name)
	return nil
}

func TestDefault_CoversBroadSpreadOfTypes(t *testing.T) {
	seen := map[span.FilterType]bool{}
	for _, d := range Default() {
		if d.Type() == "" {
			t.Errorf("detector %T has empty Type()", d)
		}
		seen[d.Type()] = true
	}
	if len(seen) < 10 {
		t.Errorf("expected a broad spread of PHI types, got %d distinct types", len(seen))
	}
}

func TestEmailDetector_MatchesAddress(t *testing.T) {
	d := findDetector(t, "email")
	matches, err := d.Detect(context.Background(), "contact alice@example.com for records", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Pattern != "email" {
		t.Errorf("Pattern: got %q, want %q", matches[0].Pattern, "email")
	}
}

func TestEmailDetector_NoMatchOnPlainText(t *testing.T) {
	d := findDetector(t, "email")
	matches, err := d.Detect(context.Background(), "no identifiers in this sentence", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected 0 matches, got %d", len(matches))
	}
}

func TestSSNDetector_MatchesDashedAndBareForms(t *testing.T) {
	d := findDetector(t, "ssn")
	matches, err := d.Detect(context.Background(), "SSN 123-45-6789 and 123456789 on file", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestNPIDetector_RequiresTenDigits(t *testing.T) {
	d := findDetector(t, "npi")
	matches, err := d.Detect(context.Background(), "NPI: 1234567890", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 match, got %d", len(matches))
	}

	matches, err = d.Detect(context.Background(), "NPI: 12345", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("short NPI should not match, got %d matches", len(matches))
	}
}

func TestRegexDetector_ConfidenceIsCarriedOnEveryMatch(t *testing.T) {
	d := findDetector(t, "ssn")
	matches, err := d.Detect(context.Background(), "123-45-6789", nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(matches) != 1 || matches[0].Confidence != d.confidence {
		t.Errorf("expected confidence %v on every match, got %+v", d.confidence, matches)
	}
}
