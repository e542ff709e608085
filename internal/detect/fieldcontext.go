package detect

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// FieldRegion is one "LABEL: value" locality found by the Field Context
// Analyzer (spec.md §4.2).
type FieldRegion struct {
	Label        string
	ValueStart   int // rune offset, inclusive
	ValueEnd     int // rune offset, exclusive
	ExpectedType span.FilterType
	Confidence   float64
}

// DefaultLabels is the fixed label dictionary grouped by expected PHI type.
var DefaultLabels = map[string]span.FilterType{
	"PATIENT":         span.TypeName,
	"NAME":            span.TypeName,
	"PATIENT NAME":    span.TypeName,
	"MRN":             span.TypeMRN,
	"FILE #":          span.TypeMRN,
	"MEDICAL RECORD":  span.TypeMRN,
	"DOB":             span.TypeDate,
	"DATE OF BIRTH":   span.TypeDate,
	"DATE":            span.TypeDate,
	"ADDRESS":         span.TypeAddress,
	"HOME ADDRESS":    span.TypeAddress,
	"PHONE":           span.TypePhone,
	"TELEPHONE":       span.TypePhone,
	"SSN":             span.TypeSSN,
	"SOCIAL SECURITY": span.TypeSSN,
	"EMAIL":           span.TypeEmail,
	"ZIP":             span.TypeZipcode,
	"ZIPCODE":         span.TypeZipcode,
	"HOSPITAL":        span.TypeCustom,
	"FACILITY":        span.TypeCustom,
}

// reservedStructuralTokens never qualify as part of a patient-name candidate,
// even in an ALL-CAPS run directly below a PATIENT: label.
var reservedStructuralTokens = map[string]bool{
	"CLINICAL": true, "IMPRESSION": true, "PATIENT": true, "INFORMATION": true,
	"ASSESSMENT": true, "SECTION": true, "HARBOR": true, "HISTORY": true,
	"FINDINGS": true, "REPORT": true, "SUMMARY": true, "DISCHARGE": true,
}

var labelLine = regexp.MustCompile(`(?m)^[ \t]*([A-Za-z][A-Za-z #/]*?)\s*:[ \t]*(.*)$`)

// allCapsWord matches an ALL-CAPS word of at least 2 letters (apostrophes
// and hyphens allowed, e.g. O'BRIEN, SMITH-JONES).
var allCapsWord = regexp.MustCompile(`^[A-Z][A-Z'\-]+$`)

var standaloneNumericLine = regexp.MustCompile(`(?m)^[ \t]*([0-9][0-9\-]{3,})[ \t]*$`)

// FieldContextAnalyzer implements the pre-pass described in spec.md §4.2.
type FieldContextAnalyzer struct {
	labels map[string]span.FilterType
}

// NewFieldContextAnalyzer builds an analyzer from a label dictionary.
func NewFieldContextAnalyzer(labels map[string]span.FilterType) *FieldContextAnalyzer {
	if labels == nil {
		labels = DefaultLabels
	}
	return &FieldContextAnalyzer{labels: labels}
}

// Analyze finds every "LABEL: value" region in text and returns them plus
// any specialized spans synthesized directly (multi-line patient name,
// multi-line FILE # / MRN).
func (a *FieldContextAnalyzer) Analyze(text string, factory *span.Factory) ([]FieldRegion, []*span.Span) {
	var regions []FieldRegion

	byteToRune := makeOffsetConverter(text)

	for _, m := range labelLine.FindAllStringSubmatchIndex(text, -1) {
		label := strings.ToUpper(strings.TrimSpace(text[m[2]:m[3]]))
		valStart, valEnd := m[4], m[5]
		expected, ok := a.labels[label]
		if !ok {
			continue
		}
		valText := strings.TrimSpace(text[valStart:valEnd])
		if valText == "" {
			// Value may be on the next line; no region is recorded for a
			// label with an empty same-line value (the multi-line passes
			// below cover PATIENT and FILE #).
			continue
		}
		// Recompute valStart/valEnd to exclude leading/trailing whitespace
		// trimmed above.
		trimStart := valStart + strings.Index(text[valStart:valEnd], valText)
		trimEnd := trimStart + len(valText)

		regions = append(regions, FieldRegion{
			Label:        label,
			ValueStart:   byteToRune(trimStart),
			ValueEnd:     byteToRune(trimEnd),
			ExpectedType: expected,
			Confidence:   0.8,
		})
	}

	var synthesized []*span.Span
	if s := a.detectMultiLinePatientName(text, factory, byteToRune); s != nil {
		synthesized = append(synthesized, s)
	}
	if s := a.detectMultiLineFileNumber(text, factory, byteToRune, regions); s != nil {
		synthesized = append(synthesized, s)
		regions = dropOverlappingZipcode(regions, s)
	}

	return regions, synthesized
}

// detectMultiLinePatientName looks for PATIENT: (or equivalent) followed,
// on the same line or the next one, by an ALL-CAPS 2-3 word phrase that
// contains no reserved structural token (spec.md §4.2).
func (a *FieldContextAnalyzer) detectMultiLinePatientName(text string, factory *span.Factory, byteToRune func(int) int) *span.Span {
	lines := strings.Split(text, "\n")
	byteOffset := 0
	lineOffsets := make([]int, len(lines))
	for i, l := range lines {
		lineOffsets[i] = byteOffset
		byteOffset += len(l) + 1
	}

	for i, line := range lines {
		upper := strings.ToUpper(line)
		idx := strings.Index(upper, "PATIENT:")
		if idx == -1 {
			idx = strings.Index(upper, "PATIENT NAME:")
			if idx == -1 {
				continue
			}
		}
		colon := strings.Index(line, ":")
		if colon == -1 {
			continue
		}
		candidate := strings.TrimSpace(line[colon+1:])
		lineBase := lineOffsets[i]
		valueByteStart := lineBase + colon + 1 + (len(line[colon+1:]) - len(strings.TrimLeft(line[colon+1:], " \t")))

		if candidate == "" && i+1 < len(lines) {
			candidate = strings.TrimSpace(lines[i+1])
			valueByteStart = lineOffsets[i+1] + (len(lines[i+1]) - len(strings.TrimLeft(lines[i+1], " \t")))
		}
		if candidate == "" {
			continue
		}

		words := strings.Fields(candidate)
		if len(words) < 2 || len(words) > 3 {
			continue
		}
		hasReserved := false
		validShape := true
		for _, w := range words {
			clean := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' && r != '-' })
			if !allCapsWord.MatchString(clean) {
				validShape = false
				break
			}
			if reservedStructuralTokens[clean] {
				hasReserved = true
			}
		}
		if !validShape || hasReserved {
			continue
		}

		valueByteEnd := valueByteStart + len(candidate)
		rs, re := byteToRune(valueByteStart), byteToRune(valueByteEnd)
		s, err := factory.New(text, rs, re, span.TypeName, 0.9, 100, "field-context:multiline-patient-name")
		if err != nil {
			continue
		}
		return s
	}
	return nil
}

// detectMultiLineFileNumber looks for a "FILE #:" label followed by a
// standalone numeric line, treating it as an MRN (spec.md §4.2). The caller
// removes any ZIPCODE field region overlapping the MRN via
// dropOverlappingZipcode; a ZIPCODE span over the same text loses to the
// MRN's priority of 100 in overlap resolution.
func (a *FieldContextAnalyzer) detectMultiLineFileNumber(text string, factory *span.Factory, byteToRune func(int) int, regions []FieldRegion) *span.Span {
	upper := strings.ToUpper(text)
	idx := strings.Index(upper, "FILE #:")
	if idx == -1 {
		idx = strings.Index(upper, "FILE#:")
	}
	if idx == -1 {
		return nil
	}
	rest := text[idx:]
	loc := standaloneNumericLine.FindStringSubmatchIndex(rest)
	if loc == nil {
		return nil
	}
	start := idx + loc[2]
	end := idx + loc[3]
	rs, re := byteToRune(start), byteToRune(end)
	s, err := factory.New(text, rs, re, span.TypeMRN, 0.9, 100, "field-context:multiline-file-number")
	if err != nil {
		return nil
	}
	return s
}

func dropOverlappingZipcode(regions []FieldRegion, mrn *span.Span) []FieldRegion {
	out := regions[:0]
	for _, r := range regions {
		if r.ExpectedType == span.TypeZipcode && r.ValueStart < mrn.CharacterEnd && mrn.CharacterStart < r.ValueEnd {
			continue
		}
		out = append(out, r)
	}
	return out
}

// makeOffsetConverter returns a function mapping a byte offset into text to
// its corresponding character (rune) offset.
func makeOffsetConverter(text string) func(int) int {
	// Precompute a sorted list of byte offsets for each rune boundary.
	boundaries := make([]int, 0, len(text)+1)
	count := 0
	for i := range text {
		boundaries = append(boundaries, i)
		count++
	}
	boundaries = append(boundaries, len(text))
	return func(byteOffset int) int {
		// Linear scan is fine here: field-context regions are few per
		// document, and this runs at most a handful of times per request.
		for i, b := range boundaries {
			if b == byteOffset {
				return i
			}
			if b > byteOffset {
				return i
			}
		}
		return len(boundaries) - 1
	}
}

// Boost/de-boost multipliers applied by the confidence pipeline when a span
// falls inside a field's value region (spec.md §4.2).
const (
	FieldMatchBoost    = 1.15
	FieldMismatchPenalty = 0.8
	FieldPriorityFloor = 90
)

// ApplyFieldRegions adjusts spans that fall inside a field's value region
// (spec.md §4.2 "Effect on subsequent stages"): a span whose type matches
// the region's ExpectedType is boosted by FieldMatchBoost and has its
// Priority floored at FieldPriorityFloor; a span of any other type sharing
// the region is penalized by FieldMismatchPenalty.
func ApplyFieldRegions(spans []*span.Span, regions []FieldRegion) {
	for _, s := range spans {
		for _, r := range regions {
			if s.CharacterStart >= r.ValueEnd || r.ValueStart >= s.CharacterEnd {
				continue
			}
			if s.FilterType == r.ExpectedType {
				s.Confidence = math.Min(1.0, s.Confidence*FieldMatchBoost)
				if s.Priority < FieldPriorityFloor {
					s.Priority = FieldPriorityFloor
				}
			} else {
				s.Confidence = math.Max(0.0, s.Confidence*FieldMismatchPenalty)
			}
		}
	}
}
