// Package window implements the Context Window Service (spec.md §4.4):
// lazily attaching surrounding text/tokens to surviving spans without
// copying the full input.
package window

import (
	"strings"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// RadiusChars is how many characters of context are captured on each side
// of a span (spec.md §4.4: "≈50 chars on each side").
const RadiusChars = 50

// Attach populates Context and Window for every span not already dropped.
// runes must be the full document as []rune so offsets line up with
// Span.CharacterStart/End; callers typically compute this once per request.
func Attach(runes []rune, spans []*span.Span) {
	for _, s := range spans {
		if s.State == span.StateDropped || s.Ignored {
			continue
		}
		before := window(runes, s.CharacterStart-RadiusChars, s.CharacterStart)
		after := window(runes, s.CharacterEnd, s.CharacterEnd+RadiusChars)
		s.Context = string(before) + s.Text + string(after)
		s.Window = span.Window{
			Before: tokenize(before),
			After:  tokenize(after),
		}
	}
}

func window(runes []rune, start, end int) []rune {
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return nil
	}
	return runes[start:end]
}

func tokenize(runes []rune) []string {
	return strings.Fields(string(runes))
}
