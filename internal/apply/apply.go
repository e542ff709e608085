// Package apply implements the Span Applier of spec.md §4.10: a single
// right-to-left pass over the input producing the redacted string, and
// stable token minting.
package apply

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/clinical-nlp/redact-engine/internal/policy"
	"github.com/clinical-nlp/redact-engine/internal/span"
)

// TokenMinter mints stable replacement tokens for spans with no explicit or
// policy-supplied replacement. Stability is scoped to SessionID: the same
// (sessionID, filterType, text) always mints the same token, matching
// spec.md §4.10 ("stable across requests only if the request's session id
// is reused").
type TokenMinter struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewTokenMinter builds an empty minter. One minter is normally shared
// across a session's requests to honor token stability.
func NewTokenMinter() *TokenMinter {
	return &TokenMinter{tokens: make(map[string]string)}
}

// Mint returns the stable token for (sessionID, filterType, text), minting
// it on first use.
func (m *TokenMinter) Mint(sessionID string, t span.FilterType, text string) string {
	key := sessionID + "\x00" + string(t) + "\x00" + text
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[key]; ok {
		return tok
	}
	sum := sha256.Sum256([]byte(key))
	tok := fmt.Sprintf("T_%s_%s", t, hex.EncodeToString(sum[:])[:12])
	m.tokens[key] = tok
	return tok
}

// Applier performs the right-to-left replacement pass.
type Applier struct {
	minter *TokenMinter
}

// NewApplier builds an Applier backed by minter (shared across a session to
// honor token stability).
func NewApplier(minter *TokenMinter) *Applier {
	return &Applier{minter: minter}
}

// Apply replaces every span in spans within runes (the full document as
// runes) in a single right-to-left pass, so earlier offsets are never
// invalidated by a later replacement (spec.md §4.10). It returns the
// redacted text and marks every applied span.
func (a *Applier) Apply(runes []rune, spans []*span.Span, pol *policy.Policy) string {
	ordered := append([]*span.Span(nil), spans...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CharacterStart > ordered[j].CharacterStart
	})

	result := append([]rune(nil), runes...)
	for _, s := range ordered {
		repl := a.resolveReplacement(s, pol)
		replRunes := []rune(repl)
		result = append(result[:s.CharacterStart], append(replRunes, result[s.CharacterEnd:]...)...)
		s.Replacement = repl
		s.Applied = true
		s.State = span.StateApplied
	}
	return string(result)
}

// resolveReplacement picks a span's replacement text in spec.md §4.10's
// fixed priority: explicit span-provided -> policy-supplied per-type ->
// newly minted token.
func (a *Applier) resolveReplacement(s *span.Span, pol *policy.Policy) string {
	if s.Replacement != "" {
		return s.Replacement
	}
	if repl, ok := pol.ReplacementFor(s.FilterType); ok {
		return repl
	}
	sessionID := ""
	if pol != nil {
		sessionID = pol.SessionID
	}
	return a.minter.Mint(sessionID, s.FilterType, s.Text)
}
