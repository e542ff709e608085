package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// DefaultTTL is how long a semantic cache entry is considered fresh
// (spec.md §4.11: "bounded (LRU + TTL)").
const DefaultTTL = 24 * time.Hour

// DefaultStoreThresholdChars is the minimum document length above which a
// full pipeline run is stored (spec.md §4.11: "above a length threshold").
const DefaultStoreThresholdChars = 500

// SemanticCache is the request-facing API: lookup by (policy hash,
// document-structure hash), store after a full run.
type SemanticCache struct {
	backing PersistentCache
	ttl     time.Duration
	now     func() time.Time
}

// New builds a SemanticCache over backing with the given TTL (DefaultTTL
// when ttl <= 0).
func New(backing PersistentCache, ttl time.Duration) *SemanticCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SemanticCache{backing: backing, ttl: ttl, now: time.Now}
}

// Key derives the cache key from a policy hash and document-structure hash
// (spec.md §4.11).
func Key(policyHash, documentStructureHash string) string {
	sum := sha256.Sum256([]byte(policyHash + "\x00" + documentStructureHash))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached entry for key, if present and unexpired. A
// stale entry is never returned — this is the sole read path, so every
// caller gets the same freshness guarantee (spec.md §4.11).
func (c *SemanticCache) Lookup(key string) (Entry, bool) {
	entry, ok := c.backing.Get(key)
	if !ok {
		return Entry{}, false
	}
	if entry.expired(c.now()) {
		c.backing.Delete(key)
		return Entry{}, false
	}
	return entry, true
}

// Store saves a pipeline result under key if text is at least
// DefaultStoreThresholdChars runes long, setting ExpiresAt from the
// cache's TTL.
func (c *SemanticCache) Store(key string, redactedText string, spans []SpanSnapshot, textLen int) {
	if textLen < DefaultStoreThresholdChars {
		return
	}
	now := c.now()
	c.backing.Set(key, Entry{
		RedactedText: redactedText,
		Spans:        spans,
		StoredAt:     now,
		ExpiresAt:    now.Add(c.ttl),
	})
}

// StructureHash fingerprints a document's *shape* rather than its content:
// line count, and for each line a character-class skeleton (L for a run of
// letters, D for digits, P for punctuation, S for space) so that two
// documents with the same template but different PHI values hash
// identically (spec.md §4.11: "document-structure hash").
func StructureHash(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(skeletonOf(line))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func skeletonOf(line string) string {
	var b strings.Builder
	var last rune
	for _, r := range line {
		var class rune
		switch {
		case unicode.IsLetter(r):
			class = 'L'
		case unicode.IsDigit(r):
			class = 'D'
		case unicode.IsSpace(r):
			class = 'S'
		default:
			class = 'P'
		}
		if class != last {
			b.WriteRune(class)
			last = class
		}
	}
	return b.String()
}

// Close releases the backing store's resources.
func (c *SemanticCache) Close() error {
	return c.backing.Close()
}
