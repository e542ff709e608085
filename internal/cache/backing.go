// Package cache implements the Semantic Cache of spec.md §4.11: a bounded
// (LRU + TTL) store keyed by (policy hash, document-structure hash) holding
// enough of a prior pipeline run to rebuild its redacted output on hit.
//
// The persistence and in-memory eviction layers are adapted from the
// teacher's Ollama value cache (internal/anonymizer/cache.go,
// s3fifo_cache.go): the same bbolt-backed PersistentCache interface and
// S3-FIFO hot-set policy, generalized from string->string entries to
// Entry values and given TTL semantics the teacher's cache lacked — stale
// entries are never returned (spec.md §4.11).
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// SpanSnapshot is enough of an applied Span to rebuild a redacted string
// and report, without holding a pool-backed *span.Span alive past the
// request that produced it.
type SpanSnapshot struct {
	CharacterStart int             `json:"characterStart"`
	CharacterEnd   int             `json:"characterEnd"`
	FilterType     span.FilterType `json:"filterType"`
	Confidence     float64         `json:"confidence"`
	Replacement    string          `json:"replacement"`
}

// Entry is one cached pipeline result.
type Entry struct {
	RedactedText string         `json:"redactedText"`
	Spans        []SpanSnapshot `json:"spans"`
	StoredAt     time.Time      `json:"storedAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// PersistentCache is the cross-process backing store interface; all
// implementations must be safe for concurrent use.
type PersistentCache interface {
	Get(key string) (Entry, bool)
	Set(key string, e Entry)
	Delete(key string)
	Close() error
}

// --- memoryCache ---

type memoryCache struct {
	mu    sync.RWMutex
	store map[string]Entry
}

// NewMemoryCache returns an in-memory PersistentCache, used in tests and as
// a fallback when no bbolt path is configured.
func NewMemoryCache() PersistentCache {
	return &memoryCache{store: make(map[string]Entry)}
}

func (c *memoryCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	return e, ok
}

func (c *memoryCache) Set(key string, e Entry) {
	c.mu.Lock()
	c.store[key] = e
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- bboltCache ---

const bboltBucket = "semantic_cache"

type bboltCache struct {
	db *bolt.DB
}

// NewBboltCache opens (or creates) a bbolt database at path for the
// semantic cache's persistent layer.
func NewBboltCache(path string) (PersistentCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt cache %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bboltBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}
	log.Printf("CACHE | init | INFO | persistent semantic cache opened at %s", path)
	return &bboltCache{db: db}, nil
}

func (c *bboltCache) Get(key string) (Entry, bool) {
	var entry Entry
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		log.Printf("CACHE | get | WARN | bbolt get error: %v", err)
		return Entry{}, false
	}
	return entry, found
}

func (c *bboltCache) Set(key string, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("CACHE | set | WARN | marshal error: %v", err)
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", bboltBucket)
		}
		return b.Put([]byte(key), data)
	}); err != nil {
		log.Printf("CACHE | set | WARN | bbolt set error: %v", err)
	}
}

func (c *bboltCache) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		log.Printf("CACHE | delete | WARN | bbolt delete error: %v", err)
	}
}

func (c *bboltCache) Close() error {
	return c.db.Close()
}
