package cache

import (
	"container/list"
	"log"
	"sync"
	"time"
)

// s3fifoEntry holds the in-memory state for one cached item.
type s3fifoEntry struct {
	value Entry
	freq  uint8 // saturating counter in [0,3]
	elem  *list.Element
	inM   bool
}

// s3FIFOCache wraps a PersistentCache with an in-memory S3-FIFO eviction
// layer (adapted from the teacher's internal/anonymizer/s3fifo_cache.go),
// generalized to Entry values and made TTL-aware: a hit on an expired entry
// is treated as a miss and evicted rather than returned (spec.md §4.11:
// "stale entries are never returned").
type s3FIFOCache struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*s3fifoEntry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing PersistentCache
	now     func() time.Time
}

// NewS3FIFOCache returns a PersistentCache applying S3-FIFO eviction in
// front of backing; capacity bounds the in-memory hot set.
func NewS3FIFOCache(backing PersistentCache, capacity int) PersistentCache {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	log.Printf("CACHE | init | INFO | S3-FIFO capacity=%d sTarget=%d ghostCap=%d", capacity, sTarget, ghostCap)
	return &s3FIFOCache{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*s3fifoEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
		now:      time.Now,
	}
}

func (c *s3FIFOCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.value.expired(c.now()) {
			c.removeFromMemory(key)
			c.mu.Unlock()
			go c.backing.Delete(key)
			return Entry{}, false
		}
		if e.freq < 3 {
			e.freq++
		}
		v := e.value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	entry, ok := c.backing.Get(key)
	if !ok {
		return Entry{}, false
	}
	if entry.expired(c.now()) {
		go c.backing.Delete(key)
		return Entry{}, false
	}
	c.insertLocked(key, entry)
	return entry, true
}

func (c *s3FIFOCache) Set(key string, e Entry) {
	c.insertLocked(key, e)
	c.backing.Set(key, e)
}

func (c *s3FIFOCache) Delete(key string) {
	c.mu.Lock()
	c.removeFromMemory(key)
	c.mu.Unlock()
	c.backing.Delete(key)
}

func (c *s3FIFOCache) Close() error {
	return c.backing.Close()
}

func (c *s3FIFOCache) insertLocked(key string, value Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &s3fifoEntry{value: value, freq: 0, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

func (c *s3FIFOCache) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

func (c *s3FIFOCache) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.sQueue.Remove(front)
		return
	}
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		mTarget := c.capacity - c.sTarget
		if c.mQueue.Len() > mTarget {
			c.evictFromM()
		}
	} else {
		delete(c.entries, key)
		c.ghostAdd(key)
		go c.backing.Delete(key)
	}
}

func (c *s3FIFOCache) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.mQueue.Remove(front)
		return
	}
	c.mQueue.Remove(front)
	delete(c.entries, key)
	go c.backing.Delete(key)
}

func (c *s3FIFOCache) removeFromMemory(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

func (c *s3FIFOCache) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *s3FIFOCache) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
