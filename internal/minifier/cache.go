package minifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// DefaultCacheSize is the byte budget of a Cached minifier built by name.
const DefaultCacheSize = 8 << 20

// Cached memoizes another minifier's output, keyed by the SHA-256 of the
// source, with LRU eviction once the cached output exceeds maxSize bytes.
type Cached struct {
	inner Minifier

	entries     map[string]*cacheEntry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	// LRU list with dummy head and tail
	head *cacheEntry
	tail *cacheEntry

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key   string
	value string
	size  int64
	prev  *cacheEntry
	next  *cacheEntry
}

// NewCached wraps inner with a cache of maxSize bytes.
func NewCached(inner Minifier, maxSize int64) *Cached {
	c := &Cached{
		inner:   inner,
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		head:    &cacheEntry{},
		tail:    &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Name implements Named.
func (c *Cached) Name() string { return "Cached(" + NameOf(c.inner) + ")" }

// Minify implements Minifier. Failures are not cached.
func (c *Cached) Minify(ctx context.Context, src string) (string, error) {
	sum := sha256.Sum256([]byte(src))
	key := hex.EncodeToString(sum[:])

	if out, ok := c.get(key); ok {
		return out, nil
	}

	out, err := c.inner.Minify(ctx, src)
	if err != nil {
		return "", err
	}
	c.set(key, out)
	return out, nil
}

func (c *Cached) get(key string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	c.moveToFront(entry)
	atomic.AddInt64(&c.hits, 1)
	return entry.value, true
}

func (c *Cached) set(key, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	size := int64(len(value))
	if existing, exists := c.entries[key]; exists {
		c.currentSize += size - existing.size
		existing.value = value
		existing.size = size
		c.moveToFront(existing)
		return
	}
	if size > c.maxSize {
		return
	}

	c.evictIfNeeded(size)
	entry := &cacheEntry{key: key, value: value, size: size}
	c.entries[key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

func (c *Cached) evictIfNeeded(newSize int64) {
	for c.currentSize+newSize > c.maxSize && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		c.currentSize -= lru.size
		atomic.AddInt64(&c.evictions, 1)
	}
}

// Clear drops every entry and resets statistics.
func (c *Cached) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.currentSize = 0
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// GetStats returns the entry count, current size and maximum size.
func (c *Cached) GetStats() (int, int64, int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries), c.currentSize, c.maxSize
}

// GetHits returns the number of cache hits.
func (c *Cached) GetHits() int64 {
	return atomic.LoadInt64(&c.hits)
}

// GetMisses returns the number of cache misses.
func (c *Cached) GetMisses() int64 {
	return atomic.LoadInt64(&c.misses)
}

// GetEvictions returns the number of evicted entries.
func (c *Cached) GetEvictions() int64 {
	return atomic.LoadInt64(&c.evictions)
}

// GetHitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cached) GetHitRate() float64 {
	hits := atomic.LoadInt64(&c.hits)
	total := hits + atomic.LoadInt64(&c.misses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *Cached) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *Cached) removeFromList(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *Cached) moveToFront(entry *cacheEntry) {
	c.removeFromList(entry)
	c.addToFront(entry)
}
