package cache

import (
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"georesolve/pkg/model"
)

type entry struct {
	record    *model.Record
	expiresAt time.Time
}

// LRU is a size-bounded least-recently-used cache with per-entry expiry.
// Expired entries are dropped lazily when they are read.
type LRU struct {
	mu sync.Mutex

	entries *lru.Cache[string, entry]
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

// NewLRU creates an LRU cache holding at most maxSize entries.
// ttl is the default lifetime used when Set is called without one.
func NewLRU(maxSize int, ttl time.Duration) *LRU {
	defaults := model.DefaultCacheConfig()
	if maxSize <= 0 {
		maxSize = defaults.MaxSize
	}
	if ttl <= 0 {
		ttl = defaults.TTL
	}

	// New only fails for a non-positive size
	entries, _ := lru.New[string, entry](maxSize)
	return &LRU{
		entries: entries,
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source; used by tests
func (c *LRU) WithClock(now func() time.Time) *LRU {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns a copy of the cached record if present and not expired
func (c *LRU) Get(key string) (*model.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.record.Clone(), true
}

// Set inserts or replaces key. A full cache evicts its least recently
// used entry first.
func (c *LRU) Set(key string, rec *model.Record, ttl time.Duration) {
	if rec == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry{record: rec.Clone(), expiresAt: c.now().Add(ttl)})
}

// Delete removes key if present
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Purge drops every expired entry and returns how many were removed
func (c *LRU) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && !now.Before(e.expiresAt) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the counters
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.entries.Len(),
		MaxSize: c.maxSize,
	}
}

// Clear drops all entries and resets the counters
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
	c.hits = 0
	c.misses = 0
}

// Keys returns the stored keys from most to least recently used
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.entries.Keys()
	slices.Reverse(keys)
	return keys
}
