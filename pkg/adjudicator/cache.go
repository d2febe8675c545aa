package adjudicator

import (
	"sync/atomic"

	"github.com/jordigilh/sentinel-gate/pkg/shared/lru"
)

// defaultCacheCapacity is the default bound on the decision cache.
const defaultCacheCapacity = 10_000

// LRUCache is the default Cache implementation: the shared sharded LRU
// cache used elsewhere in the core (pkg/semantic's score cache), with
// hit/miss counters layered on top.
type LRUCache struct {
	cache    *lru.Cache
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewLRUCache builds a decision cache bounded to capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &LRUCache{cache: lru.New(capacity), capacity: capacity}
}

// Get returns the cached entry for key, if present.
func (c *LRUCache) Get(key string) (CacheEntry, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return CacheEntry{}, false
	}
	c.hits.Add(1)
	return v.(CacheEntry), true
}

// Set stores entry, keyed by entry.Key.
func (c *LRUCache) Set(entry CacheEntry) {
	c.cache.Set(entry.Key, entry)
}

// Purge evicts every entry. A policy reload does not call it: decisions
// cached before a reload stay in the cache until evicted.
func (c *LRUCache) Purge() {
	c.cache = lru.New(c.capacity)
}

// Hits returns the cumulative cache-hit count.
func (c *LRUCache) Hits() uint64 { return c.hits.Load() }

// Misses returns the cumulative cache-miss count.
func (c *LRUCache) Misses() uint64 { return c.misses.Load() }
