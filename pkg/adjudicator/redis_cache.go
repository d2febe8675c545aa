package adjudicator

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// decisionCacheTTL bounds how long a cached Tier-3 decision survives in
// Redis; mirrors pkg/semantic's score cache TTL so both caches age out on
// a comparable horizon.
const decisionCacheTTL = 10 * time.Minute

// RedisCache is the Redis-backed Cache implementation, used in place of
// LRUCache when the adjudicator's decision cache is shared across process
// replicas.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	hits      atomic.Uint64
	misses    atomic.Uint64
}

// NewRedisCache builds a Cache backed by client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, keyPrefix: "sentinelgate:adjudicator:"}
}

// Get returns the cached entry for key, if present.
func (c *RedisCache) Get(key string) (CacheEntry, bool) {
	val, err := c.client.Get(context.Background(), c.keyPrefix+key).Result()
	if err != nil {
		c.misses.Add(1)
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.misses.Add(1)
		return CacheEntry{}, false
	}

	c.hits.Add(1)
	return entry, true
}

// Set stores entry, keyed by entry.Key.
func (c *RedisCache) Set(entry CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(context.Background(), c.keyPrefix+entry.Key, raw, decisionCacheTTL).Err()
}

// Purge evicts every cached decision.
func (c *RedisCache) Purge() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}

// Hits returns the cumulative cache-hit count.
func (c *RedisCache) Hits() uint64 { return c.hits.Load() }

// Misses returns the cumulative cache-miss count.
func (c *RedisCache) Misses() uint64 { return c.misses.Load() }
