// Package lru provides a sharded, bounded, in-process LRU cache used as the
// fallback backend for the semantic score cache and the Tier-3 decision
// cache when no Redis endpoint is configured. Keys are hashed with fnv and
// routed to one of a fixed number of shards, each guarded by its own mutex,
// so concurrent requests for unrelated keys don't serialize on a single
// lock.
package lru

import (
	"container/list"
	"hash/fnv"
	"sync"
)

const defaultShardCount = 16

// Cache is a fixed-capacity, sharded least-recently-used cache.
type Cache struct {
	shards    []*shard
	shardMask uint32
}

type shard struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type entry struct {
	key   string
	value interface{}
}

// New builds a Cache with the given total capacity spread evenly across
// shards. Each shard holds capacity/shards entries (rounded down, at least
// one), so the total can be slightly below capacity.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	shardCount := defaultShardCount
	if capacity < shardCount {
		shardCount = capacity
	}
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{
		shards:    make([]*shard, shardCount),
		shardMask: uint32(shardCount - 1),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			capacity: perShard,
			items:    make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := h.Sum32() % uint32(len(c.shards))
	return c.shards[idx]
}

// Get returns the cached value for key and whether it was present. A hit
// moves the entry to the front of its shard's recency list.
func (c *Cache) Get(key string) (interface{}, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set inserts or updates key's value, evicting the shard's least-recently-
// used entry if it is at capacity.
func (c *Cache) Set(key string, value interface{}) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		el.Value.(*entry).value = value
		s.order.MoveToFront(el)
		return
	}

	el := s.order.PushFront(&entry{key: key, value: value})
	s.items[key] = el

	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.items, oldest.Value.(*entry).key)
		}
	}
}

// Delete removes key from the cache, if present.
func (c *Cache) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.order.Remove(el)
		delete(s.items, key)
	}
}

// Len returns the total number of entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += s.order.Len()
		s.mu.Unlock()
	}
	return total
}
