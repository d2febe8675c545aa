package semantic

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/sentinel-gate/pkg/policy"
	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
	"github.com/jordigilh/sentinel-gate/pkg/shared/lru"
)

// scoreCacheCapacity bounds the score cache at 10 000 entries, per the
// Tier 2 caching requirement.
const scoreCacheCapacity = 10_000

// scoreCacheTTL bounds how long a cached score survives in Redis; the
// in-process LRU fallback has no TTL concept and relies purely on
// eviction, so this only applies to the Redis backend.
const scoreCacheTTL = 10 * time.Minute

// ScoreCache memoizes (text, failureClass, threshold) → score, backed by
// Redis when configured, an in-process sharded LRU otherwise. No third
// backend is planned.
type ScoreCache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, score float64)
	Purge(ctx context.Context)
}

// ScoreCacheKey builds the cache key for a (text, failureClass, threshold)
// lookup.
func ScoreCacheKey(text string, failureClass policy.FailureClass, threshold float64) string {
	var b strings.Builder
	b.WriteString(string(failureClass))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(threshold, 'f', 4, 64))
	b.WriteByte('|')
	b.WriteString(text)
	return b.String()
}

// localScoreCache is the in-process sharded LRU fallback.
type localScoreCache struct {
	cache *lru.Cache
}

// NewLocalScoreCache builds the in-process fallback ScoreCache.
func NewLocalScoreCache() ScoreCache {
	return &localScoreCache{cache: lru.New(scoreCacheCapacity)}
}

func (l *localScoreCache) Get(_ context.Context, key string) (float64, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

func (l *localScoreCache) Set(_ context.Context, key string, score float64) {
	l.cache.Set(key, score)
}

func (l *localScoreCache) Purge(_ context.Context) {
	l.cache = lru.New(scoreCacheCapacity)
}

// redisScoreCache backs the score cache with a Redis endpoint, shared
// across process replicas.
type redisScoreCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisScoreCache builds a ScoreCache backed by client.
func NewRedisScoreCache(client *redis.Client) ScoreCache {
	return &redisScoreCache{client: client, keyPrefix: "sentinelgate:semantic:"}
}

func (r *redisScoreCache) Get(ctx context.Context, key string) (float64, bool) {
	val, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return 0, false
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (r *redisScoreCache) Set(ctx context.Context, key string, score float64) {
	_ = r.client.Set(ctx, r.keyPrefix+key, strconv.FormatFloat(score, 'f', -1, 64), scoreCacheTTL).Err()
}

func (r *redisScoreCache) Purge(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = r.client.Del(ctx, keys...).Err()
	}
}

// NewScoreCache builds a Redis-backed cache when addr is non-empty,
// falling back to the in-process LRU otherwise.
func NewScoreCache(ctx context.Context, addr string) (ScoreCache, error) {
	if addr == "" {
		return NewLocalScoreCache(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, sharederrors.NetworkError("connect to semantic cache", addr, err)
	}
	return NewRedisScoreCache(client), nil
}
