package semantic_test

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/sentinel-gate/pkg/semantic"
)

var _ = Describe("ScoreCache", func() {
	ctx := context.Background()

	Describe("local (sharded LRU) backend", func() {
		It("round-trips a score", func() {
			cache := semantic.NewLocalScoreCache()
			key := semantic.ScoreCacheKey("some text", "PROMPT_INJECTION", 0.10)

			_, ok := cache.Get(ctx, key)
			Expect(ok).To(BeFalse())

			cache.Set(ctx, key, 0.42)
			score, ok := cache.Get(ctx, key)
			Expect(ok).To(BeTrue())
			Expect(score).To(Equal(0.42))
		})

		It("forgets everything on Purge", func() {
			cache := semantic.NewLocalScoreCache()
			key := semantic.ScoreCacheKey("some text", "PROMPT_INJECTION", 0.10)
			cache.Set(ctx, key, 0.42)

			cache.Purge(ctx)

			_, ok := cache.Get(ctx, key)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Redis backend", func() {
		var mr *miniredis.Miniredis

		BeforeEach(func() {
			var err error
			mr, err = miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			mr.Close()
		})

		It("round-trips a score through a real Redis wire protocol", func() {
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			cache := semantic.NewRedisScoreCache(client)
			key := semantic.ScoreCacheKey("some text", "TOXICITY", 0.10)

			cache.Set(ctx, key, 0.77)
			score, ok := cache.Get(ctx, key)
			Expect(ok).To(BeTrue())
			Expect(score).To(Equal(0.77))
		})

		It("NewScoreCache connects to a live Redis endpoint", func() {
			cache, err := semantic.NewScoreCache(ctx, mr.Addr())
			Expect(err).NotTo(HaveOccurred())
			Expect(cache).NotTo(BeNil())
		})

		It("NewScoreCache falls back to the local cache when addr is empty", func() {
			cache, err := semantic.NewScoreCache(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(cache).NotTo(BeNil())
		})

		It("NewScoreCache errors for an unreachable endpoint", func() {
			_, err := semantic.NewScoreCache(ctx, "127.0.0.1:1")
			Expect(err).To(HaveOccurred())
		})
	})
})
