package semantic_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/pkg/semantic"
)

var _ = Describe("Retry Mechanism", func() {
	var (
		logger *logrus.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
		ctx = context.Background()
	})

	Describe("RetryConfig", func() {
		Context("DefaultRetryConfig", func() {
			It("should provide sensible defaults for embedding provider calls", func() {
				config := semantic.DefaultRetryConfig()

				Expect(config.MaxAttempts).To(Equal(3))
				Expect(config.InitialDelay).To(Equal(100 * time.Millisecond))
				Expect(config.MaxDelay).To(Equal(5 * time.Second))
				Expect(config.BackoffMultiplier).To(Equal(2.0))
				Expect(config.Jitter).To(BeTrue())
			})
		})

		Context("CacheRetryConfig", func() {
			It("should provide cache-backend-optimized defaults", func() {
				config := semantic.CacheRetryConfig()

				Expect(config.MaxAttempts).To(Equal(5))
				Expect(config.InitialDelay).To(Equal(250 * time.Millisecond))
				Expect(config.MaxDelay).To(Equal(10 * time.Second))
				Expect(config.BackoffMultiplier).To(Equal(1.5))
				Expect(config.Jitter).To(BeTrue())
			})
		})
	})

	Describe("IsRetryableError", func() {
		Context("when checking standard errors", func() {
			It("should identify context deadline exceeded as retryable", func() {
				Expect(semantic.IsRetryableError(context.DeadlineExceeded)).To(BeTrue())
			})

			It("should not retry context cancellation", func() {
				Expect(semantic.IsRetryableError(context.Canceled)).To(BeFalse())
			})

			It("should return false for nil error", func() {
				Expect(semantic.IsRetryableError(nil)).To(BeFalse())
			})
		})

		Context("when checking error messages", func() {
			It("should identify retryable embedding/cache backend error patterns", func() {
				retryableErrorMessages := []string{
					"connection refused",
					"Connection Reset by peer",
					"TIMEOUT: connection timeout exceeded",
					"temporary failure in name resolution",
					"too many connections to cache",
					"deadlock detected",
					"lock timeout exceeded",
					"serialization failure occurred",
					"could not serialize access due to concurrent update",
					"connection lost during query",
					"server closed the connection unexpectedly",
					"broken pipe error",
					"i/o timeout on network operation",
					"network is unreachable",
					"no route to host available",
				}

				for _, errMsg := range retryableErrorMessages {
					err := errors.New(errMsg)
					Expect(semantic.IsRetryableError(err)).To(BeTrue())
				}
			})

			It("should not retry non-retryable errors", func() {
				nonRetryableErrors := []string{
					"invalid embedding dimension",
					"policy document does not exist",
					"unknown failure class",
					"permission denied",
					"authentication failed",
					"invalid input value",
				}

				for _, errMsg := range nonRetryableErrors {
					err := errors.New(errMsg)
					Expect(semantic.IsRetryableError(err)).To(BeFalse())
				}
			})
		})

		Context("when checking RetryableError wrapper", func() {
			It("should respect explicit retryable flag", func() {
				baseErr := errors.New("base error")

				retryableErr := semantic.WrapRetryableError(baseErr, true, "test retry")
				Expect(semantic.IsRetryableError(retryableErr)).To(BeTrue())

				nonRetryableErr := semantic.WrapRetryableError(baseErr, false, "test no retry")
				Expect(semantic.IsRetryableError(nonRetryableErr)).To(BeFalse())
			})

			It("should handle nil error gracefully", func() {
				wrappedNil := semantic.WrapRetryableError(nil, true, "test")
				Expect(wrappedNil).To(BeNil())
			})
		})
	})

	Describe("Retrier", func() {
		var retrier *semantic.Retrier

		BeforeEach(func() {
			config := semantic.RetryConfig{
				MaxAttempts:       3,
				InitialDelay:      10 * time.Millisecond,
				MaxDelay:          100 * time.Millisecond,
				BackoffMultiplier: 2.0,
				Jitter:            false,
			}
			retrier = semantic.NewRetrier(config, logger)
		})

		Context("successful operations", func() {
			It("should execute operation once on success", func() {
				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					return "success", nil
				}

				result, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal("success"))
				Expect(callCount).To(Equal(1))
			})
		})

		Context("retryable failures", func() {
			It("should retry retryable errors until success", func() {
				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					if attempt < 3 {
						return "", errors.New("connection refused")
					}
					return "success after retries", nil
				}

				result, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal("success after retries"))
				Expect(callCount).To(Equal(3))
			})

			It("should fail after max attempts with retryable error", func() {
				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					return "", errors.New("connection timeout")
				}

				result, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).To(HaveOccurred())
				Expect(result).To(BeNil())
				Expect(callCount).To(Equal(3))
				Expect(err.Error()).To(ContainSubstring("operation failed after 3 attempts"))
			})
		})

		Context("non-retryable failures", func() {
			It("should fail immediately on non-retryable error", func() {
				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					return nil, errors.New("invalid embedding dimension")
				}

				result, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).To(HaveOccurred())
				Expect(result).To(BeNil())
				Expect(callCount).To(Equal(1))
				Expect(err.Error()).To(ContainSubstring("non-retryable error"))
			})
		})

		Context("context cancellation", func() {
			It("should stop retrying when context is canceled", func() {
				callCount := 0
				cancelCtx, cancel := context.WithCancel(ctx)

				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					if attempt == 2 {
						cancel()
					}
					return nil, errors.New("connection timeout")
				}

				result, err := retrier.ExecuteWithType(cancelCtx, operation)

				Expect(err).To(HaveOccurred())
				Expect(result).To(BeNil())
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
				Expect(callCount).To(BeNumerically(">=", 2))
			})
		})
	})

	Describe("CacheRetrier", func() {
		var cacheRetrier *semantic.CacheRetrier

		BeforeEach(func() {
			cacheRetrier = semantic.NewCacheRetrier(logger)
		})

		Context("cache backend operations", func() {
			It("should execute cache operations with retry support", func() {
				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					if attempt < 2 {
						return nil, errors.New("too many connections")
					}
					return "cache success", nil
				}

				result, err := cacheRetrier.ExecuteCacheOperation(ctx, "test_operation", operation)

				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal("cache success"))
				Expect(callCount).To(Equal(2))
			})
		})
	})

	Describe("RetryIfNeeded helper function", func() {
		It("should provide a simple retry wrapper for existing functions", func() {
			callCount := 0
			operation := func() error {
				callCount++
				if callCount < 3 {
					return errors.New("temporary failure")
				}
				return nil
			}

			config := semantic.RetryConfig{
				MaxAttempts:       5,
				InitialDelay:      1 * time.Millisecond,
				MaxDelay:          10 * time.Millisecond,
				BackoffMultiplier: 2.0,
				Jitter:            false,
			}

			err := semantic.RetryIfNeeded(ctx, config, logger, operation)

			Expect(err).NotTo(HaveOccurred())
			Expect(callCount).To(Equal(3))
		})

		It("should fail when operation never succeeds", func() {
			callCount := 0
			operation := func() error {
				callCount++
				return errors.New("connection timeout")
			}

			config := semantic.RetryConfig{
				MaxAttempts:       2,
				InitialDelay:      1 * time.Millisecond,
				MaxDelay:          5 * time.Millisecond,
				BackoffMultiplier: 2.0,
				Jitter:            false,
			}

			err := semantic.RetryIfNeeded(ctx, config, logger, operation)

			Expect(err).To(HaveOccurred())
			Expect(callCount).To(Equal(2))
		})
	})

	Describe("Edge cases", func() {
		Context("with nil logger", func() {
			It("should handle nil logger gracefully", func() {
				config := semantic.DefaultRetryConfig()
				retrier := semantic.NewRetrier(config, nil)

				operation := func(ctx context.Context, attempt int) (any, error) {
					return "success", nil
				}

				result, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal("success"))
			})
		})

		Context("with zero max attempts", func() {
			It("should execute at least once", func() {
				config := semantic.RetryConfig{
					MaxAttempts:       0,
					InitialDelay:      1 * time.Millisecond,
					MaxDelay:          5 * time.Millisecond,
					BackoffMultiplier: 2.0,
					Jitter:            false,
				}
				retrier := semantic.NewRetrier(config, logger)

				callCount := 0
				operation := func(ctx context.Context, attempt int) (any, error) {
					callCount++
					return "", errors.New("test error")
				}

				_, err := retrier.ExecuteWithType(ctx, operation)

				Expect(err).To(HaveOccurred())
				Expect(callCount).To(BeNumerically(">=", 1))
			})
		})
	})

	Describe("RetryableError wrapper", func() {
		Context("error wrapping and unwrapping", func() {
			It("should wrap and unwrap errors correctly", func() {
				originalErr := errors.New("original error")
				wrapped := semantic.WrapRetryableError(originalErr, true, "test reason")

				Expect(wrapped).NotTo(BeNil())
				Expect(wrapped.Error()).To(ContainSubstring("retryable=true"))
				Expect(wrapped.Error()).To(ContainSubstring("test reason"))
				Expect(wrapped.Error()).To(ContainSubstring("original error"))

				Expect(errors.Unwrap(wrapped)).To(Equal(originalErr))
				Expect(errors.Is(wrapped, originalErr)).To(BeTrue())
			})

			It("should chain with other error wrappers", func() {
				baseErr := errors.New("base error")
				wrappedOnce := fmt.Errorf("wrapped once: %w", baseErr)
				retryableWrapped := semantic.WrapRetryableError(wrappedOnce, true, "retryable wrapper")

				Expect(errors.Is(retryableWrapped, baseErr)).To(BeTrue())
				Expect(errors.Is(retryableWrapped, wrappedOnce)).To(BeTrue())
			})
		})
	})
})
