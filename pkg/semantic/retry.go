package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls the backoff schedule for a Retrier.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig is a general-purpose backoff schedule suitable for
// embedding-provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CacheRetryConfig is tuned for the Redis-backed semantic score cache,
// which tolerates more attempts and a longer ceiling than a one-shot
// embedding call.
func CacheRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 1.5,
		Jitter:            true,
	}
}

var retryableSubstrings = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many connections",
	"deadlock",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"connection lost",
	"closed the connection",
	"broken pipe",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
}

// retryableError marks an error with an explicit retryable verdict,
// overriding message-based sniffing.
type retryableError struct {
	cause     error
	retryable bool
	reason    string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable=%t (%s): %v", e.retryable, e.reason, e.cause)
}

func (e *retryableError) Unwrap() error {
	return e.cause
}

// WrapRetryableError annotates err with an explicit retryable verdict.
// Returns nil if err is nil.
func WrapRetryableError(err error, retryable bool, reason string) error {
	if err == nil {
		return nil
	}
	return &retryableError{cause: err, retryable: retryable, reason: reason}
}

// IsRetryableError reports whether err represents a transient failure
// worth retrying: context.DeadlineExceeded, an explicit *retryableError,
// or a message matching a known transient-failure pattern.
// context.Canceled is never retryable, the caller gave up.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var re *retryableError
	if errors.As(err, &re) {
		return re.retryable
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range retryableSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Operation is a unit of work a Retrier can attempt repeatedly. attempt is
// 1-indexed.
type Operation func(ctx context.Context, attempt int) (any, error)

// Retrier executes an Operation with exponential backoff, stopping early
// on a non-retryable error or context cancellation.
type Retrier struct {
	config RetryConfig
	logger *logrus.Logger
}

// NewRetrier builds a Retrier. A nil logger disables logging.
func NewRetrier(config RetryConfig, logger *logrus.Logger) *Retrier {
	return &Retrier{config: config, logger: logger}
}

// ExecuteWithType runs op, retrying on retryable errors up to
// config.MaxAttempts times (at least once, even for a misconfigured
// MaxAttempts <= 0).
func (r *Retrier) ExecuteWithType(ctx context.Context, op Operation) (any, error) {
	maxAttempts := r.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == maxAttempts {
			break
		}

		if r.logger != nil {
			r.logger.WithError(err).Debugf("retrying after attempt %d/%d", attempt, maxAttempts)
		}

		wait := delay
		if r.config.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(math.Min(float64(delay)*r.config.BackoffMultiplier, float64(r.config.MaxDelay)))
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}

// RetryIfNeeded adapts a plain func() error into the Retrier contract, for
// call sites that don't need the attempt number or a typed result.
func RetryIfNeeded(ctx context.Context, config RetryConfig, logger *logrus.Logger, op func() error) error {
	retrier := NewRetrier(config, logger)
	_, err := retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		return nil, op()
	})
	return err
}

// CacheRetrier wraps Retrier with CacheRetryConfig, for named cache
// backend operations (Redis GET/SET/reconnect) where a descriptive
// operation name is useful in logs.
type CacheRetrier struct {
	retrier *Retrier
	logger  *logrus.Logger
}

// NewCacheRetrier builds a CacheRetrier using CacheRetryConfig.
func NewCacheRetrier(logger *logrus.Logger) *CacheRetrier {
	return &CacheRetrier{
		retrier: NewRetrier(CacheRetryConfig(), logger),
		logger:  logger,
	}
}

// ExecuteCacheOperation runs op under the cache retry schedule, logging the
// operation name on failure.
func (c *CacheRetrier) ExecuteCacheOperation(ctx context.Context, name string, op Operation) (any, error) {
	result, err := c.retrier.ExecuteWithType(ctx, op)
	if err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("operation", name).Error("cache operation failed")
	}
	return result, err
}
