package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

const (
	// KeyPrefix namespaces limiter buckets in Redis
	KeyPrefix = "ratelimit:"

	// Default attempt budget per key and window
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// FixedWindowLimiter caps how often a key may act within a fixed time window.
// The counters live in Redis so the cap holds across instances. Callers are
// expected to fail open on an error return; the limiter is an abuse brake,
// not a correctness guard.
type FixedWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter allowing limit attempts per window.
func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window < time.Second {
		window = DefaultWindow
	}
	return &FixedWindowLimiter{
		client: cache.GetClient(),
		limit:  limit,
		window: window,
	}
}

// NewFromEnv builds the limiter from VERIFY_ATTEMPT_LIMIT and
// VERIFY_ATTEMPT_WINDOW.
func NewFromEnv() *FixedWindowLimiter {
	return NewFixedWindowLimiter(
		env.GetEnvInt("VERIFY_ATTEMPT_LIMIT", DefaultLimit),
		env.GetEnvDuration("VERIFY_ATTEMPT_WINDOW", DefaultWindow),
	)
}

// Allow reports whether the caller may spend one attempt for the key. The
// first increment of a window's bucket arms its expiry, so abandoned buckets
// clean themselves up.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := fmt.Sprintf("%s%s:%d", KeyPrefix, key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to count attempt for %s: %w", key, err)
	}

	if incr.Val() > int64(l.limit) {
		log.Warnf("[RateLimit] Key %s exceeded %d attempts in the current window", key, l.limit)
		return false, nil
	}
	return true, nil
}

// Limit returns the configured attempt budget per window.
func (l *FixedWindowLimiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *FixedWindowLimiter) Window() time.Duration {
	return l.window
}
