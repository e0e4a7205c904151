package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/yatrago/hold-engine/internal/adapters/redis"
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow increments a fixed-window counter per key and reports whether the
// caller is still under rate. Redis errors fail open: legitimate checkouts
// should not bounce because the limiter is down.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return true
	}

	return incr.Val() <= int64(rate)
}
