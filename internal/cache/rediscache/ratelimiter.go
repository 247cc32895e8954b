package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Allow делает INCR по ключу и ставит TTL окна.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// AllowCarrier counts one provider call for carrier in the minute bucket of now.
func (rl *RateLimiter) AllowCarrier(ctx context.Context, carrierCode string, perMinute int64, now time.Time) (bool, error) {
	key := fmt.Sprintf("rl:carrier:%s:%s", carrierCode, now.UTC().Format("200601021504"))
	ok, _, err := rl.Allow(ctx, key, perMinute, 70*time.Second)
	return ok, err
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
