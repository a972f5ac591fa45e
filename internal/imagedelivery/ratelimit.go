package imagedelivery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-caller fixed-window token bucket counted in Redis so
// the limit holds across multiple Image Delivery Service replicas rather
// than being reset by restarting one process.
type RateLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
}

// NewRateLimiter builds a RateLimiter against an already-connected Redis
// client.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow increments the caller's counter for the current window and reports
// whether the request is within the configured limit, plus how long the
// caller should wait before retrying when it is not.
func (rl *RateLimiter) Allow(ctx context.Context, callerID string) (allowed bool, retryAfter time.Duration, err error) {
	key := fmt.Sprintf("ratelimit:%s", callerID)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("imagedelivery: rate limit increment: %w", err)
	}

	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, 0, fmt.Errorf("imagedelivery: rate limit set expiry: %w", err)
		}
	}

	if count > int64(rl.limit) {
		ttl, err := rl.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rl.window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}
