package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a user exhausts their chat quota for the
// current window.
var ErrRateLimited = errors.New("too many requests")

type RateLimiter interface {
	// Allow consumes one unit of userID's quota, or returns ErrRateLimited.
	Allow(ctx context.Context, userID string) error
}

// redisRateLimiter is a fixed-window counter keyed per user and window.
type redisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ RateLimiter = (*redisRateLimiter)(nil) // interface compliance check

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *redisRateLimiter {
	return &redisRateLimiter{client: client, limit: limit, window: window}
}

func (rl *redisRateLimiter) Allow(ctx context.Context, userID string) error {
	bucket := time.Now().Unix() / int64(rl.window.Seconds())
	key := fmt.Sprintf("ai:chat:%s:%d", userID, bucket)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "incrementing rate limit counter")
	}

	if incr.Val() > int64(rl.limit) {
		return ErrRateLimited
	}
	return nil
}
