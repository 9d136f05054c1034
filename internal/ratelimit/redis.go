package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "accounts:ratelimit:"

// RedisLimiter is a fixed-window counter kept in Redis.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewRedisLimiter allows limit calls per key per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:  client,
		prefix:  defaultPrefix,
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Allow increments the key's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.limit <= 0 {
		return Decision{Allowed: true, Limit: l.limit}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	redisKey := l.prefix + key
	counter, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{Allowed: true, Limit: l.limit}, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if counter == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{Allowed: true, Count: counter, Limit: l.limit}, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}

	return Decision{
		Allowed: counter <= int64(l.limit),
		Count:   counter,
		Limit:   l.limit,
		ResetAt: l.now().Add(ttl),
	}, nil
}
