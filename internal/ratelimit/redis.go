package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every instance using the
// same Redis. Keys are ratelimit:<prefix>:<key>. The window is set with
// PEXPIRE NX, which needs Redis 7 or newer.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(rdb redis.Cmdable, prefix string, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	k := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Do(ctx, "pexpire", k, l.window.Milliseconds(), "NX")
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", k, err)
	}

	count := int(incr.Val())
	reset := ttl.Val()
	if reset < 0 {
		reset = l.window
	}
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: count <= l.max, Limit: l.max, Remaining: remaining}
	if !d.Allowed {
		d.RetryAfter = reset
	}
	return d, nil
}

// ParseRedisURL builds a client from a redis:// URL.
func ParseRedisURL(raw string) (*redis.Client, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
