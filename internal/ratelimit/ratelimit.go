// Package ratelimit provides per-client request limits, in process or shared
// through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LocalLimiter keeps one token bucket per key. A bucket holds max tokens and
// refills max tokens per window.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	every   rate.Limit
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &LocalLimiter{
		buckets: make(map[string]*bucket),
		max:     max,
		every:   rate.Limit(float64(max) / window.Seconds()),
		ttl:     window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.max)}
		l.buckets[key] = b
	}
	b.ts = now
	res := b.lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	remaining := int(b.lim.TokensAt(now))
	l.mu.Unlock()

	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: delay == 0, Limit: l.max, Remaining: remaining, RetryAfter: delay}, nil
}

// janitor drops buckets idle for longer than one window.
func (l *LocalLimiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *LocalLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.ttl {
			delete(l.buckets, k)
		}
	}
}

func (l *LocalLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
