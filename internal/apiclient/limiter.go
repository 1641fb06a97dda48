package apiclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type endpointBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter paces outbound calls per key.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// keyedLimiter keeps one token bucket per endpoint key and forgets idle keys.
type keyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*endpointBucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewLimiter allows up to requestsPerSecond calls per key with the given burst.
// A non-positive rate disables pacing.
func NewLimiter(requestsPerSecond, burst int, ttl time.Duration) Limiter {
	if requestsPerSecond <= 0 {
		return unlimited{}
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &keyedLimiter{
		buckets: make(map[string]*endpointBucket),
		limit:   rate.Every(time.Second / time.Duration(requestsPerSecond)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *keyedLimiter) Wait(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	b := l.bucketLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return b.limiter.Wait(ctx)
}

func (l *keyedLimiter) bucketLocked(key string, now time.Time) *endpointBucket {
	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b
	}
	b := &endpointBucket{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.buckets[key] = b
	return b
}

func (l *keyedLimiter) gcLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}
