// Package ratelimit throttles download requests per client identity.
//
// Each identity gets its own token bucket; identities never share budget,
// and the check runs before any storage I/O since archive building is
// expensive. Idle buckets are dropped after a retention window to bound
// memory.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const bucketRetention = 5 * time.Minute

// Limiter applies a per-client token bucket
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

type bucket struct {
	limiter *rate.Limiter
	expires time.Time
}

// New creates a limiter allowing requestsPerMinute sustained requests per
// client identity, with a burst of the same size.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:   requestsPerMinute,
	}
}

// Allow reports whether the client identified by key may proceed, and
// consumes one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.expires = time.Now().Add(bucketRetention)

	return b.limiter.Allow()
}

func (l *Limiter) cleanupLocked() {
	now := time.Now()
	for key, b := range l.buckets {
		if now.After(b.expires) {
			delete(l.buckets, key)
		}
	}
}
