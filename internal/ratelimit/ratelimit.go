// Package ratelimit provides a keyed token-bucket rate limiter. The client
// keys outbound requests by endpoint family so a hammering pull loop cannot
// starve push traffic.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter hands out an independent token bucket per key. Buckets
// are created lazily and never evicted; the client only ever uses a handful
// of endpoint keys.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	stopped bool
}

// New creates a keyed rate limiter allowing rps requests per second with
// the given burst per key.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether a request for the key may proceed right now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Wait blocks until a request for the key is allowed or ctx is done.
func (k *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(key).Wait(ctx)
}

// Stop releases the limiter. Buckets already handed out keep working so
// in-flight Waits are not disturbed.
func (k *KeyedRateLimiter) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	k.buckets = make(map[string]*rate.Limiter)
}

func (k *KeyedRateLimiter) bucket(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if b, ok := k.buckets[key]; ok {
		return b
	}
	b := rate.NewLimiter(k.limit, k.burst)
	if !k.stopped {
		k.buckets[key] = b
	}
	return b
}
