package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting for outbound API calls.
type RateLimiter struct {
	name       string
	capacity   int
	tokens     int
	refillRate int // tokens added per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a rate limiter that starts with a full bucket.
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		name:       name,
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		// One refill interval plus a small buffer for timer precision.
		wait := time.Second/time.Duration(rl.refillRate) + 10*time.Millisecond

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed < time.Second {
		return
	}

	added := int(elapsed.Seconds()) * rl.refillRate
	if added > 0 {
		rl.tokens += added
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}
}
