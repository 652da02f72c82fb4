package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per remote host.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
	mu       sync.Mutex
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// host. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// GetLimiter returns or creates the bucket for a host.
func (rl *RateLimiter) GetLimiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[host]; exists {
		return limiter
	}
	limit := rate.Inf
	if rl.rps > 0 {
		limit = rate.Limit(rl.rps)
	}
	limiter := rate.NewLimiter(limit, rl.burst)
	rl.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request to host is allowed.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if err := rl.GetLimiter(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Ready reports whether a request to host would pass without waiting. It
// does not take a token.
func (rl *RateLimiter) Ready(host string) bool {
	l := rl.GetLimiter(host)
	return l.Limit() == rate.Inf || l.Tokens() >= 1
}

func (rl *RateLimiter) GetStats(host string) map[string]interface{} {
	limiter := rl.GetLimiter(host)
	return map[string]interface{}{
		"host":   host,
		"limit":  float64(limiter.Limit()),
		"burst":  limiter.Burst(),
		"tokens": limiter.Tokens(),
	}
}

func (rl *RateLimiter) Reset(host string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, host)
}

func (rl *RateLimiter) ResetAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters = make(map[string]*rate.Limiter)
}
