package limiter

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned without calling out when a host's breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ProtectionManager combines per-host rate limiting, retries and circuit
// breaking around outbound calls.
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
}

func NewProtectionManager(rl *RateLimiter, rm *RetryManager, cbm *CircuitBreakerManager) *ProtectionManager {
	if rl == nil {
		rl = NewRateLimiter(0, 1)
	}
	if rm == nil {
		rm = NewRetryManager(nil, nil)
	}
	if cbm == nil {
		cbm = NewCircuitBreakerManager(nil, nil)
	}
	return &ProtectionManager{
		rateLimiter:    rl,
		retryManager:   rm,
		circuitBreaker: cbm,
	}
}

// ExecuteWithProtection waits for the host's rate limit, then runs fn with
// retries inside the host's circuit breaker.
func (pm *ProtectionManager) ExecuteWithProtection(
	ctx context.Context,
	host string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if pm.circuitBreaker.IsOpen(host) {
		return nil, fmt.Errorf("%s: %w", host, ErrCircuitOpen)
	}
	if err := pm.rateLimiter.Wait(ctx, host); err != nil {
		return nil, err
	}
	return pm.circuitBreaker.Execute(ctx, host, func() (interface{}, error) {
		return pm.retryManager.Execute(ctx, fn)
	})
}

// GetStats returns limiter and breaker state for a host.
func (pm *ProtectionManager) GetStats(host string) map[string]interface{} {
	cfg := pm.retryManager.Config()
	return map[string]interface{}{
		"host":            host,
		"closed":          pm.circuitBreaker.IsClosed(host),
		"available":       pm.IsHostAvailable(host),
		"rate_limiter":    pm.rateLimiter.GetStats(host),
		"circuit_breaker": pm.circuitBreaker.GetStats(host),
		"retry_config": map[string]interface{}{
			"max_retries":      cfg.MaxRetries,
			"base_delay":       cfg.BaseDelay.String(),
			"max_delay":        cfg.MaxDelay.String(),
			"backoff_factor":   cfg.BackoffFactor,
			"retryable_errors": cfg.RetryableErrors,
		},
	}
}

// IsHostAvailable reports whether a call to host would proceed right now.
func (pm *ProtectionManager) IsHostAvailable(host string) bool {
	return !pm.circuitBreaker.IsOpen(host) && pm.rateLimiter.Ready(host)
}

// GetAllStats returns GetStats for every host contacted so far.
func (pm *ProtectionManager) GetAllStats() map[string]interface{} {
	hosts := pm.circuitBreaker.Hosts()
	out := make(map[string]interface{}, len(hosts))
	for _, h := range hosts {
		out[h] = pm.GetStats(h)
	}
	return out
}

func (pm *ProtectionManager) ResetHost(host string) {
	pm.rateLimiter.Reset(host)
	pm.circuitBreaker.Reset(host)
}

func (pm *ProtectionManager) ResetAll() {
	pm.rateLimiter.ResetAll()
	pm.circuitBreaker.ResetAll()
}
