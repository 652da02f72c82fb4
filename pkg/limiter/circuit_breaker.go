package limiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests uint32                             `json:"max_requests" yaml:"max_requests"`
	Interval    time.Duration                      `json:"interval" yaml:"interval"`
	Timeout     time.Duration                      `json:"timeout" yaml:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-" yaml:"-"`
}

// DefaultCircuitBreakerConfig opens after five requests with at least half
// of them failing.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(host string, from, to gobreaker.State)

// CircuitBreakerManager keeps one breaker per remote host.
type CircuitBreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   *CircuitBreakerConfig
	onChange StateChangeFunc
	mu       sync.Mutex
}

// NewCircuitBreakerManager creates a manager. A nil config selects the
// defaults; onChange may be nil.
func NewCircuitBreakerManager(config *CircuitBreakerConfig, onChange StateChangeFunc) *CircuitBreakerManager {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
		onChange: onChange,
	}
}

// GetBreaker returns or creates the breaker for a host.
func (cbm *CircuitBreakerManager) GetBreaker(host string) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[host]; exists {
		return breaker
	}
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: cbm.config.MaxRequests,
		Interval:    cbm.config.Interval,
		Timeout:     cbm.config.Timeout,
		ReadyToTrip: cbm.config.ReadyToTrip,
	}
	if cbm.onChange != nil {
		onChange := cbm.onChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}
	breaker := gobreaker.NewCircuitBreaker(settings)
	cbm.breakers[host] = breaker
	return breaker
}

// Execute runs fn through the host's breaker.
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, host string, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := cbm.GetBreaker(host).Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", host, err)
	}
	return result, nil
}

func (cbm *CircuitBreakerManager) GetState(host string) gobreaker.State {
	return cbm.GetBreaker(host).State()
}

func (cbm *CircuitBreakerManager) GetStats(host string) map[string]interface{} {
	breaker := cbm.GetBreaker(host)
	counts := breaker.Counts()
	return map[string]interface{}{
		"host":                 host,
		"state":                breaker.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// Hosts lists the hosts that currently have a breaker, sorted.
func (cbm *CircuitBreakerManager) Hosts() []string {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	hosts := make([]string, 0, len(cbm.breakers))
	for h := range cbm.breakers {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func (cbm *CircuitBreakerManager) Reset(host string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	delete(cbm.breakers, host)
}

func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.breakers = make(map[string]*gobreaker.CircuitBreaker)
}

func (cbm *CircuitBreakerManager) IsOpen(host string) bool {
	return cbm.GetState(host) == gobreaker.StateOpen
}

func (cbm *CircuitBreakerManager) IsClosed(host string) bool {
	return cbm.GetState(host) == gobreaker.StateClosed
}
