package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sony/gobreaker"
)

func TestCircuitBreakerManager(t *testing.T) {
	cbm := NewCircuitBreakerManager(nil, nil)

	result, err := cbm.Execute(context.Background(), "data.example.com", func() (interface{}, error) {
		return "success", nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got %v", result)
	}
	if !cbm.IsClosed("data.example.com") {
		t.Error("Expected circuit breaker to be closed after success")
	}
}

func TestCircuitBreakerManagerWithFailures(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cbm := NewCircuitBreakerManager(nil, func(host string, from, to gobreaker.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, host+":"+from.String()+"->"+to.String())
	})

	for i := 0; i < 5; i++ {
		_, err := cbm.Execute(context.Background(), "flaky.example.com", func() (interface{}, error) {
			return nil, errors.New("simulated failure")
		})
		if err == nil {
			t.Error("Expected error for failing function")
		}
	}

	if !cbm.IsOpen("flaky.example.com") {
		t.Error("Expected circuit breaker to be open after failures")
	}
	_, err := cbm.Execute(context.Background(), "flaky.example.com", func() (interface{}, error) {
		return "success", nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open-state error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "flaky.example.com:closed->open" {
		t.Errorf("Unexpected transitions %v", transitions)
	}

	if !cbm.IsClosed("other.example.com") {
		t.Error("Expected breakers to be independent per host")
	}
}

func TestCircuitBreakerManagerStatsAndReset(t *testing.T) {
	cbm := NewCircuitBreakerManager(nil, nil)

	cbm.Execute(context.Background(), "stats.example.com", func() (interface{}, error) {
		return "success", nil
	})
	cbm.Execute(context.Background(), "stats.example.com", func() (interface{}, error) {
		return nil, errors.New("failure")
	})

	stats := cbm.GetStats("stats.example.com")
	if stats["host"] != "stats.example.com" {
		t.Errorf("Expected host to be stats.example.com, got %v", stats["host"])
	}
	if stats["requests"] != uint32(2) {
		t.Errorf("Expected 2 requests, got %v", stats["requests"])
	}

	cbm.Reset("stats.example.com")
	if got := cbm.GetStats("stats.example.com")["requests"]; got != uint32(0) {
		t.Errorf("Expected fresh breaker after reset, got %v requests", got)
	}
}

func TestCircuitBreakerCanceledContext(t *testing.T) {
	cbm := NewCircuitBreakerManager(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cbm.Execute(ctx, "h", func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("Expected cancellation before the call, got %v (called=%v)", err, called)
	}
}
