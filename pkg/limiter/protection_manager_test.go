package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry() *RetryManager {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.Jitter = false
	return NewRetryManager(cfg, nil)
}

func TestProtectionManagerRetriesThenSucceeds(t *testing.T) {
	pm := NewProtectionManager(NewRateLimiter(0, 1), fastRetry(), nil)

	calls := 0
	got, err := pm.ExecuteWithProtection(context.Background(), "h", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 2 {
			return nil, NewHTTPError(503, "unavailable", "")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got %v, %v", got, err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestProtectionManagerOpenCircuit(t *testing.T) {
	pm := NewProtectionManager(nil, NewRetryManager(&RetryConfig{}, nil), nil)
	fail := func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("down")
	}
	for i := 0; i < 5; i++ {
		pm.ExecuteWithProtection(context.Background(), "down.example.com", fail)
	}

	_, err := pm.ExecuteWithProtection(context.Background(), "down.example.com", fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if pm.IsHostAvailable("down.example.com") {
		t.Error("Expected host to be unavailable")
	}

	if stats := pm.GetStats("down.example.com"); stats["closed"] != false || stats["available"] != false {
		t.Errorf("Expected open breaker in stats, got %v", stats)
	}
	if _, ok := pm.GetAllStats()["down.example.com"]; !ok {
		t.Error("Expected tripped host in GetAllStats")
	}

	pm.ResetHost("down.example.com")
	if !pm.IsHostAvailable("down.example.com") {
		t.Error("Expected host to be available after reset")
	}
	if stats := pm.GetStats("down.example.com"); stats["host"] != "down.example.com" || stats["closed"] != true {
		t.Errorf("unexpected stats %v", stats)
	}

	pm.GetStats("other.example.com")
	pm.ResetAll()
	if hosts := pm.GetAllStats(); len(hosts) != 0 {
		t.Errorf("Expected no hosts after ResetAll, got %v", hosts)
	}
}
