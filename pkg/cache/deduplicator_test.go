package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplicator(t *testing.T) {
	dedup := NewDeduplicator[string]()
	key := CacheKey("test-key")

	response, err := dedup.Execute(context.Background(), key, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if response != "done" {
		t.Errorf("Expected 'done', got %s", response)
	}

	stats := dedup.GetStats(key)
	if stats.Requests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.Requests)
	}
	if stats.Deduplicated != 0 {
		t.Errorf("Expected 0 deduplicated, got %d", stats.Deduplicated)
	}
}

func TestDeduplicatorConcurrent(t *testing.T) {
	dedup := NewDeduplicator[string]()
	key := CacheKey("test-key")

	var (
		calls   atomic.Int32
		wg      sync.WaitGroup
		start   = make(chan struct{})
		release = make(chan struct{})
	)
	numRequests := 5
	results := make([]string, numRequests)
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := dedup.Execute(context.Background(), key, func(ctx context.Context) (string, error) {
				calls.Add(1)
				<-release
				return "shared", nil
			})
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			results[i] = v
		}(i)
	}
	close(start)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("result %d = %q", i, v)
		}
	}
	if got := dedup.GetStats(key); got.Requests != int64(numRequests) || got.Deduplicated != int64(numRequests) {
		t.Errorf("Unexpected stats %+v", got)
	}
}

func TestDeduplicatorWithCache(t *testing.T) {
	dedup := NewDeduplicator[int]()
	cache, err := NewLRUCache[int](&CacheConfig{MaxSize: 4})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}
	v, hit, err := dedup.ExecuteWithCache(context.Background(), "k", cache, fn)
	if err != nil || v != 7 || hit {
		t.Fatalf("first call: %v %v %v", v, hit, err)
	}
	v, hit, err = dedup.ExecuteWithCache(context.Background(), "k", cache, fn)
	if err != nil || v != 7 || !hit {
		t.Fatalf("second call: %v %v %v", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if totals := dedup.Totals(); totals.CacheHits != 1 || totals.Requests != 2 {
		t.Errorf("Unexpected totals %+v", totals)
	}
}

func TestDeduplicatorErrorsAreNotCached(t *testing.T) {
	dedup := NewDeduplicator[int]()
	cache, _ := NewLRUCache[int](&CacheConfig{MaxSize: 4})
	defer cache.Close()

	boom := errors.New("boom")
	_, _, err := dedup.ExecuteWithCache(context.Background(), "k", cache, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("Expected failed result not to be cached")
	}
}
