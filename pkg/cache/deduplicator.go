package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent calls that share a key.
type Deduplicator[V any] struct {
	group singleflight.Group
	mu    sync.Mutex
	stats map[CacheKey]*DedupStats
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
	CacheHits    int64 `json:"cache_hits"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator[V any]() *Deduplicator[V] {
	return &Deduplicator[V]{
		stats: make(map[CacheKey]*DedupStats),
	}
}

// Execute runs fn once for all concurrent callers of key. The context of
// the caller that started the flight governs the shared call.
func (d *Deduplicator[V]) Execute(ctx context.Context, key CacheKey, fn func(ctx context.Context) (V, error)) (V, error) {
	v, _, err := d.execute(ctx, key, nil, fn)
	return v, err
}

// ExecuteWithCache consults cache first and stores fresh results in it.
// The boolean reports a cache hit.
func (d *Deduplicator[V]) ExecuteWithCache(
	ctx context.Context,
	key CacheKey,
	cache *LRUCache[V],
	fn func(ctx context.Context) (V, error),
) (V, bool, error) {
	if cache != nil {
		if entry, exists := cache.Get(key); exists {
			d.updateStats(key, false, true)
			return entry.Value, true, nil
		}
	}
	return d.execute(ctx, key, cache, fn)
}

func (d *Deduplicator[V]) execute(ctx context.Context, key CacheKey, cache *LRUCache[V], fn func(ctx context.Context) (V, error)) (V, bool, error) {
	result, err, shared := d.group.Do(string(key), func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			cache.Set(key, v, 0)
		}
		return v, nil
	})
	d.updateStats(key, shared, false)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return result.(V), false, nil
}

func (d *Deduplicator[V]) updateStats(key CacheKey, deduplicated, cacheHit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats, exists := d.stats[key]
	if !exists {
		stats = &DedupStats{}
		d.stats[key] = stats
	}
	stats.Requests++
	if deduplicated {
		stats.Deduplicated++
	}
	if cacheHit {
		stats.CacheHits++
	}
}

// GetStats returns deduplication statistics for a key
func (d *Deduplicator[V]) GetStats(key CacheKey) DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats, exists := d.stats[key]; exists {
		return *stats
	}
	return DedupStats{}
}

// Totals sums the statistics over all keys.
func (d *Deduplicator[V]) Totals() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out DedupStats
	for _, s := range d.stats {
		out.Requests += s.Requests
		out.Deduplicated += s.Deduplicated
		out.CacheHits += s.CacheHits
	}
	return out
}

// Reset resets all statistics
func (d *Deduplicator[V]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = make(map[CacheKey]*DedupStats)
}
