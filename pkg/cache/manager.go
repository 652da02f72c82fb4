package cache

import (
	"context"
	"fmt"
)

// CacheManager pairs an LRU of results with in-flight deduplication.
type CacheManager[V any] struct {
	cache        *LRUCache[V]
	deduplicator *Deduplicator[V]
	config       *CacheConfig
}

// NewCacheManager creates a new cache manager
func NewCacheManager[V any](config *CacheConfig) (*CacheManager[V], error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	cache, err := NewLRUCache[V](config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &CacheManager[V]{
		cache:        cache,
		deduplicator: NewDeduplicator[V](),
		config:       config,
	}, nil
}

// Do returns the cached value for material, or computes it once however
// many callers ask concurrently. The boolean reports a cache hit.
func (cm *CacheManager[V]) Do(ctx context.Context, material interface{}, fn func(ctx context.Context) (V, error)) (V, bool, error) {
	key, err := GenerateKey(material)
	if err != nil {
		var zero V
		return zero, false, fmt.Errorf("failed to generate cache key: %w", err)
	}
	return cm.deduplicator.ExecuteWithCache(ctx, key, cm.cache, fn)
}

// Clear removes all values and statistics.
func (cm *CacheManager[V]) Clear() {
	cm.cache.Clear()
	cm.deduplicator.Reset()
}

// Stats returns cache and deduplication statistics.
func (cm *CacheManager[V]) Stats() map[string]interface{} {
	cacheStats := cm.cache.Stats()
	dedup := cm.deduplicator.Totals()

	var dedupRate float64
	if dedup.Requests > 0 {
		dedupRate = float64(dedup.Deduplicated) / float64(dedup.Requests)
	}
	return map[string]interface{}{
		"cache": map[string]interface{}{
			"hits":        cacheStats.Hits,
			"misses":      cacheStats.Misses,
			"size":        cacheStats.Size,
			"max_size":    cacheStats.MaxSize,
			"hit_rate":    cacheStats.HitRate,
			"evictions":   cacheStats.Evictions,
			"expirations": cacheStats.Expirations,
		},
		"deduplication": map[string]interface{}{
			"total_requests":     dedup.Requests,
			"total_deduplicated": dedup.Deduplicated,
			"total_cache_hits":   dedup.CacheHits,
			"dedup_rate":         dedupRate,
		},
		"config": map[string]interface{}{
			"max_size":    cm.config.MaxSize,
			"default_ttl": cm.config.DefaultTTL.String(),
		},
	}
}

func (cm *CacheManager[V]) Len() int {
	return cm.cache.Len()
}

// Close stops background cleanup.
func (cm *CacheManager[V]) Close() {
	cm.cache.Close()
}
