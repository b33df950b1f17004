package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"reflect"
	"sync"
	"time"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

// MultiLevelCache keeps a short-lived in-process copy in front of Redis. Redis calls go
// through a circuit breaker so an outage degrades to L1 only instead of stalling requests.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	l1TTL   time.Duration
	breaker *CircuitBreaker
	metrics *CacheMetrics

	// Invalidations that could not reach L2. Reads of these keys skip L2 until a retried
	// delete succeeds.
	mu            sync.Mutex
	staleKeys     map[string]struct{}
	stalePatterns map[string]struct{}
}

func NewMultiLevelCache(redisCache *RedisCache, l1TTL time.Duration) *MultiLevelCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		l1TTL:   l1TTL,
		breaker: NewCircuitBreaker(nil),
		metrics: NewCacheMetrics(),

		staleKeys:     make(map[string]struct{}),
		stalePatterns: make(map[string]struct{}),
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.metrics.RecordSet()
	c.l1.Set(key, value, minTTL(ttl, c.l1TTL))

	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(func() error {
		return c.l2.Set(ctx, key, value, ttl)
	})
	if err != nil {
		c.metrics.RecordError()
		return err
	}
	c.mu.Lock()
	delete(c.staleKeys, key)
	c.mu.Unlock()
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		c.metrics.RecordHit()
		return copyValue(value, dest)
	}

	if c.l2 == nil || !c.replayInvalidations(ctx, key) {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	miss := false
	err := c.breaker.Execute(func() error {
		err := c.l2.Get(ctx, key, dest)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})

	switch {
	case err != nil:
		c.metrics.RecordError()
		if errors.Is(err, ErrCircuitBreakerOpen) {
			return ErrCacheDown
		}
		return err
	case miss:
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordHit()
	c.l1.Set(key, reflect.ValueOf(dest).Elem().Interface(), c.l1TTL)
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	c.metrics.RecordDelete()
	c.l1.Delete(key)

	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(func() error {
		return c.l2.Delete(ctx, key)
	})
	if err != nil {
		c.markStale(c.staleKeys, key, err)
	}
	return err
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.metrics.RecordDelete()
	c.l1.DeletePattern(pattern)

	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
	if err != nil {
		c.markStale(c.stalePatterns, pattern, err)
	}
	return err
}

func (c *MultiLevelCache) markStale(set map[string]struct{}, entry string, err error) {
	c.mu.Lock()
	set[entry] = struct{}{}
	c.mu.Unlock()
	log.Printf("[cache] Warning: invalidation of %s deferred: %v", entry, err)
}

// replayInvalidations retries deferred deletes covering key. It reports whether L2 may be
// read for key.
func (c *MultiLevelCache) replayInvalidations(ctx context.Context, key string) bool {
	c.mu.Lock()
	_, keyStale := c.staleKeys[key]
	var patterns []string
	for pattern := range c.stalePatterns {
		if matched, _ := path.Match(pattern, key); matched {
			patterns = append(patterns, pattern)
		}
	}
	c.mu.Unlock()

	if keyStale {
		if err := c.breaker.Execute(func() error { return c.l2.Delete(ctx, key) }); err != nil {
			return false
		}
		c.mu.Lock()
		delete(c.staleKeys, key)
		c.mu.Unlock()
	}
	for _, pattern := range patterns {
		if err := c.breaker.Execute(func() error { return c.l2.DeletePattern(ctx, pattern) }); err != nil {
			return false
		}
		c.mu.Lock()
		delete(c.stalePatterns, pattern)
		c.mu.Unlock()
	}
	return true
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	snapshot := c.metrics.GetStats()
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"hits":     snapshot.Hits,
		"misses":   snapshot.Misses,
		"errors":   snapshot.Errors,
		"hit_rate": c.metrics.HitRate(),
		"breaker":  c.breaker.GetStats(),
	}

	c.mu.Lock()
	stats["deferred_invalidations"] = len(c.staleKeys) + len(c.stalePatterns)
	c.mu.Unlock()

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 != nil {
		return c.l2.Health(ctx)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func minTTL(a, b time.Duration) time.Duration {
	if a <= 0 || b < a {
		return b
	}
	return a
}

// copyValue round-trips through JSON so callers never alias the cached value.
func copyValue(src, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer, got %T", dest)
	}
	if destValue.IsNil() {
		return fmt.Errorf("destination pointer is nil")
	}

	jsonData, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source value: %w", err)
	}
	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("failed to unmarshal to destination: %w", err)
	}
	return nil
}

func (c *MultiLevelCache) GetMetrics() MetricsSnapshot {
	return c.metrics.GetStats()
}
