package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedDoc struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func TestMultiLevelCache_L1Only(t *testing.T) {
	ctx := context.Background()
	c := NewMultiLevelCache(nil, time.Minute)

	require.NoError(t, c.Set(ctx, "doc:1", cachedDoc{ID: "1", Tags: []string{"a"}}, time.Minute))

	var got cachedDoc
	require.NoError(t, c.Get(ctx, "doc:1", &got))
	assert.Equal(t, "1", got.ID)

	got.Tags[0] = "mutated"
	var again cachedDoc
	require.NoError(t, c.Get(ctx, "doc:1", &again))
	assert.Equal(t, "a", again.Tags[0], "cached value must not alias caller copies")

	require.NoError(t, c.Delete(ctx, "doc:1"))
	assert.ErrorIs(t, c.Get(ctx, "doc:1", &got), ErrCacheMiss)
}

func TestMultiLevelCache_ReadsThroughToRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	l2 := NewRedisCache(&CacheConfig{Addr: mr.Addr(), KeyPrefix: "t:"})
	c := NewMultiLevelCache(l2, time.Minute)

	require.NoError(t, l2.Set(ctx, "doc:2", cachedDoc{ID: "2"}, time.Minute))

	var got cachedDoc
	require.NoError(t, c.Get(ctx, "doc:2", &got))
	assert.Equal(t, "2", got.ID)

	mr.Del("t:doc:2")
	var fromL1 cachedDoc
	require.NoError(t, c.Get(ctx, "doc:2", &fromL1), "second read is served by L1")
	assert.Equal(t, "2", fromL1.ID)

	stats := c.GetMetrics()
	assert.Equal(t, int64(2), stats.Hits)
}

func TestMultiLevelCache_DeletePatternClearsBothLevels(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewMultiLevelCache(NewRedisCache(&CacheConfig{Addr: mr.Addr(), KeyPrefix: "t:"}), time.Minute)

	require.NoError(t, c.Set(ctx, "task:1", cachedDoc{ID: "1"}, time.Minute))
	require.NoError(t, c.Set(ctx, "task:2", cachedDoc{ID: "2"}, time.Minute))
	require.NoError(t, c.Set(ctx, "user:1", cachedDoc{ID: "u"}, time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "task:*"))

	var got cachedDoc
	assert.ErrorIs(t, c.Get(ctx, "task:1", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "task:2", &got), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "user:1", &got))
	assert.False(t, mr.Exists("t:task:1"))
}

func TestMultiLevelCache_RedisOutageDegrades(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewMultiLevelCache(NewRedisCache(&CacheConfig{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	}), time.Minute)
	mr.Close()

	var got cachedDoc
	for i := 0; i < 6; i++ {
		assert.Error(t, c.Get(ctx, "missing", &got))
	}
	assert.Equal(t, CircuitBreakerOpen, c.breaker.GetState())
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheDown)
}

func TestMultiLevelCache_DeferredInvalidationReplayed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewMultiLevelCache(NewRedisCache(&CacheConfig{
		Addr:        mr.Addr(),
		KeyPrefix:   "t:",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	}), time.Minute)

	require.NoError(t, c.Set(ctx, "task:1", cachedDoc{ID: "old"}, time.Minute))

	mr.Close()
	assert.Error(t, c.Delete(ctx, "task:1"))
	assert.Equal(t, 1, c.Stats()["deferred_invalidations"])

	require.NoError(t, mr.Restart())
	require.True(t, mr.Exists("t:task:1"), "L2 still holds the stale copy")

	var got cachedDoc
	assert.ErrorIs(t, c.Get(ctx, "task:1", &got), ErrCacheMiss)
	assert.False(t, mr.Exists("t:task:1"))
	assert.Equal(t, 0, c.Stats()["deferred_invalidations"])
}

func TestMemoryCache_Expiry(t *testing.T) {
	m := NewMemoryCache()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set("k", "v", time.Second)
	_, found := m.Get("k")
	assert.True(t, found)

	now = now.Add(2 * time.Second)
	_, found = m.Get("k")
	assert.False(t, found)
	assert.Equal(t, 0, m.Len())
}
