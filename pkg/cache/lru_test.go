package cache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/cache"
)

func TestLRUCache_Basic(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)

		val, ok = c.Get("b")
		assert.True(t, ok)
		assert.Equal(t, 2, val)

		val, ok = c.Get("c")
		assert.True(t, ok)
		assert.Equal(t, 3, val)

		assert.Equal(t, 3, c.Len())
	})

	t.Run("get non-existent", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		val, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, 0, val)
	})

	t.Run("update existing", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		c.Put("a", 1)
		oldVal, existed := c.Put("a", 2)

		assert.True(t, existed)
		assert.Equal(t, 1, oldVal)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, val)

		assert.Equal(t, 1, c.Len())
	})
}

func TestLRUCache_Eviction(t *testing.T) {
	t.Run("evict least recently used", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		// Fill cache to capacity
		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		// Add one more - should evict "a" (least recently used)
		c.Put("d", 4)

		// "a" should be evicted
		_, ok := c.Get("a")
		assert.False(t, ok, "a should have been evicted")

		// Others should still be present
		val, ok := c.Get("b")
		assert.True(t, ok)
		assert.Equal(t, 2, val)

		val, ok = c.Get("c")
		assert.True(t, ok)
		assert.Equal(t, 3, val)

		val, ok = c.Get("d")
		assert.True(t, ok)
		assert.Equal(t, 4, val)

		assert.Equal(t, 3, c.Len())
	})

	t.Run("get updates recency", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		// Access "a" to make it recently used
		c.Get("a")

		// Add "d" - should evict "b" (now least recently used)
		c.Put("d", 4)

		// "b" should be evicted
		_, ok := c.Get("b")
		assert.False(t, ok, "b should have been evicted")

		// "a" should still be present (was accessed)
		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)
	})

	t.Run("put updates recency", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		// Update "a" to make it recently used
		c.Put("a", 10)

		// Add "d" - should evict "b" (now least recently used)
		c.Put("d", 4)

		// "b" should be evicted
		_, ok := c.Get("b")
		assert.False(t, ok, "b should have been evicted")

		// "a" should still be present (was updated)
		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 10, val)
	})
}

func TestLRUCache_EvictionCallback(t *testing.T) {
	c := cache.NewLRUCache[string, int](2)

	evicted := make(map[string]int)
	c.SetEvictCallback(func(key string, value int) {
		evicted[key] = value
	})

	c.Put("a", 1)
	c.Put("b", 2)

	// Should evict "a"
	c.Put("c", 3)
	assert.Equal(t, 1, evicted["a"], "a should have been evicted with value 1")

	// Should evict "b"
	c.Put("d", 4)
	assert.Equal(t, 2, evicted["b"], "b should have been evicted with value 2")

	// Clear should evict remaining items
	c.Clear()
	assert.Equal(t, 3, evicted["c"], "c should have been evicted with value 3")
	assert.Equal(t, 4, evicted["d"], "d should have been evicted with value 4")
}

func TestLRUCache_Remove(t *testing.T) {
	c := cache.NewLRUCache[string, int](3)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Remove existing
	val, ok := c.Remove("b")
	assert.True(t, ok)
	assert.Equal(t, 2, val)
	assert.Equal(t, 2, c.Len())

	// Verify it's gone
	_, ok = c.Get("b")
	assert.False(t, ok)

	// Remove non-existent
	val, ok = c.Remove("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, val)
}

func TestLRUCache_Clear(t *testing.T) {
	c := cache.NewLRUCache[string, int](3)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	c.Clear()

	assert.Equal(t, 0, c.Len())

	// All items should be gone
	_, ok := c.Get("a")
	assert.False(t, ok)

	_, ok = c.Get("b")
	assert.False(t, ok)

	_, ok = c.Get("c")
	assert.False(t, ok)
}

func TestLRUCache_EdgeCases(t *testing.T) {
	t.Run("capacity of 1", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](1)

		c.Put("a", 1)
		c.Put("b", 2)

		// Only "b" should remain
		_, ok := c.Get("a")
		assert.False(t, ok)

		val, ok := c.Get("b")
		assert.True(t, ok)
		assert.Equal(t, 2, val)
	})

	t.Run("panic on zero capacity", func(t *testing.T) {
		assert.Panics(t, func() {
			cache.NewLRUCache[string, int](0)
		})
	})

	t.Run("panic on negative capacity", func(t *testing.T) {
		assert.Panics(t, func() {
			cache.NewLRUCache[string, int](-1)
		})
	})
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("entry expires after ttl", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3, cache.WithTTL(time.Minute), cache.WithClock(clock))
		c.Put("a", 1)

		now = now.Add(59 * time.Second)
		_, ok := c.Get("a")
		assert.True(t, ok)

		now = now.Add(time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("put refreshes ttl", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3, cache.WithTTL(time.Minute), cache.WithClock(clock))
		c.Put("a", 1)
		now = now.Add(50 * time.Second)
		c.Put("a", 2)
		now = now.Add(50 * time.Second)

		val, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 2, val)
	})

	t.Run("expired entries trigger evict callback", func(t *testing.T) {
		c := cache.NewLRUCache[string, int](3, cache.WithTTL(time.Minute), cache.WithClock(clock))
		var evicted []string
		c.SetEvictCallback(func(key string, _ int) { evicted = append(evicted, key) })

		c.Put("a", 1)
		now = now.Add(2 * time.Minute)
		c.Get("a")

		assert.Equal(t, []string{"a"}, evicted)
	})
}

func TestLRUCache_Add(t *testing.T) {
	t.Run("first add wins", func(t *testing.T) {
		c := cache.NewLRUCache[string, struct{}](10)

		assert.True(t, c.Add("evt_1", struct{}{}))
		assert.False(t, c.Add("evt_1", struct{}{}))
		assert.True(t, c.Add("evt_2", struct{}{}))
	})

	t.Run("add after expiry", func(t *testing.T) {
		now := time.Now()
		c := cache.NewLRUCache[string, struct{}](10,
			cache.WithTTL(time.Hour),
			cache.WithClock(func() time.Time { return now }),
		)

		assert.True(t, c.Add("evt_1", struct{}{}))
		now = now.Add(2 * time.Hour)
		assert.True(t, c.Add("evt_1", struct{}{}))
	})

	t.Run("concurrent adds of one key", func(t *testing.T) {
		c := cache.NewLRUCache[string, struct{}](10)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Add("evt", struct{}{}) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func BenchmarkLRUCache_Add(b *testing.B) {
	c := cache.NewLRUCache[int, struct{}](1000, cache.WithTTL(time.Minute))

	b.ResetTimer()
	for i := range b.N {
		c.Add(i%2000, struct{}{})
	}
}
