// Package cache provides a generic, thread-safe LRU cache with optional TTL.
//
// The cache evicts the least recently used entry once it reaches capacity.
// With WithTTL, entries also expire a fixed duration after their last write;
// expired entries are dropped lazily when accessed.
//
// # Usage
//
//	seen := cache.NewLRUCache[string, struct{}](10_000, cache.WithTTL(24*time.Hour))
//
//	if !seen.Add(eventID, struct{}{}) {
//		return nil // duplicate delivery
//	}
//
// Add is an atomic check-and-set, so concurrent callers racing on the same
// key see exactly one success. Put always writes and refreshes the TTL.
//
// # Eviction Callbacks
//
//	c.SetEvictCallback(func(key string, v *Conn) { _ = v.Close() })
//
// The callback runs for capacity evictions, expiry, Remove and Clear, while
// the cache lock is held, so it must not call back into the cache.
package cache
