package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/bimview/internal/log"
)

const DefaultExpiration = 10 * time.Minute

// Option configures an InMemoryCacheManager.
type Option func(*options)

type options struct {
	cleanupInterval time.Duration
	observe         func(hit bool)
}

// WithCleanupInterval starts go-cache's janitor goroutine, which purges
// expired entries every interval. Without it expired entries are purged on
// Set.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *options) { o.cleanupInterval = interval }
}

// WithLookupObserver is called once per key looked up, with whether it hit.
func WithLookupObserver(fn func(hit bool)) Option {
	return func(o *options) { o.observe = fn }
}

// NewInMemoryCacheManager creates an empty cache. useCase names the cache in
// log entries.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration time.Duration, opts ...Option) *InMemoryCacheManager[K, V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		janitor: o.cleanupInterval > 0,
		observe: o.observe,
		cache:   gocache.New(defaultExpiration, o.cleanupInterval),
	}
}

// InMemoryCacheManager is the go-cache implementation of CacheManager.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	janitor bool
	observe func(hit bool)
	cache   *gocache.Cache
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, ok := c.lookup(key)
	c.record(ok)
	return v, ok
}

func (c *InMemoryCacheManager[K, V]) lookup(key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)

		return zeroValue, false
	}

	return v, true
}

func (c *InMemoryCacheManager[K, V]) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

// GetMultiple returns the cached subset of keys. ok is false when none of
// them is cached.
func (c *InMemoryCacheManager[K, V]) GetMultiple(ctx context.Context, keys []K) (map[K]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}

	values := make(map[K]V, len(keys))
	missing := 0
	for _, key := range keys {
		v, ok := c.lookup(key)
		c.record(ok)
		if !ok {
			missing++
			continue
		}
		values[key] = v
	}

	if len(values) == 0 {
		return nil, false
	}
	if missing > 0 {
		log.Debug(log.CatCache, "partial cache miss", "cache", c.useCase, "missing", missing, "requested", len(keys))
	}

	return values, true
}

// GetWithRefresh retrieves an item and, when found, stores it again with a
// fresh ttl.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	value, found := c.Get(ctx, key)
	if !found {
		return value, found
	}

	c.Set(ctx, key, value, ttl)

	return value, found
}

// Set stores value under key for ttl.
func (c *InMemoryCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	if !c.janitor {
		c.cache.DeleteExpired()
	}
	c.cache.Set(string(key), value, ttl)
}

// Delete removes keys.
func (c *InMemoryCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}

	return nil
}

// Flush removes every entry.
func (c *InMemoryCacheManager[K, V]) Flush(ctx context.Context) error {
	c.cache.Flush()
	log.Debug(log.CatCache, "cache flushed", "cache", c.useCase)

	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are purged.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}
