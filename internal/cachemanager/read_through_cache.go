package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache loads a value with fn on a miss and caches it.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
}

func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)

	return value, nil
}

// BatchReadThroughCache serves a set of keys from the cache and loads every
// missing key with a single fn call.
type BatchReadThroughCache[K comparable, V any] struct {
	cache CacheManager[K, V]
	fn    func(ctx context.Context, missing []K) (map[K]V, error)
}

func NewBatchReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, missing []K) (map[K]V, error),
) *BatchReadThroughCache[K, V] {
	return &BatchReadThroughCache[K, V]{cache: cache, fn: fn}
}

// GetMultiple returns the values of keys. Keys fn does not return are
// absent from the result and are not cached. On error nothing is cached and
// the partial result is discarded.
func (r *BatchReadThroughCache[K, V]) GetMultiple(ctx context.Context, keys []K, ttl time.Duration) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}

	out, _ := r.cache.GetMultiple(ctx, keys)
	if out == nil {
		out = make(map[K]V, len(keys))
	}

	var missing []K
	for _, key := range keys {
		if _, ok := out[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := r.fn(ctx, missing)
	if err != nil {
		return nil, err
	}
	for key, value := range loaded {
		r.cache.Set(ctx, key, value, ttl)
		out[key] = value
	}

	return out, nil
}
