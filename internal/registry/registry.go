// Package registry holds the engine sub-objects of one viewer session
// (world, fragments manager, measurers, highlighter, clipper, views) under
// well-known keys, and owns their disposal.
//
// A Registry is created per session and passed down from the application
// root. Producers Register what they build; consumers either Get it
// directly or wait for it with an Accessor.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/pubsub"
)

// Key identifies a registry entry.
type Key string

// Well-known keys used by the viewer session.
const (
	KeyComponents       Key = "components"
	KeyFragmentsManager Key = "fragmentsManager"
	KeyAreaMeasurer     Key = "areaMeasurer"
	KeyLengthMeasurer   Key = "lengthMeasurer"
	KeyVolumeMeasurer   Key = "volumeMeasurer"
	KeyHighlighter      Key = "highlighter"
	KeyClipper          Key = "clipper"
	KeyOrbitLock        Key = "orbitLock"
	KeyViews            Key = "views"
)

// ErrNilService is returned when registering a nil instance.
var ErrNilService = errors.New("registry: nil service")

// Disposable is implemented by everything stored in the registry.
type Disposable interface {
	Dispose()
}

// Change is published on every registration and disposal.
// The event type is pubsub.RegisteredEvent or pubsub.DisposedEvent.
type Change struct {
	Key Key
}

// Option configures a Registry.
type Option func(*Registry)

// WithSizeObserver is called with the entry count after every change.
func WithSizeObserver(fn func(n int)) Option {
	return func(r *Registry) { r.observe = fn }
}

// Registry is a session-scoped key to service map. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]Disposable
	order   []Key
	changes *pubsub.Broker[Change]
	observe func(int)
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Key]Disposable),
		changes: pubsub.NewBroker[Change](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores instance under key.
//
// If key already holds a different instance, the previous one is removed
// and disposed before instance is stored, so it may dispose its own key
// without touching the replacement. Registering the same instance again
// only re-publishes the change.
func (r *Registry) Register(key Key, instance Disposable) error {
	if isNil(instance) {
		return fmt.Errorf("register %q: %w", key, ErrNilService)
	}

	r.mu.Lock()
	prev, existed := r.entries[key]
	if existed && !sameInstance(prev, instance) {
		delete(r.entries, key)
		r.mu.Unlock()

		log.Warn(log.CatRegistry, "Replacing live service", "key", key)
		prev.Dispose()
		r.changes.Publish(pubsub.DisposedEvent, Change{Key: key})

		r.mu.Lock()
	}
	r.entries[key] = instance
	if !slices.Contains(r.order, key) {
		r.order = append(r.order, key)
	}
	n := len(r.entries)
	r.mu.Unlock()

	log.Debug(log.CatRegistry, "Registered service", "key", key, "entries", n)
	r.notify(pubsub.RegisteredEvent, key, n)
	return nil
}

// Get returns the service under key, or nil when absent.
func (r *Registry) Get(key Key) Disposable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

// Has reports whether key is registered.
func (r *Registry) Has(key Key) bool {
	return r.Get(key) != nil
}

// Lookup returns the service under key as T. A present entry of another
// type reports false.
func Lookup[T any](r *Registry, key Key) (T, bool) {
	var zero T
	v := r.Get(key)
	if v == nil {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		log.Error(log.CatRegistry, "Service has unexpected type",
			"key", key, "type", fmt.Sprintf("%T", v))
		return zero, false
	}
	return t, true
}

// Dispose removes key and calls its Dispose exactly once. A missing key is
// a no-op. The entry is removed before Dispose runs, so an instance may
// dispose its own key from inside Dispose.
func (r *Registry) Dispose(key Key) {
	r.mu.Lock()
	instance, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.order = slices.DeleteFunc(r.order, func(k Key) bool { return k == key })
	n := len(r.entries)
	r.mu.Unlock()

	instance.Dispose()
	log.Debug(log.CatRegistry, "Disposed service", "key", key, "entries", n)
	r.notify(pubsub.DisposedEvent, key, n)
}

// DisposeAll disposes every entry in registration order.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	keys := slices.Clone(r.order)
	r.mu.Unlock()

	for _, key := range keys {
		r.Dispose(key)
	}
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Subscribe streams registry changes until ctx is cancelled.
func (r *Registry) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return r.changes.Subscribe(ctx)
}

// Close disposes every entry and shuts down the change stream.
func (r *Registry) Close() {
	r.DisposeAll()
	r.changes.Close()
}

func (r *Registry) notify(et pubsub.EventType, key Key, n int) {
	if r.observe != nil {
		r.observe(n)
	}
	r.changes.Publish(et, Change{Key: key})
}

func isNil(d Disposable) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func sameInstance(a, b Disposable) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
