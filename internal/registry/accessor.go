package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/pubsub"
)

// DefaultPollInterval is the fallback re-check period of an Accessor.
const DefaultPollInterval = 100 * time.Millisecond

// ErrAccessorClosed is returned by Wait when the accessor was closed
// before the service appeared.
var ErrAccessorClosed = errors.New("registry: accessor closed")

// Accessor waits for a keyed service to appear in a Registry and then
// keeps it. Resolution is driven by the registry's Registered events; a
// ticker re-checks on interval in case an event was dropped.
//
// Once resolved the accessor stops watching: a later disposal of the key
// does not reset it.
type Accessor[T any] struct {
	key    Key
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu    sync.RWMutex
	value T
	ok    bool
}

// NewAccessor starts resolving key. Close must be called to release the
// watcher goroutine.
func NewAccessor[T any](ctx context.Context, r *Registry, key Key, interval time.Duration) *Accessor[T] {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &Accessor[T]{
		key:    key,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	// Subscribe before the first check so a registration in between is seen.
	changes := r.Subscribe(ctx)
	go a.run(ctx, r, changes, interval)
	return a
}

func (a *Accessor[T]) run(ctx context.Context, r *Registry, changes <-chan pubsub.Event[Change], interval time.Duration) {
	defer close(a.done)
	// Drops the subscription once resolved.
	defer a.cancel()

	if a.tryResolve(r) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-changes:
			if !open {
				changes = nil
				continue
			}
			if ev.Type != pubsub.RegisteredEvent || ev.Payload.Key != a.key {
				continue
			}
		case <-ticker.C:
		}
		if a.tryResolve(r) {
			return
		}
	}
}

func (a *Accessor[T]) tryResolve(r *Registry) bool {
	v, ok := Lookup[T](r, a.key)
	if !ok {
		return false
	}
	a.mu.Lock()
	a.value, a.ok = v, true
	a.mu.Unlock()
	close(a.ready)
	log.Debug(log.CatRegistry, "Accessor resolved", "key", a.key)
	return true
}

// Key returns the key being resolved.
func (a *Accessor[T]) Key() Key { return a.key }

// Get returns the resolved service, or false while still pending.
func (a *Accessor[T]) Get() (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value, a.ok
}

// Ready is closed once the service has been resolved.
func (a *Accessor[T]) Ready() <-chan struct{} { return a.ready }

// Wait blocks until the service is resolved, ctx ends or the accessor is
// closed.
func (a *Accessor[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-a.ready:
		v, _ := a.Get()
		return v, nil
	default:
	}
	select {
	case <-a.ready:
		v, _ := a.Get()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-a.done:
		// done may close right after ready on the success path.
		if v, ok := a.Get(); ok {
			return v, nil
		}
		var zero T
		return zero, ErrAccessorClosed
	}
}

// Close stops any pending resolution and waits for the watcher to exit.
// Safe to call more than once, and after resolution.
func (a *Accessor[T]) Close() {
	a.cancel()
	<-a.done
}

// ResolvedMsg is delivered to the Bubble Tea loop when an accessor
// resolves.
type ResolvedMsg[T any] struct {
	Key   Key
	Value T
}

// AwaitCmd returns a command that yields ResolvedMsg once the service is
// available, or nil if the accessor is closed first.
func (a *Accessor[T]) AwaitCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		v, err := a.Wait(ctx)
		if err != nil {
			return nil
		}
		return ResolvedMsg[T]{Key: a.key, Value: v}
	}
}
