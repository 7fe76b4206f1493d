package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// Broker fans events out to every live subscription.
// Publish never blocks: a subscriber whose buffer is full misses the event
// and the broker counts the drop. Consumers that cannot afford a miss (the
// registry accessor) pair a subscription with a fallback poll.
type Broker[T any] struct {
	subs       map[chan Event[T]]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
	dropped    atomic.Uint64
	onDrop     func(EventType)
}

// Option configures a Broker.
type Option func(*brokerOptions)

type brokerOptions struct {
	bufferSize int
	onDrop     func(EventType)
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(size int) Option {
	return func(o *brokerOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithDropHook is called, outside any subscriber channel, for every
// event a full subscriber misses.
func WithDropHook(fn func(EventType)) Option {
	return func(o *brokerOptions) { o.onDrop = fn }
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any](opts ...Option) *Broker[T] {
	o := brokerOptions{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: o.bufferSize,
		onDrop:     o.onDrop,
	}
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return NewBroker[T](WithBuffer(size))
}

// Subscribe creates a new subscription channel.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		delete(b.subs, sub)
		close(sub)
	}()

	return sub
}

// Publish sends an event to all subscribers.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()

	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	missed := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			missed++
		}
	}
	b.mu.RUnlock()

	if missed == 0 {
		return
	}
	b.dropped.Add(uint64(missed))
	if b.onDrop != nil {
		for range missed {
			b.onDrop(eventType)
		}
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
