package pubsub

import (
	"context"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
)

// ListenCmd creates a Bubble Tea command that waits for the next event on ch.
// Returns nil if the context is cancelled or the channel is closed.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return listenMatching(ctx, ch, nil)
}

func listenMatching[T any](ctx context.Context, ch <-chan Event[T], types []EventType) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-ch:
				if !ok {
					return nil
				}
				if len(types) > 0 && !slices.Contains(types, event.Type) {
					continue
				}
				return event
			}
		}
	}
}

// ContinuousListener keeps one broker subscription alive across Update
// calls. Call Listen again after handling each event.
type ContinuousListener[T any] struct {
	ctx   context.Context
	ch    <-chan Event[T]
	types []EventType
}

// NewContinuousListener subscribes to broker. When types is non-empty only
// those event types are delivered; others are consumed silently.
func NewContinuousListener[T any](ctx context.Context, broker Subscriber[T], types ...EventType) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx:   ctx,
		ch:    broker.Subscribe(ctx),
		types: types,
	}
}

// Listen returns a tea.Cmd that waits for the next event.
func (l *ContinuousListener[T]) Listen() tea.Cmd {
	return listenMatching(l.ctx, l.ch, l.types)
}
