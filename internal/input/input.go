// Package input carries viewport gestures (key presses, double clicks,
// mouse downs) from the terminal UI to the viewer tools.
//
// Tools listen through a Group: every listener added to a group shares one
// cancellation, so a single Abort detaches all of them.
package input

import (
	"context"
	"sync"

	"github.com/zjrosen/bimview/internal/pubsub"
)

// Kind is the gesture type.
type Kind int

const (
	KeyDown Kind = iota
	DoubleClick
	MouseDown
)

func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "keydown"
	case DoubleClick:
		return "dblclick"
	case MouseDown:
		return "mousedown"
	default:
		return "unknown"
	}
}

// Key codes, named after DOM KeyboardEvent.code values.
const (
	CodeEnter       = "Enter"
	CodeNumpadEnter = "NumpadEnter"
	CodeDelete      = "Delete"
	CodeBackspace   = "Backspace"
)

// Mouse buttons.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// Event is one viewport gesture.
type Event struct {
	Kind   Kind
	Code   string
	Button int
	Ctrl   bool
}

// IsEnter reports an Enter or NumpadEnter key press.
func (e Event) IsEnter() bool {
	return e.Kind == KeyDown && (e.Code == CodeEnter || e.Code == CodeNumpadEnter)
}

// IsDelete reports a Delete or Backspace key press.
func (e Event) IsDelete() bool {
	return e.Kind == KeyDown && (e.Code == CodeDelete || e.Code == CodeBackspace)
}

// IsLeftDown reports a left mouse button press.
func (e Event) IsLeftDown() bool {
	return e.Kind == MouseDown && e.Button == ButtonLeft
}

// Bus distributes events to listeners.
type Bus struct {
	broker *pubsub.Broker[Event]
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{broker: pubsub.NewBroker[Event]()}
}

// Emit publishes e to every listener.
func (b *Bus) Emit(e Event) {
	b.broker.Publish(pubsub.CreatedEvent, e)
}

func (b *Bus) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return b.broker.Subscribe(ctx)
}

// Listeners returns the number of live subscriptions.
func (b *Bus) Listeners() int { return b.broker.SubscriberCount() }

// Close ends every subscription.
func (b *Bus) Close() { b.broker.Close() }

// Handler reacts to one event. ctx is cancelled when the group aborts.
type Handler func(ctx context.Context, e Event)

// Group is a set of listeners sharing one cancellation.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup returns a group bound to parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// On subscribes h to the events of bus that satisfy match. Events are
// handled one at a time, in order.
func (g *Group) On(bus *Bus, match func(Event) bool, h Handler) {
	ch := bus.Subscribe(g.ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			select {
			case <-g.ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if match == nil || match(ev.Payload) {
					h(g.ctx, ev.Payload)
				}
			}
		}
	}()
}

// Context is cancelled by Abort.
func (g *Group) Context() context.Context { return g.ctx }

// Abort detaches every listener and waits for in-flight handlers. It must
// not be called from inside one of the group's handlers.
func (g *Group) Abort() {
	g.cancel()
	g.wg.Wait()
}
