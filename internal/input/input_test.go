package input

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventPredicates(t *testing.T) {
	require.True(t, Event{Kind: KeyDown, Code: CodeNumpadEnter}.IsEnter())
	require.True(t, Event{Kind: KeyDown, Code: CodeBackspace}.IsDelete())
	require.False(t, Event{Kind: DoubleClick, Code: CodeDelete}.IsDelete())
	require.True(t, Event{Kind: MouseDown, Button: ButtonLeft, Ctrl: true}.IsLeftDown())
	require.False(t, Event{Kind: MouseDown, Button: ButtonRight}.IsLeftDown())
}

func TestGroup_DeliversMatchingEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	g := NewGroup(context.Background())
	defer g.Abort()

	var mu sync.Mutex
	var got []Event
	g.On(bus, Event.IsEnter, func(_ context.Context, e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	bus.Emit(Event{Kind: KeyDown, Code: "KeyA"})
	bus.Emit(Event{Kind: KeyDown, Code: CodeEnter})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, CodeEnter, got[0].Code)
}

func TestGroup_AbortDetachesAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	g := NewGroup(context.Background())
	g.On(bus, nil, func(context.Context, Event) {})
	g.On(bus, nil, func(context.Context, Event) {})
	require.Equal(t, 2, bus.Listeners())

	g.Abort()

	require.Eventually(t, func() bool { return bus.Listeners() == 0 }, time.Second, 5*time.Millisecond)
	require.Error(t, g.Context().Err())
}
