package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zjrosen/bimview/internal/pubsub"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubService struct {
	name      string
	enabled   bool
	disposed  int
	onDispose func()
}

func (s *stubService) Dispose() {
	s.disposed++
	if s.onDispose != nil {
		s.onDispose()
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	t.Cleanup(r.Close)
	return r
}

func TestGet_BeforeRegisterReturnsNil(t *testing.T) {
	r := newTestRegistry(t)

	require.Nil(t, r.Get(KeyFragmentsManager))
	require.False(t, r.Has(KeyFragmentsManager))

	_, ok := Lookup[*stubService](r, KeyFragmentsManager)
	require.False(t, ok)
}

func TestRegister_NilRejected(t *testing.T) {
	r := newTestRegistry(t)

	require.ErrorIs(t, r.Register(KeyHighlighter, nil), ErrNilService)

	var typedNil *stubService
	require.ErrorIs(t, r.Register(KeyHighlighter, typedNil), ErrNilService)
	require.Equal(t, 0, r.Len())
}

func TestDispose_RemovesAndCallsOnce(t *testing.T) {
	r := newTestRegistry(t)
	a := &stubService{name: "a"}

	require.NoError(t, r.Register(KeyAreaMeasurer, a))
	require.Same(t, a, r.Get(KeyAreaMeasurer))

	r.Dispose(KeyAreaMeasurer)
	r.Dispose(KeyAreaMeasurer)

	require.Nil(t, r.Get(KeyAreaMeasurer))
	require.Equal(t, 1, a.disposed)
}

func TestDispose_MissingKeyIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	require.NotPanics(t, func() { r.Dispose(KeyViews) })
}

func TestDispose_ReentrantSelfDispose(t *testing.T) {
	r := newTestRegistry(t)
	locker := &stubService{name: "locker"}
	locker.onDispose = func() { r.Dispose(KeyOrbitLock) }

	require.NoError(t, r.Register(KeyOrbitLock, locker))
	r.Dispose(KeyOrbitLock)

	require.Equal(t, 1, locker.disposed)
	require.Nil(t, r.Get(KeyOrbitLock))
}

func TestDisposeAll_InsertionOrder(t *testing.T) {
	r := newTestRegistry(t)

	var order []string
	keys := []Key{KeyComponents, KeyFragmentsManager, KeyHighlighter, KeyClipper}
	services := make([]*stubService, len(keys))
	for i, k := range keys {
		name := string(k)
		services[i] = &stubService{name: name, onDispose: func() { order = append(order, name) }}
		require.NoError(t, r.Register(k, services[i]))
	}

	r.DisposeAll()

	require.Equal(t, []string{"components", "fragmentsManager", "highlighter", "clipper"}, order)
	for i, k := range keys {
		require.Nil(t, r.Get(k))
		require.Equal(t, 1, services[i].disposed)
	}
	require.Empty(t, r.Keys())
}

func TestRegister_ReplacingDisposesPrevious(t *testing.T) {
	r := newTestRegistry(t)
	first := &stubService{name: "first"}
	second := &stubService{name: "second"}

	require.NoError(t, r.Register(KeyClipper, first))
	require.NoError(t, r.Register(KeyClipper, second))

	require.Equal(t, 1, first.disposed)
	require.Equal(t, 0, second.disposed)
	require.Same(t, second, r.Get(KeyClipper))
	require.Equal(t, []Key{KeyClipper}, r.Keys())
}

func TestRegister_ReplacedInstanceDisposingItsKeyKeepsReplacement(t *testing.T) {
	r := newTestRegistry(t)
	first := &stubService{name: "first"}
	first.onDispose = func() { r.Dispose(KeyClipper) }
	second := &stubService{name: "second"}

	require.NoError(t, r.Register(KeyViews, &stubService{name: "views"}))
	require.NoError(t, r.Register(KeyClipper, first))
	require.NoError(t, r.Register(KeyClipper, second))

	require.Equal(t, 1, first.disposed)
	require.Equal(t, 0, second.disposed)
	require.Same(t, second, r.Get(KeyClipper))
	require.Equal(t, []Key{KeyViews, KeyClipper}, r.Keys())
}

func TestRegister_SameInstanceKeepsIt(t *testing.T) {
	r := newTestRegistry(t)
	s := &stubService{name: "same"}

	require.NoError(t, r.Register(KeyClipper, s))
	require.NoError(t, r.Register(KeyClipper, s))

	require.Equal(t, 0, s.disposed)
	require.Same(t, s, r.Get(KeyClipper))
}

func TestLookup_TypeMismatch(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(KeyViews, &stubService{}))

	type other interface {
		Disposable
		Open(id string) error
	}
	_, ok := Lookup[other](r, KeyViews)
	require.False(t, ok)

	s, ok := Lookup[*stubService](r, KeyViews)
	require.True(t, ok)
	require.NotNil(t, s)
}

func TestSubscribe_PublishesChanges(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := r.Subscribe(ctx)
	require.NoError(t, r.Register(KeyHighlighter, &stubService{}))
	r.Dispose(KeyHighlighter)

	ev := <-ch
	require.Equal(t, pubsub.RegisteredEvent, ev.Type)
	require.Equal(t, KeyHighlighter, ev.Payload.Key)

	ev = <-ch
	require.Equal(t, pubsub.DisposedEvent, ev.Type)
}

func TestSizeObserver(t *testing.T) {
	var sizes []int
	r := New(WithSizeObserver(func(n int) { sizes = append(sizes, n) }))
	defer r.Close()

	require.NoError(t, r.Register(KeyComponents, &stubService{}))
	require.NoError(t, r.Register(KeyFragmentsManager, &stubService{}))
	r.Dispose(KeyComponents)

	require.Equal(t, []int{1, 2, 1}, sizes)
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := newTestRegistry(t)
	keys := []Key{KeyAreaMeasurer, KeyLengthMeasurer, KeyOrbitLock, KeyHighlighter}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Register(k, &stubService{name: string(k)})
		}()
	}
	wg.Wait()

	require.Equal(t, len(keys), r.Len())
	require.ElementsMatch(t, keys, r.Keys())
}

func TestAccessor_ResolvesAlreadyRegistered(t *testing.T) {
	r := newTestRegistry(t)
	stub := &stubService{name: "fm"}
	require.NoError(t, r.Register(KeyFragmentsManager, stub))

	a := NewAccessor[*stubService](context.Background(), r, KeyFragmentsManager, time.Hour)
	defer a.Close()

	got, err := a.Wait(context.Background())
	require.NoError(t, err)
	require.Same(t, stub, got)
}

// A consumer waiting on fragmentsManager sees a stub registered later
// within one interval, then stops watching.
func TestAccessor_ObservesLateRegistration(t *testing.T) {
	r := newTestRegistry(t)
	const interval = 100 * time.Millisecond

	a := NewAccessor[*stubService](context.Background(), r, KeyFragmentsManager, interval)
	defer a.Close()

	_, ok := a.Get()
	require.False(t, ok)

	stub := &stubService{name: "fm", enabled: false}
	require.NoError(t, r.Register(KeyFragmentsManager, stub))

	select {
	case <-a.Ready():
	case <-time.After(interval):
		require.Fail(t, "not resolved within one polling interval")
	}

	got, ok := a.Get()
	require.True(t, ok)
	require.Same(t, stub, got)
	require.False(t, got.enabled)

	select {
	case <-a.done:
	case <-time.After(time.Second):
		require.Fail(t, "watcher still running after resolution")
	}

	// Later changes do not affect a resolved accessor.
	r.Dispose(KeyFragmentsManager)
	require.NoError(t, r.Register(KeyFragmentsManager, &stubService{name: "other"}))
	got, _ = a.Get()
	require.Same(t, stub, got)
}

func TestAccessor_FallbackPollWithoutEvents(t *testing.T) {
	r := newTestRegistry(t)
	a := NewAccessor[*stubService](context.Background(), r, KeyHighlighter, 10*time.Millisecond)
	defer a.Close()

	// Write the entry without publishing, as if the event had been dropped.
	stub := &stubService{}
	r.mu.Lock()
	r.entries[KeyHighlighter] = stub
	r.order = append(r.order, KeyHighlighter)
	r.mu.Unlock()

	got, err := a.Wait(context.Background())
	require.NoError(t, err)
	require.Same(t, stub, got)
}

func TestAccessor_CloseBeforeResolution(t *testing.T) {
	r := newTestRegistry(t)
	a := NewAccessor[*stubService](context.Background(), r, KeyViews, 10*time.Millisecond)

	a.Close()
	a.Close()

	_, err := a.Wait(context.Background())
	require.ErrorIs(t, err, ErrAccessorClosed)
	require.Nil(t, a.AwaitCmd(context.Background())())
}

func TestAccessor_WaitHonoursContext(t *testing.T) {
	r := newTestRegistry(t)
	a := NewAccessor[*stubService](context.Background(), r, KeyViews, time.Hour)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAccessor_AwaitCmd(t *testing.T) {
	r := newTestRegistry(t)
	a := NewAccessor[*stubService](context.Background(), r, KeyHighlighter, time.Hour)
	defer a.Close()

	stub := &stubService{}
	require.NoError(t, r.Register(KeyHighlighter, stub))

	msg := a.AwaitCmd(context.Background())()
	resolved, ok := msg.(ResolvedMsg[*stubService])
	require.True(t, ok)
	require.Equal(t, KeyHighlighter, resolved.Key)
	require.Same(t, stub, resolved.Value)
}
