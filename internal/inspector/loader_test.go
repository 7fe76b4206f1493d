package inspector

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/tracing"
)

func TestLoader_LoadModelTreeRetries(t *testing.T) {
	e := newEnv(t, sample())
	m := newMetrics(t)
	rec := tracetest.NewInMemoryExporter()
	p := tracing.NewProviderWithExporter(rec)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	l := NewLoader(e.fragments,
		WithRetry(5, time.Millisecond),
		WithLoaderMetrics(m),
		WithLoaderTracer(p.Tracer()),
	)
	t.Cleanup(l.Close)
	model := e.model(t, "sample")
	model.FailSpatialStructure(2)
	before := e.eng.FragmentsManager().Updates()

	tree, err := l.LoadModelTree(context.Background(), model)
	require.NoError(t, err)
	if diff := cmp.Diff(memengine.SampleSnapshot().Tree, tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 3, e.eng.FragmentsManager().Updates()-before, "every attempt flushes the core first")
	require.Equal(t, 2.0, testutil.ToFloat64(m.TreeRetries))

	spans := rec.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, tracing.SpanTreeLoad, spans[0].Name)
	require.Len(t, spans[0].Events, 2)
	require.Equal(t, tracing.EventRetry, spans[0].Events[0].Name)
}

func TestLoader_GivesUpAfterMaxTries(t *testing.T) {
	e := newEnv(t, sample())
	l := NewLoader(e.fragments, WithRetry(3, time.Millisecond))
	t.Cleanup(l.Close)
	model := e.model(t, "sample")
	model.FailSpatialStructure(10)

	_, err := l.LoadModelTree(context.Background(), model)
	require.ErrorContains(t, err, "load spatial structure of sample after 3 attempts")
}

func TestLoader_LoadTreesOmitsFailingModels(t *testing.T) {
	e := newEnv(t, sample(), mixedWalls("IFCWALL"))
	l := NewLoader(e.fragments, WithRetry(2, time.Millisecond))
	t.Cleanup(l.Close)

	trees := l.LoadTrees(context.Background())
	require.Len(t, trees, 2)
	require.Equal(t, "sample", trees[0].ModelID)
	require.Equal(t, "walls", trees[1].ModelID)

	e.model(t, "sample").FailSpatialStructure(5)
	trees = l.LoadTrees(context.Background())
	require.Len(t, trees, 1)
	require.Equal(t, "walls", trees[0].ModelID)
	_, ok := l.Tree("sample")
	require.False(t, ok)

	e.model(t, "sample").FailSpatialStructure(5)
	e.model(t, "walls").FailSpatialStructure(5)
	require.Nil(t, l.LoadTrees(context.Background()))
	require.Len(t, l.Trees(), 1, "a load where every model failed keeps the previous set")
}

func TestLoader_SubscribeReceivesTrees(t *testing.T) {
	e := newEnv(t, sample())
	l := NewLoader(e.fragments)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.Subscribe(ctx)

	l.LoadTrees(ctx)

	select {
	case ev := <-ch:
		require.Equal(t, pubsub.UpdatedEvent, ev.Type)
		require.Len(t, ev.Payload, 1)
		require.Equal(t, "sample", ev.Payload[0].ModelID)
	case <-time.After(time.Second):
		t.Fatal("no tree event")
	}
	l.Close()
}

func TestLoader_WatchReloadsOnModelSet(t *testing.T) {
	e := newEnv(t, sample())
	l := NewLoader(e.fragments, WithRetry(3, time.Millisecond))
	ctx := context.Background()

	l.Watch(ctx)
	l.Watch(ctx)
	require.Eventually(t, func() bool { return len(l.Trees()) == 1 }, time.Second, 5*time.Millisecond)

	data, err := memengine.EncodeSnapshot(mixedWalls("IFCWALL").snap)
	require.NoError(t, err)
	_, err = e.fragments.Load(ctx, "walls", data)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(l.Trees()) == 2 }, time.Second, 5*time.Millisecond)

	tree, ok := l.Tree("walls")
	require.True(t, ok)
	require.Equal(t, "IFCWALL", tree.Category)

	l.Close()
	require.Zero(t, e.fragments.OnModelSet().Len())
}
