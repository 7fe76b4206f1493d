package inspector

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type loadedModel struct {
	id   string
	snap *memengine.Snapshot
}

type env struct {
	eng       *memengine.Engine
	world     engine.World
	fragments engine.FragmentsManager
	reg       *registry.Registry
}

// newEnv loads models into a fresh engine and registers the fragments
// manager and a set up highlighter.
func newEnv(t *testing.T, models ...loadedModel) *env {
	t.Helper()
	ctx := context.Background()
	eng := memengine.New()
	w, err := eng.CreateWorld(ctx)
	require.NoError(t, err)

	fragments := eng.Fragments()
	require.NoError(t, fragments.Init("file:///tmp/worker.mjs"))
	for _, lm := range models {
		data, err := memengine.EncodeSnapshot(lm.snap)
		require.NoError(t, err)
		_, err = fragments.Load(ctx, lm.id, data)
		require.NoError(t, err)
	}

	h := eng.Highlighter()
	h.Setup(w, engine.SelectStyle{Color: "#BCF124", Opacity: 1})
	h.SetZoomToSelection(true)

	reg := registry.New()
	t.Cleanup(reg.Close)
	require.NoError(t, reg.Register(registry.KeyFragmentsManager, fragments))
	require.NoError(t, reg.Register(registry.KeyHighlighter, h))

	return &env{eng: eng, world: w, fragments: fragments, reg: reg}
}

func (e *env) model(t *testing.T, id string) *memengine.Model {
	t.Helper()
	m, ok := e.fragments.Model(id)
	require.True(t, ok)
	return m.(*memengine.Model)
}

func newMetrics(t *testing.T) *metrics.Collector {
	t.Helper()
	c, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	return c
}

func sample() loadedModel {
	return loadedModel{id: "sample", snap: memengine.SampleSnapshot()}
}

// mixedWalls is a wall group holding one wall and one door.
func mixedWalls(category string) loadedModel {
	id := spatialtree.ID
	return loadedModel{id: "walls", snap: &memengine.Snapshot{
		Tree: &spatialtree.Node{
			Category: category,
			Children: []*spatialtree.Node{
				{LocalID: id(1), Category: "IFCWALL"},
				{LocalID: id(2), Category: "IFCDOOR"},
			},
		},
		Elements: []memengine.Element{
			{LocalID: 1, Type: "IFCWALL", Bounds: &engine.Box{Max: engine.Vec3{X: 4, Y: 3, Z: 0.2}}},
			{LocalID: 2, Type: "IFCDOOR", Bounds: &engine.Box{Min: engine.Vec3{X: 1}, Max: engine.Vec3{X: 2, Y: 2, Z: 0.2}}},
		},
	}}
}
