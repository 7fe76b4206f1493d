// Package bim owns the lifecycle of one viewer session: it builds the world,
// brings up the fragments manager and the interactive tools, registers each
// of them in the session registry and hands back a teardown per step.
package bim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/input"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/tracing"
)

// DefaultWorkerURL is where the fragments worker script is fetched from.
const DefaultWorkerURL = "https://thatopen.github.io/engine_fragment/resources/worker.mjs"

// Tool colours.
const (
	ColorMeasurer    engine.Color = "#494CB6"
	ColorHighlighter engine.Color = "#BCF124"
	ColorOrbitLock   engine.Color = "#FF0000"
)

// ErrWorldNotReady is returned by tool initializers called before InitWorld.
var ErrWorldNotReady = errors.New("bim: world not initialized")

var (
	initialPosition = engine.Vec3{X: 12, Y: 6, Z: 8}
	initialTarget   = engine.Vec3{X: 0, Y: 0, Z: -10}
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateWorldReady
	StateToolsReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWorldReady:
		return "world-ready"
	case StateToolsReady:
		return "tools-ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Teardown detaches what one initializer attached. Safe to call twice.
type Teardown func()

func noopTeardown() {}

// StatusFunc reports loading progress to the UI.
type StatusFunc func(message string, loading bool)

// Items is the item data of the current highlight selection.
type Items struct {
	Selection engine.ModelIDMap
	Items     []engine.ItemData
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkerURL overrides DefaultWorkerURL.
func WithWorkerURL(u string) Option {
	return func(m *Manager) { m.workerURL = u }
}

// WithHTTPClient sets the client used to fetch the worker script.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithWorkerDir sets the directory the worker script is written to.
func WithWorkerDir(dir string) Option {
	return func(m *Manager) { m.workerDir = dir }
}

// WithTracer records initializer steps as spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics records initializer durations.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager drives the viewer lifecycle
// Uninitialized -> WorldReady -> ToolsReady -> Disposed.
type Manager struct {
	engine   engine.Engine
	registry *registry.Registry
	bus      *input.Bus
	items    *pubsub.Broker[Items]

	workerURL  string
	workerDir  string
	httpClient *http.Client
	tracer     trace.Tracer
	metrics    *metrics.Collector

	// base outlives the ctx passed to initializers; listener groups
	// derive from it.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	world  engine.World
	groups []*input.Group
}

// New returns a Manager over eng. Tools are registered in reg and listen to
// gestures on bus.
func New(eng engine.Engine, reg *registry.Registry, bus *input.Bus, opts ...Option) *Manager {
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		engine:     eng,
		registry:   reg,
		bus:        bus,
		items:      pubsub.NewBroker[Items](),
		workerURL:  DefaultWorkerURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		base:       base,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// World returns the world, or nil before InitWorld.
func (m *Manager) World() engine.World {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world
}

// Registry returns the session registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Bus returns the gesture bus tools listen on.
func (m *Manager) Bus() *input.Bus { return m.bus }

// Items publishes item data for every highlight (SelectedEvent) and an
// empty payload when the selection is cleared (ClearedEvent).
func (m *Manager) Items() *pubsub.Broker[Items] { return m.items }

// InitWorld builds the world, frames the initial view, bootstraps the
// engine and registers it under KeyComponents.
func (m *Manager) InitWorld(ctx context.Context) error {
	_, err := m.step(ctx, "world", false, func(ctx context.Context, _ engine.World) (Teardown, error) {
		if m.State() == StateDisposed {
			return nil, engine.ErrDisposed
		}
		world, err := m.engine.CreateWorld(ctx)
		if err != nil {
			return nil, fmt.Errorf("create world: %w", err)
		}
		if err := world.Camera().SetLookAt(ctx, initialPosition, initialTarget); err != nil {
			world.Dispose()
			return nil, fmt.Errorf("initial look-at: %w", err)
		}
		if err := m.engine.Init(ctx); err != nil {
			world.Dispose()
			return nil, fmt.Errorf("engine init: %w", err)
		}
		if err := m.registry.Register(registry.KeyComponents, m.engine); err != nil {
			world.Dispose()
			return nil, err
		}

		m.mu.Lock()
		m.world = world
		m.state = StateWorldReady
		m.mu.Unlock()
		return noopTeardown, nil
	})
	return err
}

// InitFragmentsManager fetches the worker script, initialises the fragments
// manager with a local file URL to it and keeps loaded models attached to
// the scene and camera. Fetch failures are returned as-is.
func (m *Manager) InitFragmentsManager(ctx context.Context, status StatusFunc) (Teardown, error) {
	if status == nil {
		status = func(string, bool) {}
	}
	return m.step(ctx, "fragments", true, func(ctx context.Context, world engine.World) (Teardown, error) {
		path, err := m.fetchWorker(ctx)
		if err != nil {
			return nil, err
		}
		workerURL := (&url.URL{Scheme: "file", Path: path}).String()

		fragments := m.engine.Fragments()
		if err := fragments.Init(workerURL); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("init fragments: %w", err)
		}

		lctx := m.base
		removeRest := world.Camera().OnRest().Add(func(struct{}) {
			if err := fragments.Update(lctx, true); err != nil {
				log.ErrorErr(log.CatEngine, "Fragments update on camera rest failed", err)
			}
		})
		removeModelSet := fragments.OnModelSet().Add(func(model engine.Model) {
			model.UseCamera(world.Camera())
			world.Scene().AddModel(model)
			status("Rendering model...", true)
			if err := fragments.Update(lctx, true); err != nil {
				log.ErrorErr(log.CatEngine, "Fragments update after model load failed", err, "model", model.ID())
			}
			status("", false)
		})
		removeCameraChanged := world.OnCameraChanged().Add(func(cam engine.Camera) {
			for _, model := range fragments.Models() {
				model.UseCamera(cam)
			}
			if err := fragments.Update(lctx, true); err != nil {
				log.ErrorErr(log.CatEngine, "Fragments update on camera change failed", err)
			}
		})

		if err := m.registry.Register(registry.KeyFragmentsManager, fragments); err != nil {
			removeRest()
			removeModelSet()
			removeCameraChanged()
			_ = os.Remove(path)
			return nil, err
		}

		return func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn(log.CatLifecycle, "Failed to remove worker script", "path", path, "error", err)
			}
			removeRest()
			removeCameraChanged()
			removeModelSet()
		}, nil
	})
}

func (m *Manager) fetchWorker(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.workerURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch worker: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch worker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch worker: unexpected status %s", resp.Status)
	}

	f, err := os.CreateTemp(m.workerDir, "bimview-worker-*.mjs")
	if err != nil {
		return "", fmt.Errorf("write worker: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write worker: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write worker: %w", err)
	}
	log.Debug(log.CatLifecycle, "Fetched worker script", "url", m.workerURL, "path", f.Name())
	return f.Name(), nil
}

type measurerSetup struct {
	step       string
	key        registry.Key
	tool       engine.Measurer
	mode       engine.MeasureMode
	enabled    bool
	endOnEnter bool
	zoom       func(engine.Measurement) engine.Sphere
}

// InitAreaMeasurer sets up the square-mode area measurer, enabled.
// Enter closes the area in progress.
func (m *Manager) InitAreaMeasurer(ctx context.Context) (Teardown, error) {
	return m.initMeasurer(ctx, measurerSetup{
		step:       "area-measurer",
		key:        registry.KeyAreaMeasurer,
		tool:       m.engine.AreaMeasurement(),
		mode:       engine.ModeSquare,
		enabled:    true,
		endOnEnter: true,
		zoom:       func(a engine.Measurement) engine.Sphere { return a.Bounds.BoundingSphere() },
	})
}

// InitLengthMeasurer sets up the free-mode length measurer, disabled.
func (m *Manager) InitLengthMeasurer(ctx context.Context) (Teardown, error) {
	return m.initMeasurer(ctx, measurerSetup{
		step: "length-measurer",
		key:  registry.KeyLengthMeasurer,
		tool: m.engine.LengthMeasurement(),
		mode: engine.ModeFree,
		zoom: func(l engine.Measurement) engine.Sphere {
			return engine.Sphere{Center: l.Center(), Radius: l.Value / 3}
		},
	})
}

// InitVolumeMeasurer sets up the volume measurer, disabled.
func (m *Manager) InitVolumeMeasurer(ctx context.Context) (Teardown, error) {
	return m.initMeasurer(ctx, measurerSetup{
		step: "volume-measurer",
		key:  registry.KeyVolumeMeasurer,
		tool: m.engine.VolumeMeasurement(),
		mode: engine.ModeFree,
		zoom: func(v engine.Measurement) engine.Sphere { return v.Bounds.BoundingSphere() },
	})
}

func (m *Manager) initMeasurer(ctx context.Context, s measurerSetup) (Teardown, error) {
	return m.step(ctx, s.step, true, func(_ context.Context, world engine.World) (Teardown, error) {
		tool := s.tool
		tool.Setup(world, ColorMeasurer, s.mode)
		tool.SetEnabled(s.enabled)

		g := m.newGroup()
		if s.endOnEnter {
			g.On(m.bus, input.Event.IsEnter, func(context.Context, input.Event) {
				if err := tool.EndCreation(); err != nil {
					log.ErrorErr(log.CatEngine, "Error ending measurement creation", err, "tool", s.step)
				}
			})
		}
		g.On(m.bus, input.Event.IsDelete, func(ctx context.Context, _ input.Event) {
			if !tool.Enabled() || len(tool.List()) == 0 {
				return
			}
			if err := tool.Delete(ctx); err != nil {
				log.ErrorErr(log.CatEngine, "Error deleting measurement", err, "tool", s.step)
			}
		})
		g.On(m.bus, isDoubleClick, func(ctx context.Context, _ input.Event) {
			if err := tool.Create(ctx); err != nil {
				log.ErrorErr(log.CatEngine, "Error creating measurement", err, "tool", s.step)
			}
		})

		lctx := g.Context()
		removeZoom := tool.OnAdded().Add(func(meas engine.Measurement) {
			if meas.Bounds.Empty() {
				return
			}
			if err := world.Camera().FitToSphere(lctx, s.zoom(meas)); err != nil {
				log.ErrorErr(log.CatEngine, "Zoom to measurement failed", err, "tool", s.step)
			}
		})

		if err := m.registry.Register(s.key, tool); err != nil {
			g.Abort()
			removeZoom()
			return nil, err
		}
		return func() {
			g.Abort()
			removeZoom()
		}, nil
	})
}

// InitHighlighter sets up selection highlighting and publishes item data
// for every selection on Items. Without a registered fragments manager it
// does nothing.
func (m *Manager) InitHighlighter(ctx context.Context) (Teardown, error) {
	return m.step(ctx, "highlighter", true, func(_ context.Context, world engine.World) (Teardown, error) {
		fragments, ok := registry.Lookup[engine.FragmentsManager](m.registry, registry.KeyFragmentsManager)
		if !ok {
			log.Warn(log.CatHighlight, "Fragments manager not registered, highlighter skipped")
			return noopTeardown, nil
		}

		h := m.engine.Highlighter()
		h.Setup(world, engine.SelectStyle{Color: ColorHighlighter, Opacity: 1})
		h.SetZoomToSelection(true)

		lctx, cancel := context.WithCancel(m.base)
		removeHighlight := h.OnHighlight().Add(func(sel engine.ModelIDMap) {
			m.publishItems(lctx, fragments, sel)
		})
		removeClear := h.OnClear().Add(func(struct{}) {
			m.items.Publish(pubsub.ClearedEvent, Items{})
		})

		if err := m.registry.Register(registry.KeyHighlighter, h); err != nil {
			cancel()
			removeHighlight()
			removeClear()
			return nil, err
		}
		return func() {
			cancel()
			removeHighlight()
			removeClear()
		}, nil
	})
}

func (m *Manager) publishItems(ctx context.Context, fragments engine.FragmentsManager, sel engine.ModelIDMap) {
	ctx, span := tracing.Start(ctx, m.tracer, tracing.SpanItemsData, attribute.Int(tracing.AttrIDsCount, sel.Count()))
	var items []engine.ItemData
	var firstErr error
	for modelID, ids := range sel {
		model, ok := fragments.Model(modelID)
		if !ok {
			continue
		}
		data, err := model.ItemsData(ctx, ids.Sorted())
		if err != nil {
			log.ErrorErr(log.CatHighlight, "Fetching item data failed", err, "model", modelID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		items = append(items, data...)
	}
	tracing.End(span, firstErr)
	m.items.Publish(pubsub.SelectedEvent, Items{Selection: sel, Items: items})
}

// InitClipper sets up clipping planes, disabled. Double click creates a
// plane, Ctrl+click deletes the plane under the pointer.
func (m *Manager) InitClipper(ctx context.Context) (Teardown, error) {
	return m.step(ctx, "clipper", true, func(_ context.Context, world engine.World) (Teardown, error) {
		clipper := m.engine.Clipper()
		clipper.Setup(world)
		clipper.SetEnabled(false)

		g := m.newGroup()
		g.On(m.bus, isDoubleClick, func(ctx context.Context, _ input.Event) {
			if _, err := clipper.Create(ctx); err != nil {
				log.ErrorErr(log.CatEngine, "Error creating clipping plane", err)
			}
		})
		g.On(m.bus, isCtrlClick, func(ctx context.Context, _ input.Event) {
			if !clipper.Enabled() {
				return
			}
			if err := clipper.Delete(ctx); err != nil {
				log.ErrorErr(log.CatEngine, "Error deleting clipping plane", err)
			}
		})

		if err := m.registry.Register(registry.KeyClipper, clipper); err != nil {
			g.Abort()
			return nil, err
		}
		return g.Abort, nil
	})
}

// InitCameraDistanceLocker creates the orbit lock tool, disabled.
func (m *Manager) InitCameraDistanceLocker(ctx context.Context) (Teardown, error) {
	return m.step(ctx, "orbit-lock", true, func(_ context.Context, world engine.World) (Teardown, error) {
		locker := NewCameraDistanceLocker(m.base, world, m.bus, m.registry)
		if err := m.registry.Register(registry.KeyOrbitLock, locker); err != nil {
			return nil, err
		}
		return locker.detach, nil
	})
}

// InitViews sets up 2D section views, disabled. Double click creates a view
// at the pointer.
func (m *Manager) InitViews(ctx context.Context) (Teardown, error) {
	return m.step(ctx, "views", true, func(_ context.Context, world engine.World) (Teardown, error) {
		views := m.engine.Views()
		views.Setup(world)
		views.SetEnabled(false)

		g := m.newGroup()
		g.On(m.bus, isDoubleClick, func(ctx context.Context, _ input.Event) {
			v, err := views.Create(ctx)
			if err != nil {
				log.ErrorErr(log.CatEngine, "Error creating view", err)
				return
			}
			if v != nil {
				log.Debug(log.CatEngine, "View created", "name", v.Name)
			}
		})

		if err := m.registry.Register(registry.KeyViews, views); err != nil {
			g.Abort()
			return nil, err
		}
		return g.Abort, nil
	})
}

// Dispose disposes every registered service, then the world. Safe with any
// subset of tools initialised, and idempotent.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	m.state = StateDisposed
	world := m.world
	groups := m.groups
	m.groups = nil
	m.mu.Unlock()

	_, span := tracing.Start(context.Background(), m.tracer, tracing.SpanDispose)
	m.cancel()
	for _, g := range groups {
		g.Abort()
	}
	m.registry.DisposeAll()
	if world != nil {
		world.Dispose()
	}
	m.items.Close()
	tracing.End(span, nil)
	log.Info(log.CatLifecycle, "Viewer disposed")
}

func (m *Manager) newGroup() *input.Group {
	g := input.NewGroup(m.base)
	m.mu.Lock()
	m.groups = append(m.groups, g)
	m.mu.Unlock()
	return g
}

// step runs one initializer with tracing, metrics and state checks.
func (m *Manager) step(ctx context.Context, name string, needWorld bool, fn func(context.Context, engine.World) (Teardown, error)) (Teardown, error) {
	var world engine.World
	if needWorld {
		m.mu.Lock()
		state := m.state
		world = m.world
		m.mu.Unlock()
		if state == StateDisposed {
			return noopTeardown, engine.ErrDisposed
		}
		if world == nil {
			return noopTeardown, fmt.Errorf("%s: %w", name, ErrWorldNotReady)
		}
	}

	ctx, span := tracing.Start(ctx, m.tracer, tracing.LifecycleSpan(name))
	start := time.Now()
	td, err := fn(ctx, world)
	m.metrics.ObserveInit(name, time.Since(start), err)
	tracing.End(span, err)
	if err != nil {
		log.ErrorErr(log.CatLifecycle, "Initializer failed", err, "step", name)
		return noopTeardown, err
	}

	if needWorld {
		m.mu.Lock()
		if m.state == StateWorldReady {
			m.state = StateToolsReady
		}
		m.mu.Unlock()
	}
	log.Debug(log.CatLifecycle, "Initializer done", "step", name, "duration", time.Since(start))
	return sync.OnceFunc(td), nil
}

func isDoubleClick(e input.Event) bool { return e.Kind == input.DoubleClick }

func isCtrlClick(e input.Event) bool { return e.IsLeftDown() && e.Ctrl }
