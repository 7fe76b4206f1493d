package memengine

import (
	"context"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
)

// Engine is the in-process component container.
type Engine struct {
	fragments   *FragmentsManager
	area        *Measurer
	length      *Measurer
	volume      *Measurer
	highlighter *Highlighter
	clipper     *Clipper
	views       *Views

	mu          sync.Mutex
	worlds      []*World
	initialized bool
	disposed    bool
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine with all tools constructed but not set up.
func New() *Engine {
	f := &FragmentsManager{}
	return &Engine{
		fragments:   f,
		area:        newMeasurer(engine.KindArea, f),
		length:      newMeasurer(engine.KindLength, f),
		volume:      newMeasurer(engine.KindVolume, f),
		highlighter: newHighlighter(f),
		clipper:     newClipper(),
		views:       &Views{},
	}
}

func (e *Engine) CreateWorld(ctx context.Context) (engine.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil, engine.ErrDisposed
	}
	w := newWorld(e.fragments)
	e.worlds = append(e.worlds, w)
	return w, nil
}

func (e *Engine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return engine.ErrDisposed
	}
	e.initialized = true
	return nil
}

// Initialized reports whether Init ran.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

func (e *Engine) Fragments() engine.FragmentsManager { return e.fragments }
func (e *Engine) AreaMeasurement() engine.Measurer   { return e.area }
func (e *Engine) LengthMeasurement() engine.Measurer { return e.length }
func (e *Engine) VolumeMeasurement() engine.Measurer { return e.volume }
func (e *Engine) Highlighter() engine.Highlighter    { return e.highlighter }
func (e *Engine) Clipper() engine.Clipper            { return e.clipper }
func (e *Engine) Views() engine.Views                { return e.views }

// FragmentsManager returns the concrete fragments manager.
func (e *Engine) FragmentsManager() *FragmentsManager { return e.fragments }

// Disposed reports whether Dispose ran.
func (e *Engine) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Dispose releases every tool and world. Idempotent.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	worlds := e.worlds
	e.worlds = nil
	e.mu.Unlock()

	e.views.Dispose()
	e.clipper.Dispose()
	e.highlighter.Dispose()
	e.volume.Dispose()
	e.length.Dispose()
	e.area.Dispose()
	e.fragments.Dispose()
	for _, w := range worlds {
		w.Dispose()
	}
}
