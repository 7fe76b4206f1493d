package bim

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/tracing"
)

// Session is a started viewer. Shutdown releases it.
type Session struct {
	manager *Manager

	mu        sync.Mutex
	teardowns []Teardown
	closed    bool
}

// Manager returns the session's manager.
func (s *Session) Manager() *Manager { return s.manager }

func (s *Session) add(td Teardown) {
	s.mu.Lock()
	s.teardowns = append(s.teardowns, td)
	s.mu.Unlock()
}

// Shutdown runs every teardown, most recent first, then disposes the
// manager. Idempotent.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tds := slices.Clone(s.teardowns)
	s.teardowns = nil
	s.mu.Unlock()

	for _, td := range slices.Backward(tds) {
		td()
	}
	s.manager.Dispose()
}

// Startup brings the viewer up: the world and the fragments manager in
// order, then the area and length measurers, the orbit lock and the
// highlighter concurrently, then the volume measurer, the clipper and the
// views. On failure everything started so far is shut down.
func Startup(ctx context.Context, m *Manager, status StatusFunc) (*Session, error) {
	ctx, span := tracing.Start(ctx, m.tracer, tracing.SpanStartup)
	s := &Session{manager: m}

	err := startup(ctx, m, s, status)
	tracing.End(span, err)
	if err != nil {
		s.Shutdown()
		return nil, err
	}
	log.Info(log.CatLifecycle, "Viewer started", "services", m.registry.Len())
	return s, nil
}

func startup(ctx context.Context, m *Manager, s *Session, status StatusFunc) error {
	if err := m.InitWorld(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	td, err := m.InitFragmentsManager(ctx, status)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	s.add(td)

	g, gctx := errgroup.WithContext(ctx)
	for _, initFn := range []func(context.Context) (Teardown, error){
		m.InitAreaMeasurer,
		m.InitLengthMeasurer,
		m.InitCameraDistanceLocker,
		m.InitHighlighter,
	} {
		g.Go(func() error {
			td, err := initFn(gctx)
			if err != nil {
				return err
			}
			s.add(td)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	for _, initFn := range []func(context.Context) (Teardown, error){
		m.InitVolumeMeasurer,
		m.InitClipper,
		m.InitViews,
	} {
		td, err := initFn(ctx)
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		s.add(td)
	}
	return nil
}
