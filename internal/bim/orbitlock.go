package bim

import (
	"context"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/input"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/registry"
)

const markerRadius = 0.5

// CameraDistanceLocker makes the camera orbit around the point picked with
// the left mouse button. While enabled, every left press raycasts, drops a
// marker at the hit and moves the orbit target there, keeping the camera
// position.
//
// A marker exists only while a pick has been recorded and the lock is
// enabled.
type CameraDistanceLocker struct {
	parent   context.Context
	world    engine.World
	bus      *input.Bus
	registry *registry.Registry

	mu       sync.Mutex
	active   bool
	group    *input.Group
	marker   engine.Marker
	disposed bool
}

// NewCameraDistanceLocker returns a disabled locker. Listeners are bound to
// parent.
func NewCameraDistanceLocker(parent context.Context, world engine.World, bus *input.Bus, reg *registry.Registry) *CameraDistanceLocker {
	return &CameraDistanceLocker{parent: parent, world: world, bus: bus, registry: reg}
}

// Enabled reports whether left presses lock the orbit point.
func (l *CameraDistanceLocker) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// SetEnabled attaches or detaches the mouse listener. Disabling removes the
// marker.
func (l *CameraDistanceLocker) SetEnabled(enabled bool) {
	if !enabled {
		l.detach()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active || l.disposed {
		return
	}
	g := input.NewGroup(l.parent)
	g.On(l.bus, input.Event.IsLeftDown, l.onMouseDown)
	l.group = g
	l.active = true
}

// Marker returns the current marker, or nil.
func (l *CameraDistanceLocker) Marker() engine.Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.marker
}

func (l *CameraDistanceLocker) onMouseDown(ctx context.Context, _ input.Event) {
	hit, err := l.world.Raycaster().CastRay(ctx)
	if err != nil {
		log.ErrorErr(log.CatEngine, "Orbit lock raycast failed", err)
		return
	}
	if hit == nil {
		return
	}

	cam := l.world.Camera()
	l.mu.Lock()
	if !l.active || ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.removeMarkerLocked()
	l.marker = l.world.Scene().AddMarker(hit.Point, markerRadius, ColorOrbitLock, cam.Position())
	l.mu.Unlock()

	if err := cam.SetTarget(ctx, hit.Point); err != nil {
		log.ErrorErr(log.CatEngine, "Orbit lock set target failed", err)
	}
}

// detach stops listening and removes the marker.
func (l *CameraDistanceLocker) detach() {
	l.mu.Lock()
	g := l.group
	l.group = nil
	l.active = false
	l.mu.Unlock()

	if g != nil {
		g.Abort()
	}

	l.mu.Lock()
	l.removeMarkerLocked()
	l.mu.Unlock()
}

func (l *CameraDistanceLocker) removeMarkerLocked() {
	if l.marker == nil {
		return
	}
	l.marker.Remove()
	l.marker = nil
}

// Dispose detaches the locker and removes it from the registry.
func (l *CameraDistanceLocker) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	l.mu.Unlock()

	l.detach()
	if l.registry != nil && l.registry.Get(registry.KeyOrbitLock) == registry.Disposable(l) {
		l.registry.Dispose(registry.KeyOrbitLock)
	}
}
