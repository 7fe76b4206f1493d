package memengine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
)

// World is the in-memory scene, camera and raycaster triple.
type World struct {
	scene     *Scene
	raycaster *Raycaster

	mu       sync.Mutex
	camera   *Camera
	disposed bool

	cameraChanged engine.Signal[engine.Camera]
}

func newWorld(fragments *FragmentsManager) *World {
	w := &World{
		scene:  &Scene{},
		camera: NewCamera(),
	}
	w.raycaster = &Raycaster{fragments: fragments}
	return w
}

func (w *World) Scene() engine.Scene         { return w.scene }
func (w *World) Raycaster() engine.Raycaster { return w.raycaster }

func (w *World) Camera() engine.Camera {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.camera
}

func (w *World) OnCameraChanged() *engine.Signal[engine.Camera] { return &w.cameraChanged }

// SetCamera swaps the active camera and fires OnCameraChanged.
func (w *World) SetCamera(c *Camera) {
	w.mu.Lock()
	w.camera = c
	w.mu.Unlock()
	w.cameraChanged.Trigger(c)
}

// Disposed reports whether Dispose ran.
func (w *World) Disposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}

func (w *World) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	w.mu.Unlock()

	w.cameraChanged.Reset()
	w.scene.clear()
}

// Scene holds the models and markers added to a world.
type Scene struct {
	mu      sync.Mutex
	models  []engine.Model
	markers []*Marker
}

func (s *Scene) AddModel(m engine.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.models, m) {
		s.models = append(s.models, m)
	}
}

func (s *Scene) RemoveModel(m engine.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = slices.DeleteFunc(s.models, func(x engine.Model) bool { return x == m })
}

// Models returns the models in the scene.
func (s *Scene) Models() []engine.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.models)
}

func (s *Scene) AddMarker(pos engine.Vec3, radius float64, color engine.Color, facing engine.Vec3) engine.Marker {
	m := &Marker{scene: s, pos: pos, Radius: radius, Color: color, Facing: facing}
	s.mu.Lock()
	s.markers = append(s.markers, m)
	s.mu.Unlock()
	return m
}

func (s *Scene) Markers() []engine.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Marker, len(s.markers))
	for i, m := range s.markers {
		out[i] = m
	}
	return out
}

func (s *Scene) remove(m *Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = slices.DeleteFunc(s.markers, func(x *Marker) bool { return x == m })
}

func (s *Scene) clear() {
	s.mu.Lock()
	markers := s.markers
	s.markers = nil
	s.models = nil
	s.mu.Unlock()
	for _, m := range markers {
		m.release()
	}
}

// Marker is a disc mesh in the scene.
type Marker struct {
	scene    *Scene
	pos      engine.Vec3
	Radius   float64
	Color    engine.Color
	Facing   engine.Vec3
	released bool
}

func (m *Marker) Position() engine.Vec3 { return m.pos }

func (m *Marker) Remove() {
	m.scene.remove(m)
	m.release()
}

func (m *Marker) release() { m.released = true }

// Released reports whether the marker's resources were freed.
func (m *Marker) Released() bool { return m.released }

// Camera is an orbit camera that moves instantly.
type Camera struct {
	mu       sync.Mutex
	position engine.Vec3
	target   engine.Vec3
	fits     []engine.Sphere

	rest engine.Signal[struct{}]
}

// NewCamera returns a camera at the origin looking down -Z.
func NewCamera() *Camera {
	return &Camera{position: engine.Vec3{Z: 10}}
}

func (c *Camera) SetLookAt(ctx context.Context, position, target engine.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.position, c.target = position, target
	c.mu.Unlock()
	c.rest.Trigger(struct{}{})
	return nil
}

func (c *Camera) SetTarget(ctx context.Context, target engine.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.target = target
	c.mu.Unlock()
	c.rest.Trigger(struct{}{})
	return nil
}

// FitToSphere keeps the viewing direction and backs off so the sphere
// fills the view.
func (c *Camera) FitToSphere(ctx context.Context, s engine.Sphere) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Radius <= 0 {
		return fmt.Errorf("fit to sphere: radius %v", s.Radius)
	}
	c.mu.Lock()
	dir := c.position.Sub(c.target)
	if l := dir.Length(); l > 0 {
		dir = dir.Scale(1 / l)
	} else {
		dir = engine.Vec3{Z: 1}
	}
	c.target = s.Center
	c.position = s.Center.Add(dir.Scale(s.Radius * 2.5))
	c.fits = append(c.fits, s)
	c.mu.Unlock()
	c.rest.Trigger(struct{}{})
	return nil
}

func (c *Camera) Position() engine.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *Camera) Target() engine.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *Camera) OnRest() *engine.Signal[struct{}] { return &c.rest }

// Fits returns every sphere the camera was fitted to.
func (c *Camera) Fits() []engine.Sphere {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.fits)
}

// Raycaster resolves the pointer to an element's bounds centre.
type Raycaster struct {
	fragments *FragmentsManager

	mu  sync.Mutex
	aim *engine.Hit
}

func (r *Raycaster) CastRay(ctx context.Context) (*engine.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aim == nil {
		return nil, nil
	}
	hit := *r.aim
	return &hit, nil
}

// AimAt places the pointer on the centre of an element with geometry.
func (r *Raycaster) AimAt(modelID string, localID int) error {
	m, ok := r.fragments.model(modelID)
	if !ok {
		return fmt.Errorf("aim at %s/%d: %w", modelID, localID, engine.ErrModelNotFound)
	}
	e, ok := m.element(localID)
	if !ok || e.Bounds == nil {
		return fmt.Errorf("aim at %s/%d: element has no geometry", modelID, localID)
	}
	r.mu.Lock()
	r.aim = &engine.Hit{Point: e.Bounds.Center(), ModelID: modelID, LocalID: localID}
	r.mu.Unlock()
	return nil
}

// AimAtPoint places the pointer on an arbitrary point.
func (r *Raycaster) AimAtPoint(p engine.Vec3) {
	r.mu.Lock()
	r.aim = &engine.Hit{Point: p}
	r.mu.Unlock()
}

func (r *Raycaster) ClearAim() {
	r.mu.Lock()
	r.aim = nil
	r.mu.Unlock()
}
