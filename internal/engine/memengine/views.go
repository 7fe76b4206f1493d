package memengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
)

// ErrViewNotFound is returned by Open for an unknown view name.
var ErrViewNotFound = errors.New("memengine: view not found")

// Views keeps named 2D section views.
type Views struct {
	mu      sync.Mutex
	world   engine.World
	enabled bool
	views   []engine.View
	active  string
	seq     int

	changed engine.Signal[struct{}]
}

func (v *Views) Setup(world engine.World) {
	v.mu.Lock()
	v.world = world
	v.mu.Unlock()
}

func (v *Views) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

func (v *Views) SetEnabled(enabled bool) {
	v.mu.Lock()
	v.enabled = enabled
	v.mu.Unlock()
}

// Create adds a section view through the pointer hit facing the camera.
// Returns nil when disabled or nothing is hit.
func (v *Views) Create(ctx context.Context) (*engine.View, error) {
	v.mu.Lock()
	world, enabled := v.world, v.enabled
	v.mu.Unlock()
	if world == nil {
		return nil, engine.ErrNotInitialized
	}
	if !enabled {
		return nil, nil
	}
	hit, err := world.Raycaster().CastRay(ctx)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}
	if hit == nil {
		return nil, nil
	}
	return v.add(engine.View{
		Point:  hit.Point,
		Normal: facingNormal(world.Camera().Position(), hit.Point),
	}), nil
}

func (v *Views) CreateFromPlane(p engine.Plane) (*engine.View, error) {
	if p.ID == "" {
		return nil, errors.New("create view: plane has no id")
	}
	v.mu.Lock()
	exists := slices.ContainsFunc(v.views, func(x engine.View) bool { return x.PlaneID == p.ID })
	v.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("create view: plane %s already has a view", p.ID)
	}
	return v.add(engine.View{PlaneID: p.ID, Point: p.Point, Normal: p.Normal}), nil
}

func (v *Views) add(view engine.View) *engine.View {
	v.mu.Lock()
	v.seq++
	view.Name = fmt.Sprintf("View %d", v.seq)
	v.views = append(v.views, view)
	v.mu.Unlock()
	v.changed.Trigger(struct{}{})
	return &view
}

func (v *Views) Open(name string) error {
	v.mu.Lock()
	if !slices.ContainsFunc(v.views, func(x engine.View) bool { return x.Name == name }) {
		v.mu.Unlock()
		return fmt.Errorf("open %q: %w", name, ErrViewNotFound)
	}
	v.active = name
	v.mu.Unlock()
	v.changed.Trigger(struct{}{})
	return nil
}

func (v *Views) Close() error {
	v.mu.Lock()
	wasOpen := v.active != ""
	v.active = ""
	v.mu.Unlock()
	if wasOpen {
		v.changed.Trigger(struct{}{})
	}
	return nil
}

func (v *Views) Active() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *Views) Delete(name string) {
	v.mu.Lock()
	n := len(v.views)
	v.views = slices.DeleteFunc(v.views, func(x engine.View) bool { return x.Name == name })
	if v.active == name {
		v.active = ""
	}
	removed := len(v.views) != n
	v.mu.Unlock()
	if removed {
		v.changed.Trigger(struct{}{})
	}
}

func (v *Views) List() []engine.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.views)
}

func (v *Views) OnChanged() *engine.Signal[struct{}] { return &v.changed }

func (v *Views) Dispose() {
	v.mu.Lock()
	v.views = nil
	v.active = ""
	v.enabled = false
	v.mu.Unlock()
	v.changed.Reset()
}
