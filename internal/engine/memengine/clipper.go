package memengine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/bimview/internal/engine"
)

// Clipper keeps clipping planes created at raycast hits.
type Clipper struct {
	mu      sync.Mutex
	world   engine.World
	enabled bool
	visible bool
	planes  []engine.Plane
}

func newClipper() *Clipper {
	return &Clipper{visible: true}
}

func (c *Clipper) Setup(world engine.World) {
	c.mu.Lock()
	c.world = world
	c.mu.Unlock()
}

func (c *Clipper) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Clipper) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

func (c *Clipper) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Clipper) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
}

// Create adds a plane through the pointer hit whose normal points at the
// camera. Returns nil when disabled or nothing is hit.
func (c *Clipper) Create(ctx context.Context) (*engine.Plane, error) {
	c.mu.Lock()
	world, enabled := c.world, c.enabled
	c.mu.Unlock()
	if world == nil {
		return nil, engine.ErrNotInitialized
	}
	if !enabled {
		return nil, nil
	}
	hit, err := world.Raycaster().CastRay(ctx)
	if err != nil {
		return nil, fmt.Errorf("create clipping plane: %w", err)
	}
	if hit == nil {
		return nil, nil
	}
	p := engine.Plane{
		ID:      uuid.NewString(),
		Point:   hit.Point,
		Normal:  facingNormal(world.Camera().Position(), hit.Point),
		Enabled: true,
	}
	c.mu.Lock()
	c.planes = append(c.planes, p)
	c.mu.Unlock()
	return &p, nil
}

func facingNormal(from, at engine.Vec3) engine.Vec3 {
	d := from.Sub(at)
	if l := d.Length(); l > 0 {
		return d.Scale(1 / l)
	}
	return engine.Vec3{Y: 1}
}

// Delete removes the plane closest to the pointer hit, or the last plane.
func (c *Clipper) Delete(ctx context.Context) error {
	c.mu.Lock()
	world := c.world
	c.mu.Unlock()

	var hit *engine.Hit
	if world != nil {
		h, err := world.Raycaster().CastRay(ctx)
		if err != nil {
			return fmt.Errorf("delete clipping plane: %w", err)
		}
		hit = h
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.planes) == 0 {
		return nil
	}
	idx := len(c.planes) - 1
	if hit != nil {
		best := -1.0
		for i, p := range c.planes {
			if d := p.Point.Distance(hit.Point); best < 0 || d < best {
				best, idx = d, i
			}
		}
	}
	c.planes = slices.Delete(c.planes, idx, idx+1)
	return nil
}

func (c *Clipper) DeleteAll() {
	c.mu.Lock()
	c.planes = nil
	c.mu.Unlock()
}

func (c *Clipper) ToggleAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.planes {
		c.planes[i].Enabled = !c.planes[i].Enabled
	}
}

func (c *Clipper) List() []engine.Plane {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.planes)
}

func (c *Clipper) Dispose() {
	c.mu.Lock()
	c.planes = nil
	c.enabled = false
	c.mu.Unlock()
}
