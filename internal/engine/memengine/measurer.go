package memengine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/bimview/internal/engine"
)

// Measurer implements area, length and volume measurement over raycast
// hits.
//
//   - length: two Create calls finish a segment.
//   - area: Create adds a vertex, EndCreation closes the polygon
//     (square mode takes the rectangle spanned by the first two points).
//   - volume: Create measures the bounding volume of the element hit.
type Measurer struct {
	kind      engine.MeasureKind
	fragments *FragmentsManager

	mu       sync.Mutex
	world    engine.World
	color    engine.Color
	mode     engine.MeasureMode
	enabled  bool
	visible  bool
	pending  []engine.Vec3
	list     []engine.Measurement
	disposed bool

	added engine.Signal[engine.Measurement]
}

func newMeasurer(kind engine.MeasureKind, fragments *FragmentsManager) *Measurer {
	return &Measurer{kind: kind, fragments: fragments, visible: true, mode: engine.ModeFree}
}

func (m *Measurer) Setup(world engine.World, color engine.Color, mode engine.MeasureMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world, m.color, m.mode = world, color, mode
}

func (m *Measurer) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled toggles the tool; disabling drops a measurement in progress.
func (m *Measurer) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		m.pending = nil
	}
}

func (m *Measurer) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

func (m *Measurer) SetVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	m.mu.Unlock()
}

func (m *Measurer) Mode() engine.MeasureMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Color returns the configured colour.
func (m *Measurer) Color() engine.Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.color
}

func (m *Measurer) Create(ctx context.Context) error {
	m.mu.Lock()
	world, enabled := m.world, m.enabled
	m.mu.Unlock()
	if world == nil {
		return engine.ErrNotInitialized
	}
	if !enabled {
		return nil
	}

	hit, err := world.Raycaster().CastRay(ctx)
	if err != nil {
		return fmt.Errorf("%s measurement: %w", m.kind, err)
	}
	if hit == nil {
		return nil
	}

	switch m.kind {
	case engine.KindVolume:
		return m.measureVolume(ctx, hit)
	case engine.KindLength:
		m.mu.Lock()
		m.pending = append(m.pending, hit.Point)
		if len(m.pending) < 2 {
			m.mu.Unlock()
			return nil
		}
		pts := m.pending[:2]
		m.pending = nil
		meas := engine.Measurement{
			ID:     uuid.NewString(),
			Kind:   engine.KindLength,
			Points: slices.Clone(pts),
			Value:  pts[0].Distance(pts[1]),
			Bounds: engine.BoxOf(pts...),
		}
		m.list = append(m.list, meas)
		m.mu.Unlock()
		m.added.Trigger(meas)
	default:
		m.mu.Lock()
		m.pending = append(m.pending, hit.Point)
		m.mu.Unlock()
	}
	return nil
}

func (m *Measurer) measureVolume(ctx context.Context, hit *engine.Hit) error {
	model, ok := m.fragments.model(hit.ModelID)
	if !ok {
		return nil
	}
	box, err := model.Bounds(ctx, []int{hit.LocalID})
	if err != nil {
		return fmt.Errorf("volume measurement: %w", err)
	}
	if box.Empty() {
		return nil
	}
	d := box.Max.Sub(box.Min)
	meas := engine.Measurement{
		ID:     uuid.NewString(),
		Kind:   engine.KindVolume,
		Points: []engine.Vec3{box.Min, box.Max},
		Value:  d.X * d.Y * d.Z,
		Bounds: box,
	}
	m.mu.Lock()
	m.list = append(m.list, meas)
	m.mu.Unlock()
	m.added.Trigger(meas)
	return nil
}

// EndCreation closes the area polygon in progress. Too few points is an
// error; nothing in progress is a no-op.
func (m *Measurer) EndCreation() error {
	m.mu.Lock()
	if m.kind != engine.KindArea || len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	pts := m.pending
	mode := m.mode
	m.pending = nil

	var value float64
	switch {
	case mode == engine.ModeSquare && len(pts) >= 2:
		d := pts[1].Sub(pts[0])
		value = math.Abs(d.X * d.Z)
		pts = pts[:2]
	case len(pts) >= 3:
		value = polygonArea(pts)
	default:
		m.mu.Unlock()
		return fmt.Errorf("area measurement: need more points, have %d", len(pts))
	}
	meas := engine.Measurement{
		ID:     uuid.NewString(),
		Kind:   engine.KindArea,
		Points: slices.Clone(pts),
		Value:  value,
		Bounds: engine.BoxOf(pts...),
	}
	m.list = append(m.list, meas)
	m.mu.Unlock()

	m.added.Trigger(meas)
	return nil
}

// polygonArea is the shoelace area of pts projected on the XZ plane.
func polygonArea(pts []engine.Vec3) float64 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Z - pts[j].X*pts[i].Z
	}
	return math.Abs(sum) / 2
}

// Delete removes the measurement whose bounds contain the pointer hit, or
// the most recent one.
func (m *Measurer) Delete(ctx context.Context) error {
	m.mu.Lock()
	world := m.world
	empty := len(m.list) == 0
	m.mu.Unlock()
	if empty {
		return nil
	}

	var hit *engine.Hit
	if world != nil {
		h, err := world.Raycaster().CastRay(ctx)
		if err != nil {
			return fmt.Errorf("%s delete: %w", m.kind, err)
		}
		hit = h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.list) == 0 {
		return nil
	}
	idx := len(m.list) - 1
	if hit != nil {
		for i, meas := range m.list {
			if contains(meas.Bounds, hit.Point) {
				idx = i
				break
			}
		}
	}
	m.list = slices.Delete(m.list, idx, idx+1)
	return nil
}

func contains(b engine.Box, p engine.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (m *Measurer) Clear() {
	m.mu.Lock()
	m.list = nil
	m.pending = nil
	m.mu.Unlock()
}

// Pending returns how many points the measurement in progress has.
func (m *Measurer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Measurer) List() []engine.Measurement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.list)
}

func (m *Measurer) OnAdded() *engine.Signal[engine.Measurement] { return &m.added }

// Disposed reports whether Dispose ran.
func (m *Measurer) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *Measurer) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.enabled = false
	m.list = nil
	m.pending = nil
	m.mu.Unlock()
	m.added.Reset()
}
