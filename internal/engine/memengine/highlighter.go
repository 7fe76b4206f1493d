package memengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

const selectName = "select"

// Highlighter keeps named selections and frames the camera on them.
type Highlighter struct {
	fragments *FragmentsManager

	mu         sync.Mutex
	world      engine.World
	style      engine.SelectStyle
	enabled    bool
	zoom       bool
	selections map[string]engine.ModelIDMap
	disposed   bool

	highlight engine.Signal[engine.ModelIDMap]
	clear     engine.Signal[struct{}]
}

func newHighlighter(fragments *FragmentsManager) *Highlighter {
	return &Highlighter{
		fragments:  fragments,
		enabled:    true,
		selections: make(map[string]engine.ModelIDMap),
	}
}

func (h *Highlighter) Setup(world engine.World, style engine.SelectStyle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.world, h.style = world, style
}

// Style returns the select style passed to Setup.
func (h *Highlighter) Style() engine.SelectStyle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.style
}

func (h *Highlighter) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *Highlighter) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

func (h *Highlighter) SetZoomToSelection(zoom bool) {
	h.mu.Lock()
	h.zoom = zoom
	h.mu.Unlock()
}

// ZoomToSelection reports the zoom setting.
func (h *Highlighter) ZoomToSelection() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoom
}

func (h *Highlighter) SelectName() string { return selectName }

// HighlightByID sets (or extends) the named selection. Ids of unknown
// models are ignored. The camera is fitted when both the option and the
// highlighter's zoom setting ask for it.
func (h *Highlighter) HighlightByID(ctx context.Context, name string, ids engine.ModelIDMap, opts engine.HighlightOptions) error {
	h.mu.Lock()
	world := h.world
	zoom := h.zoom && opts.ZoomToSelection
	if world == nil {
		h.mu.Unlock()
		return engine.ErrNotInitialized
	}
	sel := h.selections[name]
	if opts.RemovePrevious || sel == nil {
		sel = engine.ModelIDMap{}
	}
	for modelID, set := range ids {
		if _, ok := h.fragments.model(modelID); !ok {
			continue
		}
		dst := sel[modelID]
		if dst == nil {
			dst = spatialtree.IDSet{}
			sel[modelID] = dst
		}
		for id := range set {
			dst.Add(id)
		}
	}
	h.selections[name] = sel
	snapshot := copyMap(sel)
	h.mu.Unlock()

	if zoom {
		if err := h.frame(ctx, world, snapshot); err != nil {
			return fmt.Errorf("zoom to selection: %w", err)
		}
	}
	h.highlight.Trigger(snapshot)
	return nil
}

func (h *Highlighter) frame(ctx context.Context, world engine.World, sel engine.ModelIDMap) error {
	var pts []engine.Vec3
	for modelID, set := range sel {
		m, ok := h.fragments.model(modelID)
		if !ok {
			continue
		}
		box, err := m.Bounds(ctx, set.Sorted())
		if err != nil {
			return err
		}
		if !box.Empty() {
			pts = append(pts, box.Min, box.Max)
		}
	}
	if len(pts) == 0 {
		return nil
	}
	s := engine.BoxOf(pts...).BoundingSphere()
	if s.Radius == 0 {
		s.Radius = 1
	}
	return world.Camera().FitToSphere(ctx, s)
}

func (h *Highlighter) Clear(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.selections, name)
	h.mu.Unlock()
	h.clear.Trigger(struct{}{})
	return nil
}

func (h *Highlighter) Selection(name string) engine.ModelIDMap {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyMap(h.selections[name])
}

func copyMap(m engine.ModelIDMap) engine.ModelIDMap {
	out := make(engine.ModelIDMap, len(m))
	for k, set := range m {
		c := make(spatialtree.IDSet, len(set))
		for id := range set {
			c.Add(id)
		}
		out[k] = c
	}
	return out
}

func (h *Highlighter) OnHighlight() *engine.Signal[engine.ModelIDMap] { return &h.highlight }
func (h *Highlighter) OnClear() *engine.Signal[struct{}]              { return &h.clear }

func (h *Highlighter) Dispose() {
	h.mu.Lock()
	h.disposed = true
	h.selections = make(map[string]engine.ModelIDMap)
	h.mu.Unlock()
	h.highlight.Reset()
	h.clear.Reset()
}
