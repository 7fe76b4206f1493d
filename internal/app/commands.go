package app

import (
	"context"
	"errors"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/bimview/internal/bim"
	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/input"
	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/source"
	"github.com/zjrosen/bimview/internal/spatialtree"
	"github.com/zjrosen/bimview/internal/ui/tree"
)

type startedMsg struct {
	session *bim.Session
	err     error
}

type loadedMsg struct {
	loaded source.Loaded
	err    error
}

type highlightedMsg struct {
	ids engine.ModelIDMap
}

type gestureMsg struct {
	err error
}

type errMsg struct {
	op  string
	err error
}

func (m Model) startCmd() tea.Cmd {
	ctx := m.rt.ctx
	manager := m.services.Manager
	status := m.rt.status
	return func() tea.Msg {
		session, err := bim.Startup(ctx, manager, func(message string, loading bool) {
			status.Publish(pubsub.UpdatedEvent, Status{Message: message, Loading: loading})
		})
		return startedMsg{session: session, err: err}
	}
}

// initialLoadCmd loads the requested file or fragments id, or restores the
// last stored model.
func (m Model) initialLoadCmd() tea.Cmd {
	open := m.services.Open
	switch {
	case open.File != "":
		return m.loadFileCmd(open.File, open.ModelID)
	case open.FragmentsID != "":
		return m.loadCmd("Downloading "+open.FragmentsID, func(ctx context.Context, src *source.Source) (source.Loaded, error) {
			return src.Remote(ctx, open.FragmentsID)
		})
	default:
		return m.loadCmd("Restoring last model", func(ctx context.Context, src *source.Source) (source.Loaded, error) {
			return src.Last(ctx)
		})
	}
}

func (m Model) loadFileCmd(path, modelID string) tea.Cmd {
	return m.loadCmd("Loading "+path, func(ctx context.Context, src *source.Source) (source.Loaded, error) {
		return src.File(ctx, path, modelID)
	})
}

// openCmd loads what the open prompt was given: an .ifc file is converted
// through the API, another existing file is read as fragments, anything
// else is a fragments id.
func (m Model) openCmd(target string) tea.Cmd {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	switch {
	case strings.HasSuffix(strings.ToLower(target), ".ifc"):
		return m.loadCmd("Converting "+target, func(ctx context.Context, src *source.Source) (source.Loaded, error) {
			return src.Upload(ctx, target)
		})
	case fileExists(target):
		return m.loadFileCmd(target, "")
	default:
		return m.loadCmd("Downloading "+target, func(ctx context.Context, src *source.Source) (source.Loaded, error) {
			return src.Remote(ctx, target)
		})
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (m Model) loadCmd(status string, load func(context.Context, *source.Source) (source.Loaded, error)) tea.Cmd {
	src := m.services.Source
	if src == nil {
		return nil
	}
	ctx := m.rt.ctx
	broker := m.rt.status
	return func() tea.Msg {
		broker.Publish(pubsub.UpdatedEvent, Status{Message: status, Loading: true})
		loaded, err := load(ctx, src)
		return loadedMsg{loaded: loaded, err: err}
	}
}

func (m Model) selectCmd(sel inspector.Selection) tea.Cmd {
	bridge := m.rt.bridge
	if bridge == nil {
		return nil
	}
	ctx := m.rt.ctx
	return func() tea.Msg {
		ids, err := bridge.Select(ctx, sel)
		if err != nil {
			return errMsg{op: "Highlight", err: err}
		}
		return highlightedMsg{ids: ids}
	}
}

func (m Model) clearCmd() tea.Cmd {
	bridge := m.rt.bridge
	if bridge == nil {
		return nil
	}
	ctx := m.rt.ctx
	return func() tea.Msg {
		if err := bridge.Clear(ctx); err != nil {
			return errMsg{op: "Clear highlight", err: err}
		}
		return nil
	}
}

func (m Model) reloadCmd() tea.Cmd {
	loader := m.rt.loader
	if loader == nil {
		return nil
	}
	ctx := m.rt.ctx
	return func() tea.Msg {
		if trees := loader.LoadTrees(ctx); len(trees) == 0 {
			return errMsg{op: "Reload trees", err: errors.New("no model tree could be loaded")}
		}
		return nil
	}
}

func (m Model) categoryCmd(msg tree.CategoryMsg) tea.Cmd {
	classify := m.rt.classify
	if classify == nil {
		return nil
	}
	ctx := m.rt.ctx
	return func() tea.Msg {
		var err error
		switch msg.Action {
		case tree.CategoryIsolate:
			err = classify.Isolate(ctx, []string{msg.Category})
		case tree.CategoryHide:
			err = classify.Hide(ctx, []string{msg.Category})
		case tree.CategoryShowAll:
			err = classify.Reset(ctx)
		}
		if err != nil {
			return errMsg{op: "Change visibility", err: err}
		}
		return nil
	}
}

type gesture int

const (
	gesturePick gesture = iota
	gestureCreate
	gestureFinish
	gestureRemove
	gestureCut
)

func (g gesture) event() input.Event {
	switch g {
	case gestureCreate:
		return input.Event{Kind: input.DoubleClick, Button: input.ButtonLeft}
	case gestureFinish:
		return input.Event{Kind: input.KeyDown, Code: input.CodeEnter}
	case gestureRemove:
		return input.Event{Kind: input.KeyDown, Code: input.CodeDelete}
	case gestureCut:
		return input.Event{Kind: input.MouseDown, Button: input.ButtonLeft, Ctrl: true}
	default:
		return input.Event{Kind: input.MouseDown, Button: input.ButtonLeft}
	}
}

// aims reports whether the gesture acts on the element under the pointer.
func (g gesture) aims() bool {
	return g == gesturePick || g == gestureCreate || g == gestureCut
}

// gestureCmd places the pointer on the element of the row under the cursor
// and emits the gesture on the input bus, as a click in the viewport would.
func (m Model) gestureCmd(g gesture) tea.Cmd {
	if !m.started {
		return nil
	}
	world := m.services.Manager.World()
	bus := m.services.Manager.Bus()
	var err error
	if g.aims() && world != nil {
		if aimer, ok := world.Raycaster().(engine.Aimer); ok {
			err = m.aim(aimer)
		}
	}
	bus.Emit(g.event())
	log.Debug(log.CatUI, "Gesture emitted", "kind", g.event().Kind)
	// Repaint after the tool handlers have run.
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return gestureMsg{err: err} })
}

// aim points at the first element with geometry under the selected row,
// or at nothing when there is none.
func (m Model) aim(aimer engine.Aimer) error {
	sel, ok := m.tree.Selected()
	if !ok {
		aimer.ClearAim()
		return errors.New("no row selected")
	}
	ids := spatialtree.IDSet{}
	spatialtree.CollectLocalIDs(sel.Node.Original, ids)
	var err error
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		if err = aimer.AimAt(sel.ModelID, id); err == nil {
			return nil
		}
	}
	aimer.ClearAim()
	if err == nil {
		err = errors.New("row has no elements")
	}
	return err
}
