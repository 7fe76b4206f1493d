package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	zone "github.com/lrstanley/bubblezone"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/bim"
	"github.com/zjrosen/bimview/internal/config"
	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
	"github.com/zjrosen/bimview/internal/input"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/source"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	os.Exit(m.Run())
}

type fakeClipboard struct{ text string }

func (c *fakeClipboard) Copy(text string) error {
	c.text = text
	return nil
}

type env struct {
	dir   string
	reg   *registry.Registry
	store *sqlite.FragmentsRepository
	clip  *fakeClipboard
	srv   *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithWorker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = io.WriteString(w, "export default {};")
	}))
}

func newEnvWithWorker(t *testing.T, worker http.Handler) *env {
	t.Helper()
	e := &env{dir: t.TempDir(), clip: &fakeClipboard{}}
	e.srv = httptest.NewServer(worker)
	t.Cleanup(e.srv.Close)

	db, err := sqlite.NewDB(filepath.Join(e.dir, "fragments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	e.store = db.Fragments()
	return e
}

func (e *env) writeSample(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, memengine.SampleBytes(), 0o600))
	return path
}

func (e *env) services(t *testing.T, open OpenRequest) Services {
	t.Helper()
	eng := memengine.New()
	e.reg = registry.New()
	bus := input.NewBus()
	t.Cleanup(func() {
		bus.Close()
		e.reg.Close()
	})
	manager := bim.New(eng, e.reg, bus,
		bim.WithWorkerURL(e.srv.URL+"/worker.mjs"),
		bim.WithHTTPClient(e.srv.Client()),
		bim.WithWorkerDir(e.dir),
	)
	cfg := config.Defaults()
	cfg.Tree.RetryStep = time.Millisecond
	return Services{
		Manager:   manager,
		Source:    source.New(eng.Fragments(), source.WithStore(e.store)),
		Config:    cfg,
		Clipboard: e.clip,
		Open:      open,
	}
}

// harness runs commands on goroutines and feeds their messages back into
// Update on the test goroutine, the way a tea.Program does.
type harness struct {
	t    *testing.T
	m    Model
	msgs chan tea.Msg
	done chan struct{}
}

func start(t *testing.T, services Services) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		m:    New(services),
		msgs: make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
	t.Cleanup(func() {
		close(h.done)
		_ = h.m.Close()
	})
	h.send(tea.WindowSizeMsg{Width: 120, Height: 30})
	h.run(h.m.Init())
	return h
}

func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		select {
		case h.msgs <- msg:
		case <-h.done:
		}
	}()
}

func (h *harness) send(msg tea.Msg) {
	switch msg := msg.(type) {
	case nil, tea.QuitMsg:
		return
	case tea.BatchMsg:
		for _, cmd := range msg {
			h.run(cmd)
		}
		return
	}
	model, cmd := h.m.Update(msg)
	h.m = model.(Model)
	h.run(cmd)
}

func (h *harness) key(k string) {
	switch k {
	case "enter":
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "tab":
		h.send(tea.KeyMsg{Type: tea.KeyTab})
	case "esc":
		h.send(tea.KeyMsg{Type: tea.KeyEsc})
	default:
		h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	}
}

func (h *harness) typeText(s string) {
	for _, r := range s {
		h.key(string(r))
	}
}

func (h *harness) waitFor(what string, cond func(Model) bool) {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond(h.m) {
		select {
		case msg := <-h.msgs:
			h.send(msg)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; status %q", what, h.m.status.Message)
		}
	}
}

func treesLoaded(m Model) bool { return m.tree.Len() > 0 }

func TestApp_StartsAndLoadsFile(t *testing.T) {
	e := newEnv(t)
	path := e.writeSample(t, "house.frag")
	h := start(t, e.services(t, OpenRequest{File: path}))

	h.waitFor("trees", treesLoaded)
	h.waitFor("load status", func(m Model) bool { return strings.Contains(m.status.Message, "loaded from") })

	require.True(t, h.m.started)
	require.Equal(t, "house loaded from "+path, h.m.status.Message)
	view := h.m.View()
	require.Contains(t, view, "Spatial tree")
	require.Contains(t, view, "1 model")
	require.Contains(t, view, "IFCPROJECT")
	require.Contains(t, view, "Properties")
	require.Contains(t, view, "Nothing highlighted")

	rec, err := e.store.Last(context.Background())
	require.NoError(t, err)
	require.Equal(t, "house", rec.ModelID)
}

func TestApp_RenderStatusAfterLoadKeepsLoadedMessage(t *testing.T) {
	e := newEnv(t)
	path := e.writeSample(t, "house.frag")
	h := start(t, e.services(t, OpenRequest{File: path}))
	h.waitFor("load status", func(m Model) bool { return m.status.Message == "house loaded from "+path })

	// Render updates from the engine may arrive after the load result.
	h.send(pubsub.Event[Status]{Type: pubsub.UpdatedEvent, Payload: Status{Message: "Rendering model...", Loading: true}})
	require.True(t, h.m.status.Loading)
	h.send(pubsub.Event[Status]{Type: pubsub.UpdatedEvent, Payload: Status{}})

	require.False(t, h.m.status.Loading)
	require.Equal(t, "house loaded from "+path, h.m.status.Message)
}

func TestApp_RestoresLastModel(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Put(context.Background(), sqlite.Record{
		Key:     sqlite.LastKey,
		ModelID: "office",
		Source:  "api:office",
		Data:    memengine.SampleBytes(),
	}))
	h := start(t, e.services(t, OpenRequest{}))

	h.waitFor("trees", treesLoaded)
	h.waitFor("load status", func(m Model) bool { return m.status.Message == "office loaded from db" })
}

func TestApp_NothingStored(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{}))

	h.waitFor("status", func(m Model) bool { return strings.HasPrefix(m.status.Message, "No model loaded") })
	require.False(t, h.m.status.Loading)
	require.Zero(t, h.m.tree.Len())
}

func TestApp_StartupFailure(t *testing.T) {
	e := newEnvWithWorker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	h := start(t, e.services(t, OpenRequest{}))

	h.waitFor("failure", func(m Model) bool { return strings.HasPrefix(m.status.Message, "Viewer failed to start") })
	require.False(t, h.m.started)
	require.True(t, h.m.toaster.Visible())
	require.Zero(t, e.reg.Len())
}

func TestApp_SelectShowsPropertiesAndCopies(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	h.waitFor("trees", treesLoaded)

	h.key("/")
	h.typeText("door")
	h.key("enter")
	h.key("G")
	sel, ok := h.m.tree.Selected()
	require.True(t, ok)
	require.Equal(t, "Item 13", sel.Node.DisplayName())

	h.key("enter")
	h.waitFor("items", func(m Model) bool { return len(m.items.Items()) > 0 })
	require.Equal(t, "IFCDOOR", h.m.items.Items()[0].Type)
	require.Contains(t, h.m.View(), "Front door")

	h.key("tab")
	require.Equal(t, focusItems, h.m.focus)
	h.key("y")
	h.waitFor("copy", func(m Model) bool { return m.toaster.Visible() })
	require.Contains(t, e.clip.text, "FireRating\tEI30")

	h.key("c")
	require.Equal(t, focusItems, h.m.focus, "c only clears from the tree")
	h.key("tab")
	h.key("c")
	h.waitFor("cleared", func(m Model) bool { return len(m.items.Items()) == 0 })
}

func TestApp_OpenPromptLoadsFile(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{}))
	h.waitFor("started", func(m Model) bool { return m.started })

	path := e.writeSample(t, "annex.frag")
	h.key("o")
	require.True(t, h.m.showPrompt)
	require.Contains(t, h.m.View(), "Open model")

	h.key("q") // typed into the prompt, not quit
	h.send(tea.KeyMsg{Type: tea.KeyBackspace})
	h.typeText(path)
	h.key("enter")

	h.waitFor("trees", treesLoaded)
	require.False(t, h.m.showPrompt)
	h.waitFor("load status", func(m Model) bool { return m.status.Message == "annex loaded from "+path })
}

func TestApp_OpenPromptCancel(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{}))

	h.key("o")
	require.True(t, h.m.showPrompt)
	h.key("esc")
	h.waitFor("prompt closed", func(m Model) bool { return !m.showPrompt })
}

func TestApp_SecondModelToastsTreeChange(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	h.waitFor("trees", treesLoaded)

	h.run(h.m.openCmd(e.writeSample(t, "annex.frag")))
	h.waitFor("two models", func(m Model) bool { return len(m.tree.Trees()) == 2 })
	h.waitFor("toast", func(m Model) bool { return m.toaster.Visible() })
	require.Contains(t, h.m.View(), "Spatial tree updated: +")
	require.Contains(t, h.m.View(), "2 models")
}

func TestApp_GestureCreatesClippingPlane(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	h.waitFor("trees", treesLoaded)

	h.key("5")
	h.waitFor("clipper on", func(m Model) bool { return m.toolbar.Enabled(registry.KeyClipper) })

	h.key("n")
	require.Eventually(t, func() bool { return h.m.toolCount(registry.KeyClipper) == 1 }, 2*time.Second, 10*time.Millisecond)

	h.key("X")
	require.Eventually(t, func() bool { return h.m.toolCount(registry.KeyClipper) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestApp_GestureBeforeStartIsIgnored(t *testing.T) {
	e := newEnv(t)
	m := New(e.services(t, OpenRequest{}))
	t.Cleanup(func() { _ = m.Close() })
	require.Nil(t, m.gestureCmd(gesturePick))
}

func TestApp_HelpOverlay(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{}))

	h.key("?")
	require.True(t, h.m.showHelp)
	require.Contains(t, h.m.View(), "Keybindings")

	h.key("j") // ignored while help is shown
	require.True(t, h.m.showHelp)
	h.key("esc")
	require.False(t, h.m.showHelp)
}

func TestApp_QuitKeys(t *testing.T) {
	e := newEnv(t)
	m := New(e.services(t, OpenRequest{}))
	t.Cleanup(func() { _ = m.Close() })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	require.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.Equal(t, tea.QuitMsg{}, cmd())
}

func TestApp_SearchTakesQuitKey(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	h.waitFor("trees", treesLoaded)

	h.key("/")
	h.key("q")
	require.True(t, h.m.tree.Searching())
	require.Equal(t, "q", h.m.tree.Query())
}

func TestApp_CloseShutsDownViewer(t *testing.T) {
	e := newEnv(t)
	h := start(t, e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	h.waitFor("trees", treesLoaded)
	require.NotZero(t, e.reg.Len())

	require.NoError(t, h.m.Close())
	require.Zero(t, e.reg.Len())
	require.Equal(t, bim.StateDisposed, h.m.services.Manager.State())
}

func TestApp_WatcherReloadsFile(t *testing.T) {
	e := newEnv(t)
	path := e.writeSample(t, "house.frag")
	services := e.services(t, OpenRequest{File: path})
	services.WatchPath = path
	services.Config.Watch.Debounce = 20 * time.Millisecond
	h := start(t, services)
	h.waitFor("trees", treesLoaded)
	require.NotNil(t, h.m.rt.watcher)

	h.m.status = Status{Message: "idle"}
	require.NoError(t, os.WriteFile(path, memengine.SampleBytes(), 0o600))
	h.waitFor("reload", func(m Model) bool { return m.status.Message == "house loaded from "+path })
}

func TestModelCount(t *testing.T) {
	require.Empty(t, modelCount(0))
	require.Equal(t, "1 model", modelCount(1))
	require.Equal(t, "3 models", modelCount(3))
}

func TestProgram_RendersTreeAndQuits(t *testing.T) {
	e := newEnv(t)
	m := New(e.services(t, OpenRequest{File: e.writeSample(t, "house.frag")}))
	t.Cleanup(func() { _ = m.Close() })

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 30))
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("IFCPROJECT"))
	}, teatest.WithDuration(5*time.Second), teatest.WithCheckInterval(20*time.Millisecond))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	tm.WaitFinished(t, teatest.WithFinalTimeout(5*time.Second))
}
