// Package app contains the root application model.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/bim"
	"github.com/zjrosen/bimview/internal/config"
	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/keys"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/source"
	"github.com/zjrosen/bimview/internal/treediff"
	"github.com/zjrosen/bimview/internal/ui/help"
	"github.com/zjrosen/bimview/internal/ui/itempanel"
	"github.com/zjrosen/bimview/internal/ui/logoverlay"
	"github.com/zjrosen/bimview/internal/ui/modal"
	"github.com/zjrosen/bimview/internal/ui/toaster"
	"github.com/zjrosen/bimview/internal/ui/toolbar"
	"github.com/zjrosen/bimview/internal/ui/tree"
	"github.com/zjrosen/bimview/internal/watcher"
)

// OpenRequest is what to load once the viewer is up. File wins over
// FragmentsID; with neither the last stored model is restored.
type OpenRequest struct {
	File        string
	ModelID     string
	FragmentsID string
}

// Services are the dependencies the application runs on.
type Services struct {
	Manager   *bim.Manager
	Source    *source.Source
	Config    config.Config
	Metrics   *metrics.Collector
	Tracer    trace.Tracer
	Clipboard itempanel.Clipboard
	Open      OpenRequest
	WatchPath string // reload Open.File when it changes
	Debug     bool   // enables the log overlay (ctrl+x)
}

// Status is a line for the status bar.
type Status struct {
	Message string
	Loading bool
}

type focusTarget int

const (
	focusTree focusTarget = iota
	focusItems
)

// runtime holds the resources created while the program runs. Model is
// copied on every Update; these are shared by all copies.
type runtime struct {
	ctx    context.Context
	cancel context.CancelFunc

	status   *pubsub.Broker[Status]
	session  *bim.Session
	loader   *inspector.Loader
	bridge   *inspector.Bridge
	classify *inspector.Classifier

	watcher *watcher.Watcher

	statusListener   *pubsub.ContinuousListener[Status]
	registryListener *pubsub.ContinuousListener[registry.Change]
	treesListener    *pubsub.ContinuousListener[[]inspector.ModelTree]
	itemsListener    *pubsub.ContinuousListener[bim.Items]
	watcherListener  *pubsub.ContinuousListener[watcher.WatcherEvent]
	logListener      *log.LogListener
}

// Model is the root application state.
type Model struct {
	services Services
	rt       *runtime

	width  int
	height int
	focus  focusTarget

	tree       *tree.Model
	items      *itempanel.Model
	toolbar    toolbar.Model
	toaster    toaster.Model
	help       help.Model
	showHelp   bool
	logOverlay logoverlay.Model
	prompt     modal.Model
	showPrompt bool

	spinner spinner.Model
	status  Status
	idle    string // last settled message, shown again when loading ends
	started bool
}

// New creates the application model. The viewer itself is started by Init.
func New(services Services) Model {
	ctx, cancel := context.WithCancel(context.Background())
	rt := &runtime{
		ctx:    ctx,
		cancel: cancel,
		status: pubsub.NewBroker[Status](),
	}
	rt.statusListener = pubsub.NewContinuousListener[Status](ctx, rt.status)

	reg := services.Manager.Registry()
	rt.registryListener = pubsub.NewContinuousListener[registry.Change](ctx, reg)
	rt.itemsListener = pubsub.NewContinuousListener[bim.Items](ctx, services.Manager.Items())

	if services.WatchPath != "" {
		w, err := watcher.New(watcher.Config{Path: services.WatchPath, DebounceDur: services.Config.Watch.Debounce})
		if err == nil {
			if err := w.Start(); err == nil {
				rt.watcher = w
				rt.watcherListener = pubsub.NewContinuousListener[watcher.WatcherEvent](ctx, w.Broker())
			} else {
				log.Warn(log.CatWatcher, "Not watching fragments file", "path", services.WatchPath, "error", err)
				_ = w.Stop()
			}
		}
	}
	if services.Debug {
		rt.logListener = log.NewListener(ctx)
	}

	t := tree.New()
	t.SetShowCounts(services.Config.UI.ShowCounts)
	t.SetFocused(true)

	m := Model{
		services:   services,
		rt:         rt,
		tree:       t,
		items:      itempanel.New(services.Clipboard),
		toaster:    toaster.New(),
		help:       help.New().SetMarkdownStyle(services.Config.UI.MarkdownStyle),
		logOverlay: logoverlay.New(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		status:     Status{Message: "Starting viewer", Loading: true},
	}
	m.toolbar = toolbar.New(reg).WithCounts(m.toolCount)
	return m
}

// Init starts the viewer and the event listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.startCmd(),
		m.spinner.Tick,
		m.rt.statusListener.Listen(),
		m.rt.registryListener.Listen(),
		m.rt.itemsListener.Listen(),
	}
	if m.rt.watcherListener != nil {
		cmds = append(cmds, m.rt.watcherListener.Listen())
	}
	if m.rt.logListener != nil {
		cmds = append(cmds, m.rt.logListener.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case spinner.TickMsg:
		if !m.status.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pubsub.Event[Status]:
		wasLoading := m.status.Loading
		switch {
		case msg.Payload.Message != "" && msg.Payload.Loading:
			m.status = msg.Payload
		case msg.Payload.Message != "":
			m.settle(msg.Payload.Message)
		case msg.Payload.Loading:
			m.status.Loading = true
		default:
			m.settle(m.idle)
		}
		cmds := []tea.Cmd{m.rt.statusListener.Listen()}
		if m.status.Loading && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case startedMsg:
		return m.handleStarted(msg)

	case loadedMsg:
		return m.handleLoaded(msg)

	case pubsub.Event[[]inspector.ModelTree]:
		return m.handleTrees(msg.Payload)

	case pubsub.Event[bim.Items]:
		m.tree.SetHighlighted(msg.Payload.Selection)
		m.items.SetItems(msg.Payload.Items)
		return m, m.rt.itemsListener.Listen()

	case pubsub.Event[registry.Change]:
		// Toolbar state is read from the registry on render.
		return m, m.rt.registryListener.Listen()

	case pubsub.Event[watcher.WatcherEvent]:
		return m.handleWatcher(msg.Payload)

	case log.LogEvent:
		m.logOverlay.Append(msg.Payload)
		return m, m.rt.logListener.Listen()

	case tree.SelectMsg:
		return m, m.selectCmd(msg.Selection)

	case tree.ClearMsg:
		return m, m.clearCmd()

	case tree.ReloadMsg:
		return m, m.reloadCmd()

	case tree.CategoryMsg:
		return m, m.categoryCmd(msg)

	case highlightedMsg:
		m.tree.SetHighlighted(msg.ids)
		if len(msg.ids) == 0 {
			return m.toast("Nothing to highlight", toaster.StyleWarn)
		}
		return m, nil

	case toolbar.ToggledMsg:
		state := "off"
		if msg.Enabled {
			state = "on"
		}
		return m.toast(fmt.Sprintf("%s %s", msg.Tool.Label, state), toaster.StyleInfo)

	case itempanel.CopiedMsg:
		switch {
		case msg.Err != nil:
			return m.toast(msg.Err.Error(), toaster.StyleError)
		case msg.Rows == 0:
			return m.toast("Nothing to copy", toaster.StyleWarn)
		default:
			return m.toast(fmt.Sprintf("Copied %d properties", msg.Rows), toaster.StyleSuccess)
		}

	case modal.SubmitMsg:
		m.showPrompt = false
		return m, m.openCmd(msg.Values["source"])

	case modal.CancelMsg:
		m.showPrompt = false
		return m, nil

	case gestureMsg:
		if msg.err != nil {
			log.Debug(log.CatUI, "Gesture without target", "error", msg.err)
		}
		return m, nil

	case errMsg:
		log.ErrorErr(log.CatUI, msg.op+" failed", msg.err)
		return m.toast(fmt.Sprintf("%s: %v", msg.op, msg.err), toaster.StyleError)

	case toaster.ShowMsg:
		return m.toast(msg.Message, msg.Style)

	case toaster.DismissMsg:
		m.toaster = m.toaster.Update(msg)
		return m, nil

	case logoverlay.CloseMsg:
		m.logOverlay.Hide()
		return m, nil
	}

	if m.showPrompt {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	// Cursor blink and other component messages.
	return m, tea.Batch(m.tree.Update(msg), m.items.Update(msg))
}

func (m Model) toast(message string, style toaster.Style) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.toaster, cmd = m.toaster.Show(message, style)
	return m, cmd
}

// settle ends any loading state and shows message until the next load.
func (m *Model) settle(message string) {
	m.status = Status{Message: message}
	m.idle = message
}

func (m *Model) resize() {
	treeW, itemsW, bodyH := m.layout()
	m.tree.SetSize(max(treeW-2, 1), max(bodyH-2, 1))
	m.items.SetSize(max(itemsW-2, 1), max(bodyH-2, 1))
	m.help = m.help.SetSize(m.width, m.height)
	m.logOverlay.SetSize(m.width, m.height)
	m.prompt.SetSize(m.width, m.height)
}

func (m *Model) setFocus(f focusTarget) {
	m.focus = f
	m.tree.SetFocused(f == focusTree)
	m.items.SetFocused(f == focusItems)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.showPrompt {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	if m.services.Debug && key.Matches(msg, keys.Tree.Logs) {
		m.logOverlay.Toggle()
		return m, nil
	}
	if m.logOverlay.Visible() {
		var cmd tea.Cmd
		m.logOverlay, cmd = m.logOverlay.Update(msg)
		return m, cmd
	}
	if m.showHelp {
		switch {
		case key.Matches(msg, keys.Tree.Help), key.Matches(msg, keys.Tree.Escape):
			m.showHelp = false
		case key.Matches(msg, keys.Tree.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	// Text inputs take every key until they are closed.
	if m.tree.Searching() {
		return m, m.tree.Update(msg)
	}
	if m.items.Filtering() {
		return m, m.items.Update(msg)
	}

	switch {
	case key.Matches(msg, keys.Tree.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Tree.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, keys.Tree.Focus):
		if m.focus == focusTree {
			m.setFocus(focusItems)
		} else {
			m.setFocus(focusTree)
		}
		return m, nil
	case key.Matches(msg, keys.Tree.Open):
		return m.openPrompt()
	case key.Matches(msg, keys.Tree.Pick):
		return m, m.gestureCmd(gesturePick)
	case key.Matches(msg, keys.Tree.Create):
		return m, m.gestureCmd(gestureCreate)
	case key.Matches(msg, keys.Tree.Finish):
		return m, m.gestureCmd(gestureFinish)
	case key.Matches(msg, keys.Tree.Remove):
		return m, m.gestureCmd(gestureRemove)
	case key.Matches(msg, keys.Tree.Cut):
		return m, m.gestureCmd(gestureCut)
	}
	if cmd := m.toolbar.Update(msg); cmd != nil {
		return m, cmd
	}

	if m.focus == focusItems {
		return m, m.items.Update(msg)
	}
	return m, m.tree.Update(msg)
}

const (
	zoneTreePane  = "pane:tree"
	zoneItemsPane = "pane:items"
)

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.showPrompt || m.showHelp {
		return m, nil
	}
	if m.logOverlay.Visible() {
		var cmd tea.Cmd
		m.logOverlay, cmd = m.logOverlay.Update(msg)
		return m, cmd
	}
	if cmd := m.toolbar.Update(msg); cmd != nil {
		return m, cmd
	}

	inItems := false
	if z := zone.Get(zoneItemsPane); z != nil && z.InBounds(msg) {
		inItems = true
	}
	click := msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionRelease
	if inItems {
		if click {
			m.setFocus(focusItems)
		}
		return m, m.items.Update(msg)
	}
	if z := zone.Get(zoneTreePane); z != nil && z.InBounds(msg) {
		if click {
			m.setFocus(focusTree)
		}
		return m, m.tree.Update(msg)
	}
	return m, nil
}

func (m Model) openPrompt() (tea.Model, tea.Cmd) {
	m.prompt = modal.New(modal.Config{
		Title:   "Open model",
		Message: "A fragments file, an .ifc file to convert, or a fragments id on the server.",
		Inputs: []modal.InputConfig{
			{Key: "source", Label: "Source", Placeholder: "path or id"},
		},
		MinWidth: 50,
	})
	m.prompt.SetSize(m.width, m.height)
	m.showPrompt = true
	return m, m.prompt.Init()
}

func (m Model) handleStarted(msg startedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.settle("Viewer failed to start: " + msg.err.Error())
		log.ErrorErr(log.CatLifecycle, "Viewer failed to start", msg.err)
		return m.toast("Viewer failed to start", toaster.StyleError)
	}
	rt := m.rt
	rt.session = msg.session
	m.started = true

	reg := m.services.Manager.Registry()
	fragments, ok := registry.Lookup[engine.FragmentsManager](reg, registry.KeyFragmentsManager)
	if !ok {
		return m, func() tea.Msg { return errMsg{op: "Startup", err: errors.New("fragments manager missing")} }
	}
	cfg := m.services.Config
	rt.loader = inspector.NewLoader(fragments,
		inspector.WithRetry(cfg.Tree.MaxTries, cfg.Tree.RetryStep),
		inspector.WithLoaderTracer(m.services.Tracer),
		inspector.WithLoaderMetrics(m.services.Metrics),
	)
	rt.treesListener = pubsub.NewContinuousListener[[]inspector.ModelTree](rt.ctx, rt.loader)
	rt.loader.Watch(rt.ctx)
	rt.bridge = inspector.NewBridge(reg, rt.loader,
		inspector.WithBridgeTracer(m.services.Tracer),
		inspector.WithBridgeMetrics(m.services.Metrics),
		inspector.WithItemTTL(cfg.Cache.ItemTTL),
	)
	rt.classify = inspector.NewClassifier(fragments)

	return m, tea.Batch(rt.treesListener.Listen(), m.initialLoadCmd())
}

func (m Model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, source.ErrNothingStored):
		m.settle("No model loaded. Press o to open one.")
		return m, nil
	case msg.err != nil:
		m.settle("Load failed")
		log.ErrorErr(log.CatEngine, "Loading model failed", msg.err)
		return m.toast(msg.err.Error(), toaster.StyleError)
	}
	m.settle(fmt.Sprintf("%s loaded from %s", msg.loaded.Model.ID(), msg.loaded.Origin))
	return m, nil
}

func (m Model) handleTrees(trees []inspector.ModelTree) (tea.Model, tea.Cmd) {
	prev := m.tree.Trees()
	m.tree.SetTrees(trees)
	m.rt.bridge.Forget(m.rt.ctx)

	cmds := []tea.Cmd{m.rt.treesListener.Listen()}
	if len(prev) > 0 {
		if d := treediff.Trees(prev, trees); d.Changed() {
			cmds = append(cmds, toaster.Show(fmt.Sprintf("Spatial tree updated: +%d -%d", d.Added, d.Removed), toaster.StyleInfo))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleWatcher(ev watcher.WatcherEvent) (tea.Model, tea.Cmd) {
	next := m.rt.watcherListener.Listen()
	switch ev.Type {
	case watcher.FileChanged:
		if !m.started {
			return m, next
		}
		log.Info(log.CatWatcher, "Reloading changed fragments file", "path", ev.Path)
		return m, tea.Batch(next, m.loadFileCmd(ev.Path, m.services.Open.ModelID))
	case watcher.WatcherError:
		log.Warn(log.CatWatcher, "Watcher error received", "error", ev.Error)
	}
	return m, next
}

// toolCount is the number of measurements or planes a tool holds.
func (m Model) toolCount(k registry.Key) int {
	reg := m.services.Manager.Registry()
	switch k {
	case registry.KeyAreaMeasurer, registry.KeyLengthMeasurer, registry.KeyVolumeMeasurer:
		if ms, ok := registry.Lookup[engine.Measurer](reg, k); ok {
			return len(ms.List())
		}
	case registry.KeyClipper:
		if c, ok := registry.Lookup[engine.Clipper](reg, k); ok {
			return len(c.List())
		}
	}
	return 0
}

// Close releases resources held by the application. Safe to call after the
// program has exited.
func (m *Model) Close() error {
	rt := m.rt
	rt.cancel()

	var err error
	if rt.watcher != nil {
		err = rt.watcher.Stop()
	}
	if rt.loader != nil {
		rt.loader.Close()
	}
	if rt.session != nil {
		rt.session.Shutdown()
	}
	rt.status.Close()
	return err
}
