// Package toolbar renders the viewer tool buttons and toggles the tools
// they stand for.
package toolbar

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/bimview/internal/keys"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

// Toggler is the part of a tool the toolbar drives.
type Toggler interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

// Tool describes one button.
type Tool struct {
	Key      registry.Key
	Label    string
	Binding  key.Binding
	Measurer bool // at most one measurer is enabled at a time
}

// Tools lists the buttons in display order.
func Tools() []Tool {
	return []Tool{
		{Key: registry.KeyAreaMeasurer, Label: "Area", Binding: keys.Tree.Area, Measurer: true},
		{Key: registry.KeyLengthMeasurer, Label: "Length", Binding: keys.Tree.Length, Measurer: true},
		{Key: registry.KeyVolumeMeasurer, Label: "Volume", Binding: keys.Tree.Volume, Measurer: true},
		{Key: registry.KeyHighlighter, Label: "Highlight", Binding: keys.Tree.Highlighter},
		{Key: registry.KeyClipper, Label: "Clip", Binding: keys.Tree.Clipper},
		{Key: registry.KeyOrbitLock, Label: "Orbit lock", Binding: keys.Tree.OrbitLock},
	}
}

// ToggledMsg reports a tool state change.
type ToggledMsg struct {
	Tool    Tool
	Enabled bool
}

// Model holds the toolbar state. Tool state lives in the registry.
type Model struct {
	registry *registry.Registry
	tools    []Tool
	counts   func(registry.Key) int
}

// New returns a toolbar over reg.
func New(reg *registry.Registry) Model {
	return Model{registry: reg, tools: Tools()}
}

// WithCounts sets the function giving the item count shown next to a
// tool, e.g. the number of measurements. Zero hides it.
func (m Model) WithCounts(fn func(registry.Key) int) Model {
	m.counts = fn
	return m
}

func (m Model) lookup(k registry.Key) (Toggler, bool) {
	if m.registry == nil {
		return nil, false
	}
	return registry.Lookup[Toggler](m.registry, k)
}

// Enabled reports whether the tool under k is registered and enabled.
func (m Model) Enabled(k registry.Key) bool {
	t, ok := m.lookup(k)
	return ok && t.Enabled()
}

// Toggle flips the tool. Enabling a measurer disables the other
// measurers. ok is false when the tool is not registered.
func (m Model) Toggle(tool Tool) (enabled, ok bool) {
	t, ok := m.lookup(tool.Key)
	if !ok {
		return false, false
	}
	enabled = !t.Enabled()
	if enabled && tool.Measurer {
		for _, other := range m.tools {
			if other.Measurer && other.Key != tool.Key {
				if o, ok := m.lookup(other.Key); ok && o.Enabled() {
					o.SetEnabled(false)
				}
			}
		}
	}
	t.SetEnabled(enabled)
	log.Debug(log.CatUI, "Tool toggled", "tool", tool.Key, "enabled", enabled)
	return enabled, true
}

// Update toggles tools on their key or on a click on their button.
func (m Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		for _, tool := range m.tools {
			if key.Matches(msg, tool.Binding) {
				return m.toggleCmd(tool)
			}
		}
	case tea.MouseMsg:
		if msg.Button != tea.MouseButtonLeft || msg.Action != tea.MouseActionRelease {
			return nil
		}
		for _, tool := range m.tools {
			if z := zone.Get(zoneID(tool.Key)); z != nil && z.InBounds(msg) {
				return m.toggleCmd(tool)
			}
		}
	}
	return nil
}

func (m Model) toggleCmd(tool Tool) tea.Cmd {
	enabled, ok := m.Toggle(tool)
	if !ok {
		return nil
	}
	return func() tea.Msg { return ToggledMsg{Tool: tool, Enabled: enabled} }
}

func zoneID(k registry.Key) string {
	return "toolbar:" + string(k)
}

// View renders the buttons on one line.
func (m Model) View() string {
	buttons := make([]string, 0, len(m.tools))
	for _, tool := range m.tools {
		label := tool.Binding.Help().Key + " " + tool.Label
		if m.counts != nil {
			if n := m.counts(tool.Key); n > 0 {
				label += " " + strconv.Itoa(n)
			}
		}
		t, ok := m.lookup(tool.Key)
		var button string
		switch {
		case !ok:
			button = styles.ToolUnavailableStyle.Render(label)
		case t.Enabled():
			button = styles.ToolActiveStyle.Render(label)
		default:
			button = styles.ToolInactiveStyle.Render(label)
		}
		buttons = append(buttons, zone.Mark(zoneID(tool.Key), button))
	}
	return strings.Join(buttons, " ")
}
