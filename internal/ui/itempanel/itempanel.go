// Package itempanel shows the properties of the highlighted elements.
package itempanel

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/keys"
	"github.com/zjrosen/bimview/internal/log"
)

// Clipboard receives the exported properties.
type Clipboard interface {
	Copy(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

// Copy implements Clipboard.
func (SystemClipboard) Copy(text string) error { return clipboard.WriteAll(text) }

// CopiedMsg reports the outcome of a copy.
type CopiedMsg struct {
	Rows int
	Err  error
}

// Property is one row of the panel.
type Property struct {
	LocalID int
	Key     string
	Value   string
}

// Properties flattens items into rows ordered by local id: type and name
// first, then the attributes by key. A non-empty filter keeps rows whose
// key or value contains it, case-insensitively.
func Properties(items []engine.ItemData, filter string) []Property {
	sorted := slices.SortedFunc(slices.Values(items), func(a, b engine.ItemData) int {
		return cmp.Compare(a.LocalID, b.LocalID)
	})
	q := strings.ToLower(filter)
	keep := func(k, v string) bool {
		return q == "" || strings.Contains(strings.ToLower(k), q) || strings.Contains(strings.ToLower(v), q)
	}

	var out []Property
	for _, it := range sorted {
		if keep("type", it.Type) {
			out = append(out, Property{LocalID: it.LocalID, Key: "type", Value: it.Type})
		}
		if it.Name != "" && keep("name", it.Name) {
			out = append(out, Property{LocalID: it.LocalID, Key: "name", Value: it.Name})
		}
		for _, k := range slices.Sorted(maps.Keys(it.Attributes)) {
			if v := it.Attributes[k]; keep(k, v) {
				out = append(out, Property{LocalID: it.LocalID, Key: k, Value: v})
			}
		}
	}
	return out
}

// WriteTSV writes props as tab separated values with a header row.
func WriteTSV(w io.Writer, props []Property) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"id", "key", "value"}); err != nil {
		return err
	}
	for _, p := range props {
		if err := cw.Write([]string{strconv.Itoa(p.LocalID), p.Key, p.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Model is the item properties panel.
type Model struct {
	items     []engine.ItemData
	props     []Property
	input     textinput.Model
	filtering bool
	clipboard Clipboard
	viewport  viewport.Model
	width     int
	height    int
	focused   bool
}

// New creates an empty panel writing copies to clip.
func New(clip Clipboard) *Model {
	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.CharLimit = 64
	if clip == nil {
		clip = SystemClipboard{}
	}
	return &Model{
		input:     ti,
		clipboard: clip,
		viewport:  viewport.New(0, 0),
	}
}

// SetSize sets the inner panel size. The first line holds the filter.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = max(width, 0)
	m.viewport.Height = max(height-1, 0)
	m.refresh()
}

// SetFocused routes keys to the panel.
func (m *Model) SetFocused(focused bool) {
	m.focused = focused
	if !focused && m.filtering {
		m.filtering = false
		m.input.Blur()
	}
}

// Focused reports whether keys are routed to the panel.
func (m *Model) Focused() bool { return m.focused }

// Filtering reports whether the filter input has the keyboard.
func (m *Model) Filtering() bool { return m.filtering }

// SetItems replaces the shown items and scrolls back to the top.
func (m *Model) SetItems(items []engine.ItemData) {
	m.items = items
	m.refresh()
	m.viewport.GotoTop()
}

// Items returns the shown items.
func (m *Model) Items() []engine.ItemData { return m.items }

// Filter returns the property filter.
func (m *Model) Filter() string { return m.input.Value() }

// SetFilter sets the property filter.
func (m *Model) SetFilter(q string) {
	m.input.SetValue(q)
	m.refresh()
}

// Properties returns the rows currently shown.
func (m *Model) Properties() []Property { return m.props }

func (m *Model) refresh() {
	m.props = Properties(m.items, m.input.Value())
	m.viewport.SetContent(m.renderContent())
}

// Update handles keys while focused and mouse wheel scrolling.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	if m.filtering {
		return m.updateFilter(msg)
	}
	switch msg := msg.(type) {
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	case tea.KeyMsg:
		if !m.focused {
			return nil
		}
		switch {
		case key.Matches(msg, keys.Tree.Search):
			m.filtering = true
			return m.input.Focus()
		case key.Matches(msg, keys.Tree.Copy):
			return m.copyCmd()
		case key.Matches(msg, keys.Tree.Down):
			m.viewport.ScrollDown(1)
		case key.Matches(msg, keys.Tree.Up):
			m.viewport.ScrollUp(1)
		case key.Matches(msg, keys.Tree.Top):
			m.viewport.GotoTop()
		case key.Matches(msg, keys.Tree.Bottom):
			m.viewport.GotoBottom()
		}
	}
	return nil
}

func (m *Model) updateFilter(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Search.Accept):
			m.filtering = false
			m.input.Blur()
			return nil
		case key.Matches(msg, keys.Search.Cancel):
			m.filtering = false
			m.input.Blur()
			m.SetFilter("")
			return nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.refresh()
	m.viewport.GotoTop()
	return cmd
}

// copyCmd copies the shown rows off the UI goroutine.
func (m *Model) copyCmd() tea.Cmd {
	props := m.props
	clip := m.clipboard
	return func() tea.Msg {
		if len(props) == 0 {
			return CopiedMsg{}
		}
		var sb strings.Builder
		if err := WriteTSV(&sb, props); err != nil {
			return CopiedMsg{Err: fmt.Errorf("encoding properties: %w", err)}
		}
		if err := clip.Copy(sb.String()); err != nil {
			log.ErrorErr(log.CatUI, "Copy to clipboard failed", err)
			return CopiedMsg{Err: fmt.Errorf("copying to clipboard: %w", err)}
		}
		log.Debug(log.CatUI, "Copied item properties", "rows", len(props))
		return CopiedMsg{Rows: len(props)}
	}
}
