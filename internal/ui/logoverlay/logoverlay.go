// Package logoverlay provides an in-app log viewer overlay that shows
// recent log entries without leaving the TUI.
package logoverlay

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/ui/overlay"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

const (
	viewportMaxHeight = 25
	viewportMinHeight = 5
	boxMaxWidth       = 160
	boxMinWidth       = 40

	// MaxEntries bounds the entries kept in memory.
	MaxEntries = 1000
)

// CloseMsg is sent when the overlay should be closed.
type CloseMsg struct{}

// Entry is one parsed log line.
type Entry struct {
	Raw      string
	Level    log.Level
	Category string
	known    bool
}

// ParseEntry reads the level and category of a formatted log line
// ("time [LEVEL] [category] message k=v").
func ParseEntry(raw string) Entry {
	raw = strings.TrimSuffix(raw, "\n")
	e := Entry{Raw: raw}
	rest := raw
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		rest = rest[i+1:]
	}
	lvl, rest, ok := bracketed(rest)
	if !ok {
		return e
	}
	switch lvl {
	case "DEBUG":
		e.Level, e.known = log.LevelDebug, true
	case "INFO":
		e.Level, e.known = log.LevelInfo, true
	case "WARN":
		e.Level, e.known = log.LevelWarn, true
	case "ERROR":
		e.Level, e.known = log.LevelError, true
	}
	if cat, _, ok := bracketed(rest); ok {
		e.Category = cat
	}
	return e
}

func bracketed(s string) (inner, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", s, false
	}
	return s[1:end], strings.TrimPrefix(s[end+1:], " "), true
}

// Model is the log overlay component state.
type Model struct {
	visible  bool
	minLevel log.Level
	category string
	entries  []Entry
	width    int
	height   int
	viewport viewport.Model
}

// New creates a new log overlay model.
func New() Model {
	return Model{minLevel: log.LevelDebug}
}

// Append records a log line, dropping the oldest beyond MaxEntries.
func (m *Model) Append(raw string) {
	m.entries = append(m.entries, ParseEntry(raw))
	if over := len(m.entries) - MaxEntries; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
	if m.visible {
		atBottom := m.viewport.AtBottom()
		m.refreshViewport()
		if atBottom {
			m.viewport.GotoBottom()
		}
	}
}

// Len returns the number of stored entries.
func (m Model) Len() int {
	return len(m.entries)
}

// Update handles messages for the log overlay.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			m.entries = nil
			m.refreshViewport()
		case "d":
			m.setLevel(log.LevelDebug)
		case "i":
			m.setLevel(log.LevelInfo)
		case "w":
			m.setLevel(log.LevelWarn)
		case "e":
			m.setLevel(log.LevelError)
		case "t":
			m.category = m.nextCategory()
			m.refreshViewport()
		case "j", "down":
			m.viewport.ScrollDown(1)
		case "k", "up":
			m.viewport.ScrollUp(1)
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+x", "esc":
			m.visible = false
			return m, func() tea.Msg { return CloseMsg{} }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refreshViewport()
	}

	return m, nil
}

func (m *Model) setLevel(l log.Level) {
	m.minLevel = l
	m.refreshViewport()
}

// nextCategory cycles "" (all) through the categories seen so far.
func (m Model) nextCategory() string {
	seen := map[string]bool{}
	var cats []string
	for _, e := range m.entries {
		if e.Category != "" && !seen[e.Category] {
			seen[e.Category] = true
			cats = append(cats, e.Category)
		}
	}
	if len(cats) == 0 {
		return ""
	}
	if m.category == "" {
		return cats[0]
	}
	for i, c := range cats {
		if c == m.category && i+1 < len(cats) {
			return cats[i+1]
		}
	}
	return ""
}

// View renders the log overlay content.
func (m Model) View() string {
	if !m.visible {
		return ""
	}

	boxWidth := m.boxWidth()

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.OverlayTitleColor).
		PaddingLeft(1)
	dividerStyle := lipgloss.NewStyle().
		Foreground(styles.OverlayBorderColor)
	divider := dividerStyle.Render(strings.Repeat("─", boxWidth))

	title := "Logs"
	if m.category != "" {
		title += " · " + m.category
	}

	var result strings.Builder
	result.WriteString(titleStyle.Render(title))
	result.WriteString("\n")
	result.WriteString(divider)
	result.WriteString("\n")
	result.WriteString(m.viewport.View())
	result.WriteString("\n")
	result.WriteString(divider)
	result.WriteString("\n")
	result.WriteString(m.buildFilterHint())

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.OverlayBorderColor).
		Width(boxWidth)

	return boxStyle.Render(result.String())
}

// Filtered returns the entries passing the level and category filters.
func (m Model) Filtered() []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.known && e.Level < m.minLevel {
			continue
		}
		if m.category != "" && e.Category != m.category {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m Model) buildLogContent(contentWidth int) string {
	filtered := m.Filtered()
	if len(filtered) == 0 {
		return lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			Italic(true).
			Render("No logs to display")
	}

	lines := make([]string, 0, len(filtered))
	for _, e := range filtered {
		lines = append(lines, colorize(e, contentWidth))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) refreshViewport() {
	if m.width == 0 || m.height == 0 {
		return
	}

	contentWidth := m.contentWidth()

	// header, footer and borders take six lines
	viewportHeight := min(viewportMaxHeight, m.height-6)
	viewportHeight = max(viewportHeight, viewportMinHeight)

	m.viewport = viewport.New(contentWidth, viewportHeight)
	m.viewport.SetContent(m.buildLogContent(contentWidth))
}

// Overlay renders the log overlay centered on the given background.
func (m Model) Overlay(bg string) string {
	if !m.visible {
		return bg
	}
	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, m.View(), bg)
}

// Visible returns whether the overlay is currently visible.
func (m Model) Visible() bool {
	return m.visible
}

func (m Model) boxWidth() int {
	return max(min(m.width-4, boxMaxWidth), boxMinWidth)
}

func (m Model) contentWidth() int {
	return m.boxWidth() - 2
}

// Toggle toggles the overlay visibility.
func (m *Model) Toggle() {
	if m.visible {
		m.Hide()
		return
	}
	m.Show()
}

// Show makes the overlay visible, scrolled to the newest entry.
func (m *Model) Show() {
	m.visible = true
	m.refreshViewport()
	m.viewport.GotoBottom()
}

// Hide makes the overlay invisible.
func (m *Model) Hide() {
	m.visible = false
}

// SetSize updates the overlay's knowledge of screen size.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.refreshViewport()
}

func colorize(e Entry, maxWidth int) string {
	entry := e.Raw
	if ansi.StringWidth(entry) > maxWidth {
		entry = ansi.Truncate(entry, maxWidth-3, "...")
	}

	var style lipgloss.Style
	switch {
	case !e.known:
		style = lipgloss.NewStyle().Foreground(styles.TextPrimaryColor)
	case e.Level == log.LevelError:
		style = lipgloss.NewStyle().Foreground(styles.StatusErrorColor)
	case e.Level == log.LevelWarn:
		style = lipgloss.NewStyle().Foreground(styles.StatusWarningColor)
	case e.Level == log.LevelInfo:
		style = lipgloss.NewStyle().Foreground(styles.ToastBorderInfoColor)
	default:
		style = lipgloss.NewStyle().Foreground(styles.TextMutedColor)
	}
	return style.Render(entry)
}

// buildFilterHint shows the filter keys with the active level in bold.
func (m Model) buildFilterHint() string {
	hintStyle := lipgloss.NewStyle().Foreground(styles.TextMutedColor)
	activeStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimaryColor).
		Bold(true)

	hints := []string{hintStyle.Render("[c] Clear")}
	for _, h := range []struct {
		level log.Level
		label string
	}{
		{log.LevelDebug, "[d] Debug"},
		{log.LevelInfo, "[i] Info"},
		{log.LevelWarn, "[w] Warn"},
		{log.LevelError, "[e] Error"},
	} {
		if m.minLevel == h.level {
			hints = append(hints, activeStyle.Render(h.label))
		} else {
			hints = append(hints, hintStyle.Render(h.label))
		}
	}
	hints = append(hints, hintStyle.Render("[t] Category"))
	return strings.Join(hints, "  ")
}
