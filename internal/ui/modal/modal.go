// Package modal provides an input prompt drawn over the main view.
package modal

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/bimview/internal/ui/overlay"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

// InputConfig defines a single input field.
type InputConfig struct {
	Key         string // identifier in SubmitMsg.Values
	Label       string
	Placeholder string
	Value       string
	MaxLength   int // 0 = unlimited
}

// Config controls modal appearance and behavior.
type Config struct {
	Title    string
	Message  string
	Inputs   []InputConfig
	MinWidth int // 0 = 40
}

// SubmitMsg is sent when enter is pressed on the last input and every
// input has a value.
type SubmitMsg struct {
	Values map[string]string
}

// CancelMsg is sent on esc.
type CancelMsg struct{}

// Model is the modal component state.
type Model struct {
	config  Config
	inputs  []textinput.Model
	focused int
	width   int
	height  int
}

// New creates a modal with the first input focused.
func New(cfg Config) Model {
	m := Model{config: cfg}
	inner := m.contentWidth() - 2
	m.inputs = make([]textinput.Model, len(cfg.Inputs))
	for i, in := range cfg.Inputs {
		ti := textinput.New()
		ti.Placeholder = in.Placeholder
		ti.Prompt = ""
		ti.Width = inner
		if in.MaxLength > 0 {
			ti.CharLimit = in.MaxLength
		}
		if in.Value != "" {
			ti.SetValue(in.Value)
		}
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	if len(m.inputs) > 0 {
		return textinput.Blink
	}
	return nil
}

// Update handles messages for the modal.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return CancelMsg{} }
		case "tab", "down":
			return m.focus(m.focused + 1), nil
		case "shift+tab", "up":
			return m.focus(m.focused - 1), nil
		case "enter":
			if m.focused < len(m.inputs)-1 {
				return m.focus(m.focused + 1), nil
			}
			values := make(map[string]string, len(m.inputs))
			for i, in := range m.inputs {
				v := strings.TrimSpace(in.Value())
				if v == "" {
					return m.focus(i), nil
				}
				values[m.config.Inputs[i].Key] = v
			}
			return m, func() tea.Msg { return SubmitMsg{Values: values} }
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

// focus moves focus to input i, wrapping around.
func (m Model) focus(i int) Model {
	n := len(m.inputs)
	if n == 0 {
		return m
	}
	i = ((i % n) + n) % n
	m.inputs[m.focused].Blur()
	m.focused = i
	m.inputs[i].Focus()
	return m
}

func (m Model) contentWidth() int {
	w := max(m.config.MinWidth, 40)
	return max(w, lipgloss.Width(m.config.Title))
}

// View renders the modal box without the background.
func (m Model) View() string {
	width := m.contentWidth()

	title := lipgloss.NewStyle().Bold(true).Foreground(styles.OverlayTitleColor).PaddingLeft(1).
		Render(m.config.Title)
	divider := lipgloss.NewStyle().Foreground(styles.OverlayBorderColor).
		Render(strings.Repeat("─", width+2))

	var content strings.Builder
	if m.config.Message != "" {
		content.WriteString(lipgloss.NewStyle().Foreground(styles.TextPrimaryColor).Width(width).
			Render(m.config.Message))
		content.WriteString("\n\n")
	}
	for i, in := range m.config.Inputs {
		content.WriteString(m.renderInput(i, in.Label, width))
		content.WriteString("\n")
	}
	content.WriteString(styles.MutedStyle.Render("enter submit  esc cancel"))

	body := title + "\n" + divider + "\n" + lipgloss.NewStyle().Padding(1, 1).Render(content.String())
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.OverlayBorderColor).
		Width(width + 2).
		Render(body)
}

func (m Model) renderInput(i int, label string, width int) string {
	if label == "" {
		label = "Input"
	}
	color := styles.BorderDefaultColor
	labelStyle := styles.MutedStyle
	if i == m.focused {
		color = styles.BorderFocusedColor
		labelStyle = lipgloss.NewStyle().Foreground(styles.BorderFocusedColor)
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Width(width - 2).
		Render(m.inputs[i].View())
	return labelStyle.Render(label) + "\n" + box
}

// Overlay renders the modal centered on bg.
func (m Model) Overlay(bg string) string {
	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, m.View(), bg)
}

// SetSize records the screen size used for centering.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Focused returns the focused input index.
func (m Model) Focused() int {
	return m.focused
}

// Value returns the current value of the input with the given key.
func (m Model) Value(key string) string {
	for i, in := range m.config.Inputs {
		if in.Key == key {
			return m.inputs[i].Value()
		}
	}
	return ""
}
