// Package help contains the help overlay component.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/bimview/internal/keys"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/ui/markdown"
	"github.com/zjrosen/bimview/internal/ui/overlay"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

// searchNotes explains tree search, rendered below the keybindings.
const searchNotes = `**Search** matches the category or the local id of an element,
ignoring case. A matching group keeps its whole subtree; otherwise only
the branches that lead to a match are shown.

**Select** highlights every element under the row. A category row only
highlights elements of that type when the model knows their types.`

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			PaddingLeft(2)

	dividerStyle = lipgloss.NewStyle().
			Foreground(styles.OverlayBorderColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			MarginTop(1)

	keyStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondaryColor).
			Width(10)

	descStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimaryColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(styles.OverlayBorderColor)

	contentStyle = lipgloss.NewStyle().
			Padding(0, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			MarginTop(1)
)

// Section is one titled column of bindings.
type Section struct {
	Title    string
	Bindings []key.Binding
}

// Sections groups the keymap for display, in the order of FullHelp.
func Sections(k keys.KeyMap) []Section {
	titles := []string{"Navigation", "Tree", "Categories", "Toolbar", "Viewport", "General"}
	groups := k.FullHelp()
	out := make([]Section, 0, len(groups))
	for i, g := range groups {
		out = append(out, Section{Title: titles[i], Bindings: g})
	}
	return out
}

// Model holds the help view state.
type Model struct {
	keys          keys.KeyMap
	width         int
	height        int
	markdownStyle string
}

// New creates a help view over the default keymap.
func New() Model {
	return Model{keys: keys.DefaultKeyMap(), markdownStyle: "dark"}
}

// SetSize updates dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

// SetMarkdownStyle sets the glamour style of the notes section.
func (m Model) SetMarkdownStyle(style string) Model {
	m.markdownStyle = style
	return m
}

// View renders the help overlay (standalone, no background).
func (m Model) View() string {
	return m.Overlay("")
}

// Overlay renders the help box on top of a background view.
func (m Model) Overlay(background string) string {
	helpBox := m.renderContent()

	if background == "" {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			helpBox,
		)
	}

	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, helpBox, background)
}

func (m Model) renderContent() string {
	columnStyle := lipgloss.NewStyle().MarginRight(4)

	// Three sections per row.
	var rows []string
	sections := Sections(m.keys)
	for start := 0; start < len(sections); start += 3 {
		end := min(start+3, len(sections))
		cols := make([]string, 0, end-start)
		for i, s := range sections[start:end] {
			col := renderSection(s)
			if start+i < end-1 {
				col = columnStyle.Render(col)
			}
			cols = append(cols, col)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	}
	columns := lipgloss.JoinVertical(lipgloss.Left, rows...)

	columnsWidth := lipgloss.Width(columns)
	boxWidth := columnsWidth + 4

	body := columns
	if notes := m.renderNotes(columnsWidth); notes != "" {
		body += "\n\n" + notes
	}
	body = contentStyle.Render(body + "\n" + footerStyle.Render("Press ? or Esc to close"))

	divider := dividerStyle.Render(strings.Repeat("─", boxWidth))

	var content strings.Builder
	content.WriteString(titleStyle.Render("Keybindings"))
	content.WriteString("\n")
	content.WriteString(divider)
	content.WriteString("\n")
	content.WriteString(body)

	return boxStyle.Width(boxWidth).Render(content.String())
}

func (m Model) renderNotes(width int) string {
	r, err := markdown.New(width, m.markdownStyle)
	if err != nil {
		log.ErrorErr(log.CatUI, "Help notes renderer failed", err, "style", m.markdownStyle)
		return ""
	}
	out, err := r.Render(searchNotes)
	if err != nil {
		log.ErrorErr(log.CatUI, "Rendering help notes failed", err)
		return ""
	}
	return strings.Trim(out, "\n")
}

func renderSection(s Section) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(s.Title))
	b.WriteString("\n")
	for _, binding := range s.Bindings {
		b.WriteString(renderBinding(binding))
	}
	return b.String()
}

func renderBinding(b key.Binding) string {
	help := b.Help()
	return keyStyle.Render(help.Key) + descStyle.Render(help.Desc) + "\n"
}
