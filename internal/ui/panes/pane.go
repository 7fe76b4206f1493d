// Package panes draws the titled, rounded panels the main view is built from.
package panes

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/zjrosen/bimview/internal/ui/styles"
)

const (
	borderTopLeft     = "╭"
	borderTopRight    = "╮"
	borderBottomLeft  = "╰"
	borderBottomRight = "╯"
	borderHorizontal  = "─"
	borderVertical    = "│"
)

// Config describes one panel. Width and Height include the border.
type Config struct {
	Content string
	Width   int
	Height  int

	Title      string // top border, left
	Meta       string // top border, right
	Footer     string // bottom border, left
	Focused    bool
	TitleColor lipgloss.TerminalColor
}

// Render draws content inside a rounded border with the titles embedded in
// the border lines. Content is clipped to the inner area.
func Render(cfg Config) string {
	color := styles.BorderDefaultColor
	if cfg.Focused {
		color = styles.BorderFocusedColor
	}
	titleColor := cfg.TitleColor
	if titleColor == nil {
		titleColor = color
	}
	border := lipgloss.NewStyle().Foreground(color)
	title := lipgloss.NewStyle().Foreground(titleColor).Bold(cfg.Focused)

	inner := max(cfg.Width-2, 1)
	height := max(cfg.Height-2, 1)

	lines := strings.Split(cfg.Content, "\n")
	var sb strings.Builder
	sb.WriteString(borderLine(borderTopLeft, borderTopRight, cfg.Title, cfg.Meta, inner, border, title))
	for i := range height {
		var line string
		if i < len(lines) {
			line = lines[i]
		}
		if w := lipgloss.Width(line); w > inner {
			line = truncate.String(line, uint(inner)) //nolint:gosec // inner >= 1
		}
		if w := lipgloss.Width(line); w < inner {
			line += strings.Repeat(" ", inner-w)
		}
		sb.WriteString("\n")
		sb.WriteString(border.Render(borderVertical))
		sb.WriteString(line)
		sb.WriteString(border.Render(borderVertical))
	}
	sb.WriteString("\n")
	sb.WriteString(borderLine(borderBottomLeft, borderBottomRight, cfg.Footer, "", inner, border, title))
	return sb.String()
}

// borderLine builds ╭─ left ──── right ─╮. The right title is dropped first
// when space runs out, then the left one is truncated.
func borderLine(open, closing, left, right string, inner int, border, title lipgloss.Style) string {
	lw, rw := lipgloss.Width(left), lipgloss.Width(right)
	if right != "" && lw+rw+6 > inner {
		right, rw = "", 0
	}
	if left != "" && lw+4 > inner {
		if inner < 5 {
			left, lw = "", 0
		} else {
			left = truncate.StringWithTail(left, uint(inner-4), "…") //nolint:gosec // inner >= 5
			lw = lipgloss.Width(left)
		}
	}

	used := 0
	var sb strings.Builder
	sb.WriteString(border.Render(open))
	if left != "" {
		sb.WriteString(border.Render(borderHorizontal + " "))
		sb.WriteString(title.Render(left))
		sb.WriteString(border.Render(" "))
		used += lw + 3
	}
	tail := 0
	if right != "" {
		tail = rw + 3
	}
	sb.WriteString(border.Render(strings.Repeat(borderHorizontal, max(inner-used-tail, 0))))
	if right != "" {
		sb.WriteString(border.Render(" "))
		sb.WriteString(title.Render(right))
		sb.WriteString(border.Render(" " + borderHorizontal))
	}
	sb.WriteString(border.Render(closing))
	return sb.String()
}
