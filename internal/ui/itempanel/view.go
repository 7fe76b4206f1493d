package itempanel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/zjrosen/bimview/internal/ui/styles"
)

const (
	indent      = 2
	keyGap      = 2
	maxKeyWidth = 24
)

// View renders the filter line and the scrolled property list.
func (m *Model) View() string {
	var top string
	switch {
	case m.filtering:
		top = m.input.View()
	case m.input.Value() != "":
		top = styles.MatchStyle.Render("filter: " + m.input.Value())
	default:
		top = styles.MutedStyle.Render("/ filter  y copy")
	}
	if len(m.items) > 0 {
		count := styles.MutedStyle.Render(fmt.Sprintf("%d items", len(m.items)))
		if gap := m.width - lipgloss.Width(top) - lipgloss.Width(count); gap > 0 {
			top += strings.Repeat(" ", gap) + count
		}
	}
	return top + "\n" + m.viewport.View()
}

func (m *Model) renderContent() string {
	if len(m.items) == 0 {
		return styles.MutedStyle.Render(" Nothing highlighted")
	}
	if len(m.props) == 0 {
		return styles.MutedStyle.Render(fmt.Sprintf(" No properties match %q", m.input.Value()))
	}

	kw := m.keyWidth()
	valueWidth := max(m.width-indent-kw-keyGap, 8)
	continuation := strings.Repeat(" ", indent+kw+keyGap)

	var lines []string
	last := -1
	for _, p := range m.props {
		if p.LocalID != last {
			last = p.LocalID
			lines = append(lines, m.itemHeader(p.LocalID))
		}
		k := runewidth.FillRight(runewidth.Truncate(p.Key, kw, "…"), kw)
		for i, part := range wrap(p.Value, valueWidth) {
			if i == 0 {
				lines = append(lines, strings.Repeat(" ", indent)+styles.SecondaryStyle.Render(k)+strings.Repeat(" ", keyGap)+part)
				continue
			}
			lines = append(lines, continuation+part)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) itemHeader(localID int) string {
	for _, it := range m.items {
		if it.LocalID != localID {
			continue
		}
		head := styles.CategoryStyle.Render(it.Type)
		if it.Name != "" {
			head += " " + styles.ElementStyle.Render(it.Name)
		}
		return head + " " + styles.SecondaryStyle.Render("#"+strconv.Itoa(localID))
	}
	return "#" + strconv.Itoa(localID)
}

// keyWidth is the widest shown key, capped at maxKeyWidth and a third of
// the panel.
func (m *Model) keyWidth() int {
	w := 0
	for _, p := range m.props {
		w = max(w, runewidth.StringWidth(p.Key))
	}
	limit := maxKeyWidth
	if m.width > 0 {
		limit = min(limit, max(m.width/3, 4))
	}
	return min(w, limit)
}

// wrap splits s into lines of at most width display columns, breaking
// between grapheme clusters and at newlines.
func wrap(s string, width int) []string {
	if s == "" {
		return []string{""}
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		var cur strings.Builder
		curWidth := 0
		state := -1
		rest := para
		for len(rest) > 0 {
			var cluster string
			cluster, rest, _, state = uniseg.StepString(rest, state)
			cw := runewidth.StringWidth(cluster)
			if curWidth+cw > width && curWidth > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
				curWidth = 0
			}
			cur.WriteString(cluster)
			curWidth += cw
		}
		lines = append(lines, cur.String())
	}
	return lines
}
