package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/reflow/truncate"

	"github.com/zjrosen/bimview/internal/spatialtree"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

const zoneRowPrefix = "tree-row:"

func rowZoneID(i int) string {
	return zoneRowPrefix + strconv.Itoa(i)
}

// View renders the search line followed by the visible rows.
func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.searchLine())

	if len(m.rows) == 0 {
		sb.WriteString("\n")
		switch {
		case len(m.trees) == 0:
			sb.WriteString(styles.MutedStyle.Render(" No models loaded"))
		default:
			sb.WriteString(styles.MutedStyle.Render(fmt.Sprintf(" No matches for %q", m.query)))
		}
		return sb.String()
	}

	end := min(m.scrollTop+m.viewportHeight(), len(m.rows))
	for i := m.scrollTop; i < end; i++ {
		sb.WriteString("\n")
		sb.WriteString(zone.Mark(rowZoneID(i), m.renderRow(i)))
	}
	return sb.String()
}

func (m *Model) searchLine() string {
	var left string
	switch {
	case m.searching:
		left = m.input.View()
	case m.query != "":
		left = styles.MatchStyle.Render("/ " + m.query)
	default:
		left = styles.MutedStyle.Render("/ to search")
	}
	if len(m.rows) == 0 {
		return left
	}
	pos := styles.MutedStyle.Render(fmt.Sprintf("%d/%d", m.cursor+1, len(m.rows)))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(pos)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + pos
}

func (m *Model) renderRow(i int) string {
	r := m.rows[i]
	selected := i == m.cursor

	var sb strings.Builder
	if selected {
		sb.WriteString(styles.SelectionIndicatorStyle.Render(">"))
	} else {
		sb.WriteString(" ")
	}
	sb.WriteString(styles.MutedStyle.Render(buildPrefix(r)))

	switch {
	case len(r.node.Children) == 0:
		sb.WriteString("  ")
	case m.expanded(r.node, r.depth):
		sb.WriteString("▾ ")
	default:
		sb.WriteString("▸ ")
	}

	right := m.rightMeta(r)
	avail := m.width - lipgloss.Width(sb.String()) - lipgloss.Width(right)
	if right != "" {
		avail--
	}
	label := r.node.DisplayName()
	if avail <= 0 {
		label = ""
	} else if lipgloss.Width(label) > avail {
		label = truncate.StringWithTail(label, uint(avail), "…") //nolint:gosec // avail > 0
	}
	sb.WriteString(m.labelStyle(r).Render(label))

	if right != "" {
		pad := max(m.width-lipgloss.Width(sb.String())-lipgloss.Width(right), 1)
		sb.WriteString(strings.Repeat(" ", pad))
		sb.WriteString(right)
	}
	return sb.String()
}

func (m *Model) labelStyle(r row) lipgloss.Style {
	switch {
	case m.isHighlighted(r):
		return styles.HighlightedStyle
	case m.query != "" && spatialtree.MatchesSelf(r.node.Original, m.query) == spatialtree.MatchFound:
		return styles.MatchStyle
	case r.node.Category != "":
		return styles.CategoryStyle
	default:
		return styles.ElementStyle
	}
}

func (m *Model) isHighlighted(r row) bool {
	if m.active != nil && r.node.Original == m.active {
		return true
	}
	if r.node.LocalID == nil {
		return false
	}
	return m.highlighted[r.modelID].Has(*r.node.LocalID)
}

// rightMeta is the model id on top-level rows when several models are
// loaded, the local id of categorised elements and the element count of
// groups.
func (m *Model) rightMeta(r row) string {
	var parts []string
	if r.depth == 0 && len(m.roots) > 1 {
		parts = append(parts, r.modelID)
	}
	if r.node.Category != "" && r.node.LocalID != nil {
		parts = append(parts, "#"+strconv.Itoa(*r.node.LocalID))
	}
	if m.showCounts && len(r.node.Children) > 0 {
		parts = append(parts, "("+strconv.Itoa(m.count(r.node.Original))+")")
	}
	if len(parts) == 0 {
		return ""
	}
	return styles.SecondaryStyle.Render(strings.Join(parts, " "))
}

// count returns the number of element ids under n, memoised per tree set.
func (m *Model) count(n *spatialtree.Node) int {
	if c, ok := m.counts[n]; ok {
		return c
	}
	ids := spatialtree.IDSet{}
	spatialtree.CollectLocalIDs(n, ids)
	if n.LocalID != nil {
		delete(ids, *n.LocalID)
	}
	m.counts[n] = len(ids)
	return len(ids)
}

func buildPrefix(r row) string {
	if r.depth == 0 {
		return ""
	}
	var sb strings.Builder
	for d := 1; d < r.depth; d++ {
		if r.lastAt[d] {
			sb.WriteString("   ")
		} else {
			sb.WriteString("│  ")
		}
	}
	if r.lastAt[r.depth] {
		sb.WriteString("└─")
	} else {
		sb.WriteString("├─")
	}
	return sb.String()
}
