package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/bimview/internal/ui/panes"
	"github.com/zjrosen/bimview/internal/ui/styles"
)

// layout splits the screen: the toolbar on the first line, the status bar
// on the last, and the tree and property panes side by side in between.
func (m Model) layout() (treeW, itemsW, bodyH int) {
	bodyH = max(m.height-2, 3)
	treeW = m.width * 3 / 5
	itemsW = m.width - treeW
	return treeW, itemsW, bodyH
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	treeW, itemsW, bodyH := m.layout()

	treePane := panes.Render(panes.Config{
		Content: m.tree.View(),
		Width:   treeW,
		Height:  bodyH,
		Title:   "Spatial tree",
		Meta:    modelCount(len(m.tree.Trees())),
		Focused: m.focus == focusTree,
	})
	itemsPane := panes.Render(panes.Config{
		Content: m.items.View(),
		Width:   itemsW,
		Height:  bodyH,
		Title:   "Properties",
		Focused: m.focus == focusItems,
	})

	view := lipgloss.JoinVertical(lipgloss.Left,
		m.toolbar.View(),
		lipgloss.JoinHorizontal(lipgloss.Top,
			zone.Mark(zoneTreePane, treePane),
			zone.Mark(zoneItemsPane, itemsPane),
		),
		m.statusBar(),
	)

	if m.showHelp {
		view = m.help.Overlay(view)
	}
	if m.showPrompt {
		view = m.prompt.Overlay(view)
	}
	view = m.toaster.Overlay(view, m.width, m.height)
	if m.services.Debug && m.logOverlay.Visible() {
		view = m.logOverlay.Overlay(view)
	}
	return zone.Scan(view)
}

func modelCount(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "1 model"
	default:
		return fmt.Sprintf("%d models", n)
	}
}

func (m Model) statusBar() string {
	left := m.status.Message
	if m.status.Loading {
		left = m.spinner.View() + " " + left
	}
	right := "? help  o open  q quit"
	inner := m.width - styles.StatusBarStyle.GetHorizontalPadding()
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return styles.StatusBarStyle.MaxWidth(m.width).Render(left)
	}
	return styles.StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}
