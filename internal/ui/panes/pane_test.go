package panes

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestRender_Dimensions(t *testing.T) {
	out := Render(Config{Content: "one\ntwo", Width: 20, Height: 5, Title: "Tree"})
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 5)
	for i, l := range lines {
		require.Equal(t, 20, lipgloss.Width(l), "line %d", i)
	}
	require.Contains(t, lines[0], "╭─ Tree ")
	require.Contains(t, lines[1], "one")
	require.Contains(t, lines[2], "two")
	require.True(t, strings.HasPrefix(lines[4], "╰"))
}

func TestRender_ClipsContent(t *testing.T) {
	out := Render(Config{Content: strings.Repeat("x", 50) + "\na\nb\nc\nd", Width: 10, Height: 4})
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 4)
	require.Equal(t, 10, lipgloss.Width(lines[1]))
	require.NotContains(t, out, "b")
}

func TestRender_MetaAndFooter(t *testing.T) {
	out := Render(Config{Width: 40, Height: 3, Title: "Items", Meta: "3 selected", Footer: "tsv"})
	lines := strings.Split(out, "\n")

	require.Contains(t, lines[0], "Items")
	require.Contains(t, lines[0], "3 selected ─╮")
	require.Contains(t, lines[2], "╰─ tsv ")
	require.Equal(t, 40, lipgloss.Width(lines[0]))
}

func TestRender_NarrowDropsMeta(t *testing.T) {
	out := Render(Config{Width: 14, Height: 3, Title: "Spatial tree", Meta: "house"})
	top := strings.Split(out, "\n")[0]

	require.NotContains(t, top, "house")
	require.Contains(t, top, "…")
	require.Equal(t, 14, lipgloss.Width(top))
}
