package help

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/keys"
)

func TestHelp_SetSize(t *testing.T) {
	m := New().SetSize(120, 40)
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)

	m2 := m.SetSize(80, 24)
	assert.Equal(t, 80, m2.width)
	assert.Equal(t, 120, m.width, "original model unchanged")
}

func TestSections_FollowFullHelp(t *testing.T) {
	km := keys.DefaultKeyMap()
	sections := Sections(km)

	require.Len(t, sections, len(km.FullHelp()))
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
		require.NotEmpty(t, s.Bindings)
	}
	require.Equal(t, []string{"Navigation", "Tree", "Categories", "Toolbar", "Viewport", "General"}, titles)
}

func TestHelp_View_ContainsSectionsAndBindings(t *testing.T) {
	view := New().SetMarkdownStyle("notty").SetSize(100, 50).View()

	for _, s := range Sections(keys.DefaultKeyMap()) {
		assert.Contains(t, view, s.Title)
	}
	assert.Contains(t, view, "Keybindings")
	assert.Contains(t, view, "highlight row")
	assert.Contains(t, view, "orbit lock")
	assert.Contains(t, view, "ctrl+x")
	assert.Contains(t, view, "Press ? or Esc to close")
}

func TestHelp_View_RendersSearchNotes(t *testing.T) {
	view := New().SetMarkdownStyle("notty").SetSize(100, 50).View()

	assert.Contains(t, view, "subtree")
	assert.Contains(t, view, "**Search** matches the category")
}

func TestHelp_View_UnknownStyleSkipsNotes(t *testing.T) {
	view := New().SetMarkdownStyle("no-such-style").SetSize(100, 50).View()

	assert.Contains(t, view, "Keybindings")
	assert.NotContains(t, view, "subtree")
}

func TestHelp_Overlay_KeepsBackgroundSize(t *testing.T) {
	bg := strings.TrimSuffix(strings.Repeat(strings.Repeat(".", 100)+"\n", 50), "\n")
	out := New().SetMarkdownStyle("notty").SetSize(100, 50).Overlay(bg)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 50)
	assert.Equal(t, strings.Repeat(".", 100), lines[0])
	assert.Contains(t, out, "Keybindings")
}
