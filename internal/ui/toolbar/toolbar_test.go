package toolbar

import (
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/registry"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	os.Exit(m.Run())
}

type fakeTool struct{ enabled bool }

func (f *fakeTool) Enabled() bool           { return f.enabled }
func (f *fakeTool) SetEnabled(enabled bool) { f.enabled = enabled }
func (f *fakeTool) Dispose()                {}

func setup(t *testing.T) (Model, map[registry.Key]*fakeTool) {
	t.Helper()
	reg := registry.New()
	t.Cleanup(reg.Close)
	tools := map[registry.Key]*fakeTool{}
	for _, k := range []registry.Key{
		registry.KeyAreaMeasurer, registry.KeyLengthMeasurer, registry.KeyVolumeMeasurer,
		registry.KeyHighlighter, registry.KeyClipper,
	} {
		tools[k] = &fakeTool{}
		require.NoError(t, reg.Register(k, tools[k]))
	}
	return New(reg), tools
}

func tool(k registry.Key) Tool {
	for _, t := range Tools() {
		if t.Key == k {
			return t
		}
	}
	panic("unknown tool " + k)
}

func TestToggle(t *testing.T) {
	m, tools := setup(t)

	enabled, ok := m.Toggle(tool(registry.KeyHighlighter))
	require.True(t, ok)
	require.True(t, enabled)
	require.True(t, tools[registry.KeyHighlighter].enabled)

	enabled, ok = m.Toggle(tool(registry.KeyHighlighter))
	require.True(t, ok)
	require.False(t, enabled)
}

func TestToggle_OneMeasurerAtATime(t *testing.T) {
	m, tools := setup(t)
	tools[registry.KeyHighlighter].enabled = true

	m.Toggle(tool(registry.KeyAreaMeasurer))
	require.True(t, tools[registry.KeyAreaMeasurer].enabled)

	m.Toggle(tool(registry.KeyLengthMeasurer))
	require.True(t, tools[registry.KeyLengthMeasurer].enabled)
	require.False(t, tools[registry.KeyAreaMeasurer].enabled)
	require.True(t, tools[registry.KeyHighlighter].enabled, "non-measurers are left alone")

	m.Toggle(tool(registry.KeyLengthMeasurer))
	for _, k := range []registry.Key{registry.KeyAreaMeasurer, registry.KeyLengthMeasurer, registry.KeyVolumeMeasurer} {
		require.False(t, tools[k].enabled)
	}
}

func TestToggle_Unregistered(t *testing.T) {
	m, _ := setup(t)

	_, ok := m.Toggle(tool(registry.KeyOrbitLock))
	require.False(t, ok)
	require.False(t, m.Enabled(registry.KeyOrbitLock))
}

func TestUpdate_KeyBindings(t *testing.T) {
	m, tools := setup(t)

	cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})
	require.NotNil(t, cmd)
	msg, ok := cmd().(ToggledMsg)
	require.True(t, ok)
	require.Equal(t, registry.KeyClipper, msg.Tool.Key)
	require.True(t, msg.Enabled)
	require.True(t, tools[registry.KeyClipper].enabled)

	require.Nil(t, m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("6")}), "orbit lock not registered")
	require.Nil(t, m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("z")}))
}

func TestView(t *testing.T) {
	m, tools := setup(t)
	tools[registry.KeyAreaMeasurer].enabled = true
	m = m.WithCounts(func(k registry.Key) int {
		if k == registry.KeyAreaMeasurer {
			return 3
		}
		return 0
	})

	view := m.View()
	for _, label := range []string{"1 Area 3", "2 Length", "3 Volume", "4 Highlight", "5 Clip", "6 Orbit lock"} {
		require.Contains(t, view, label)
	}
}

func TestNilRegistry(t *testing.T) {
	m := New(nil)
	require.False(t, m.Enabled(registry.KeyClipper))
	require.Contains(t, m.View(), "Clip")
}
