package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_NoDuplicateKeys(t *testing.T) {
	seen := map[string]string{}
	for _, group := range Tree.FullHelp() {
		for _, b := range group {
			for _, k := range b.Keys() {
				prev, dup := seen[k]
				require.False(t, dup, "key %q bound to both %q and %q", k, prev, b.Help().Desc)
				seen[k] = b.Help().Desc
			}
		}
	}
}

func TestDefaultKeyMap_AllBindingsHaveHelp(t *testing.T) {
	for _, group := range Tree.FullHelp() {
		for _, b := range group {
			require.NotEmpty(t, b.Keys())
			require.NotEmpty(t, b.Help().Key)
			require.NotEmpty(t, b.Help().Desc)
		}
	}
}

func TestToolbarKeys(t *testing.T) {
	tests := []struct {
		name     string
		binding  key.Binding
		expected []string
	}{
		{"area", Tree.Area, []string{"1"}},
		{"length", Tree.Length, []string{"2"}},
		{"volume", Tree.Volume, []string{"3"}},
		{"highlighter", Tree.Highlighter, []string{"4"}},
		{"clipper", Tree.Clipper, []string{"5"}},
		{"orbit lock", Tree.OrbitLock, []string{"6"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.binding.Keys())
		})
	}
}

func TestRemove_DeleteAndBackspace(t *testing.T) {
	require.Equal(t, []string{"delete", "backspace"}, Tree.Remove.Keys())
}

func TestShortHelp(t *testing.T) {
	short := Tree.ShortHelp()
	require.Len(t, short, 4)
	require.Equal(t, "/", short[0].Help().Key)
	require.Equal(t, "q", short[3].Help().Key)
}

func TestSearchKeyMap(t *testing.T) {
	require.Equal(t, []string{"enter"}, Search.Accept.Keys())
	require.Equal(t, []string{"esc"}, Search.Cancel.Keys())
	require.Contains(t, Search.Down.Keys(), "ctrl+n")
	require.Contains(t, Search.Up.Keys(), "ctrl+p")
}
