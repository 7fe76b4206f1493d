package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"false", false},
		{"3", 3},
		{"0.5", 0.5},
		{"1s", "1s"},
		{"http://converter:9000", "http://converter:9000"},
		{"[unterminated", "[unterminated"},
		{"a: b", "a: b"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestConfigSet_ThenShow(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "set", "api.base_url", "http://converter:9000")
	require.NoError(t, err)
	require.Contains(t, out, "api.base_url = http://converter:9000")

	_, err = env.run(t, "config", "set", "ui.show_counts", "false")
	require.NoError(t, err)

	out, err = env.run(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "base_url: http://converter:9000")
	require.Contains(t, out, "show_counts: false")
	require.False(t, cfg.UI.ShowCounts)
}

func TestConfigSet_InvalidValueIsReported(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "config", "set", "tree.max_tries", "0")
	require.ErrorContains(t, err, "now invalid")
}

func TestConfigSet_NotASection(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "config", "set", "api.base_url.host", "x")
	require.ErrorContains(t, err, "not a section")
}

func TestConfigShow_EnvOverride(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("BIMVIEW_API_BASE_URL", "http://from-env:8000")

	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "base_url: http://from-env:8000")
}
