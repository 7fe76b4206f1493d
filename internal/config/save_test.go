package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig_Comments(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".bimview", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# Fragments conversion server")
	require.Contains(t, content, "# Reload viewer.file when it changes on disk")
	require.Contains(t, content, "retry_step: 200ms")
	require.NotContains(t, content, "fragments_id")
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, Defaults(), cfg)
}

func TestSetValue_PreservesOtherConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# my settings
api:
  # local converter
  base_url: http://localhost:8000
ui:
  show_counts: false
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	require.NoError(t, SetValue(path, "api.base_url", "http://converter:9000"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# my settings")
	require.Contains(t, content, "# local converter")
	require.Contains(t, content, "base_url: http://converter:9000")
	require.Contains(t, content, "show_counts: false")
}

func TestSetValue_CreatesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	require.NoError(t, SetValue(path, "watch.enabled", true))
	require.NoError(t, SetValue(path, "watch.debounce", 2*time.Second))
	require.NoError(t, SetValue(path, "viewer.file", "/data/model.frag"))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.True(t, cfg.Watch.Enabled)
	require.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	require.Equal(t, "/data/model.frag", cfg.Viewer.File)
}

func TestSetValue_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://x\n"), 0o600))

	err := SetValue(path, "api..timeout", "1s")
	require.ErrorContains(t, err, "invalid key")

	err = SetValue(path, "api.base_url.host", "x")
	require.ErrorContains(t, err, "api.base_url is not a section")

	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
	err = SetValue(path, "api.timeout", "1s")
	require.ErrorContains(t, err, "not a mapping")
}

func TestSetValue_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SetValue(path, "ui.show_counts", false))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file should be renamed away")
	require.Equal(t, "config.yaml", entries[0].Name())
}
