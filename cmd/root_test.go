package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/config"
	"github.com/zjrosen/bimview/internal/engine/memengine"
)

// testEnv points the config file and the database into a temp dir.
type testEnv struct {
	dir    string
	config string
	db     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "fragments.db"),
	}
	t.Setenv("BIMVIEW_CACHE_DB_PATH", env.db)
	t.Setenv("BIMVIEW_DEBUG", "")
	return env
}

// run executes the root command with args after --config.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, treeSearch, treeDiff, treeContext = "", "", nil, false
	uploadOut, uploadNoStore = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e testEnv) writeSample(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, memengine.SampleBytes(), 0o600))
	return path
}

func TestBindFlags_OnlyChangedFlagsOverride(t *testing.T) {
	c := &cobra.Command{Use: "bimview"}
	c.Flags().String("model-id", "", "")
	c.Flags().Bool("watch", false, "")
	c.Flags().String("file", "", "")
	require.NoError(t, c.Flags().Set("model-id", "m1"))

	v := viper.New()
	v.SetDefault("viewer.file", "from-config.frag")
	require.NoError(t, bindFlags(v, c))

	require.Equal(t, "m1", v.GetString("viewer.model_id"))
	require.Equal(t, "from-config.frag", v.GetString("viewer.file"))
	require.False(t, v.IsSet("watch.enabled"))
}

func TestInitConfig_WritesDefaultFile(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "config", "path")
	require.NoError(t, err)
	require.Equal(t, env.config+"\n", out)

	_, err = os.Stat(env.config)
	require.NoError(t, err, "default config should be written")
	require.Equal(t, env.db, cfg.Cache.DBPath)
}

func TestRunApp_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, config.WriteDefaultConfig(env.config))
	require.NoError(t, config.SetValue(env.config, "tree.max_tries", 0))

	_, err := env.run(t)
	require.ErrorContains(t, err, "invalid configuration")
	require.ErrorContains(t, err, "tree.max_tries")
}

func TestPlural(t *testing.T) {
	require.Equal(t, "model", plural(1, "model", "models"))
	require.Equal(t, "models", plural(0, "model", "models"))
	require.Equal(t, "models", plural(2, "model", "models"))
}
