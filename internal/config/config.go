// Package config provides configuration types, defaults and loading for bimview.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/bimview/internal/api"
	"github.com/zjrosen/bimview/internal/bim"
	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/tracing"
)

// LocalPath is the project-local config file, checked before the user one.
const LocalPath = ".bimview/config.yaml"

// EnvPrefix prefixes environment overrides, e.g. BIMVIEW_API_BASE_URL.
const EnvPrefix = "BIMVIEW"

// Config holds all configuration options for bimview.
type Config struct {
	API     APIConfig      `mapstructure:"api" yaml:"api"`
	Viewer  ViewerConfig   `mapstructure:"viewer" yaml:"viewer"`
	Tree    TreeConfig     `mapstructure:"tree" yaml:"tree"`
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Watch   WatchConfig    `mapstructure:"watch" yaml:"watch"`
	UI      UIConfig       `mapstructure:"ui" yaml:"ui"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig points at the fragments conversion server.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ViewerConfig selects what the viewer loads at startup.
type ViewerConfig struct {
	WorkerURL   string `mapstructure:"worker_url" yaml:"worker_url"`
	WorkerDir   string `mapstructure:"worker_dir" yaml:"worker_dir,omitempty"`
	File        string `mapstructure:"file" yaml:"file,omitempty"`                 // local fragments snapshot
	ModelID     string `mapstructure:"model_id" yaml:"model_id,omitempty"`         // id given to the loaded model
	FragmentsID string `mapstructure:"fragments_id" yaml:"fragments_id,omitempty"` // fetched from the API when set
}

// TreeConfig tunes spatial structure loading.
type TreeConfig struct {
	MaxTries  uint          `mapstructure:"max_tries" yaml:"max_tries"`
	RetryStep time.Duration `mapstructure:"retry_step" yaml:"retry_step"`
}

// CacheConfig locates the fragments database and sizes the item cache.
type CacheConfig struct {
	DBPath  string        `mapstructure:"db_path" yaml:"db_path"`
	ItemTTL time.Duration `mapstructure:"item_ttl" yaml:"item_ttl"`
}

// WatchConfig controls reloading the fragments file on change.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	ShowCounts    bool   `mapstructure:"show_counts" yaml:"show_counts"`
	MarkdownStyle string `mapstructure:"markdown_style" yaml:"markdown_style"` // "dark" (default) or "light"
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfigDir returns ~/.config/bimview, or "" if home dir unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bimview")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultDBPath returns the default fragments database location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bimview", "fragments.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		API: APIConfig{
			BaseURL: api.DefaultBaseURL,
			Timeout: api.DefaultTimeout,
		},
		Viewer: ViewerConfig{
			WorkerURL: bim.DefaultWorkerURL,
		},
		Tree: TreeConfig{
			MaxTries:  inspector.DefaultMaxTries,
			RetryStep: inspector.DefaultRetryStep,
		},
		Cache: CacheConfig{
			DBPath:  DefaultDBPath(),
			ItemTTL: inspector.DefaultItemTTL,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
		UI: UIConfig{
			ShowCounts:    true,
			MarkdownStyle: "dark",
		},
		Tracing: tr,
	}
}

// SetDefaults registers every default on v so that env overrides apply to
// keys absent from the file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("viewer.worker_url", d.Viewer.WorkerURL)
	v.SetDefault("viewer.worker_dir", d.Viewer.WorkerDir)
	v.SetDefault("viewer.file", d.Viewer.File)
	v.SetDefault("viewer.model_id", d.Viewer.ModelID)
	v.SetDefault("viewer.fragments_id", d.Viewer.FragmentsID)
	v.SetDefault("tree.max_tries", d.Tree.MaxTries)
	v.SetDefault("tree.retry_step", d.Tree.RetryStep)
	v.SetDefault("cache.db_path", d.Cache.DBPath)
	v.SetDefault("cache.item_ttl", d.Cache.ItemTTL)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("ui.show_counts", d.UI.ShowCounts)
	v.SetDefault("ui.markdown_style", d.UI.MarkdownStyle)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// ResolvePath picks the config file: explicit if given, else LocalPath if it
// exists, else the user config if it exists. found is false when no file
// exists yet; path is then where a default should be written.
func ResolvePath(explicit string) (path string, found bool) {
	if explicit != "" {
		_, err := os.Stat(explicit)
		return explicit, err == nil
	}
	if _, err := os.Stat(LocalPath); err == nil {
		return LocalPath, true
	}
	if dir := DefaultConfigDir(); dir != "" {
		user := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(user); err == nil {
			return user, true
		}
	}
	return LocalPath, false
}

// Load reads the config at path into v, writing a default file first when
// none exists, and applies BIMVIEW_* environment overrides.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.base_url", api.EnvBaseURL)

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := WriteDefaultConfig(path); err != nil {
				log.Warn(log.CatConfig, "Continuing with built-in defaults", "path", path, "error", err)
				path = ""
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Debug(log.CatConfig, "Config loaded", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

var markdownStyles = map[string]bool{
	"": true, "dark": true, "light": true, "notty": true, "ascii": true,
	"dracula": true, "tokyo-night": true, "pink": true,
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := ValidateAPI(c.API); err != nil {
		return err
	}
	if c.Tree.MaxTries == 0 {
		return fmt.Errorf("tree.max_tries must be at least 1")
	}
	if c.Tree.RetryStep < 0 {
		return fmt.Errorf("tree.retry_step must not be negative, got %s", c.Tree.RetryStep)
	}
	if c.Cache.ItemTTL < 0 {
		return fmt.Errorf("cache.item_ttl must not be negative, got %s", c.Cache.ItemTTL)
	}
	if c.Watch.Enabled {
		if c.Watch.Debounce <= 0 {
			return fmt.Errorf("watch.debounce must be positive when watching, got %s", c.Watch.Debounce)
		}
		if c.Viewer.File == "" {
			return fmt.Errorf("watch.enabled requires viewer.file")
		}
	}
	if !markdownStyles[c.UI.MarkdownStyle] {
		return fmt.Errorf("ui.markdown_style %q is not a known style", c.UI.MarkdownStyle)
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr must be host:port, got %q", c.Metrics.Addr)
		}
	}
	return ValidateTracing(c.Tracing)
}

// ValidateAPI checks the API settings.
func ValidateAPI(a APIConfig) error {
	u, err := url.Parse(a.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", a.BaseURL)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", a.Timeout)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}

	if tr.Exporter != "" {
		switch tr.Exporter {
		case tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tr.Enabled {
		if tr.Exporter == tracing.ExporterFile && tr.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tr.Exporter == tracing.ExporterOTLP && tr.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}
