package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/api"
	"github.com/zjrosen/bimview/internal/app"
	"github.com/zjrosen/bimview/internal/bim"
	"github.com/zjrosen/bimview/internal/config"
	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
	"github.com/zjrosen/bimview/internal/input"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/source"
	"github.com/zjrosen/bimview/internal/tracing"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version    = "dev"
	cfgFile    string
	cfgPath    string
	cfg        config.Config
	debugFlag  bool
	logFile    string
	noColor    bool
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "bimview",
	Short: "A terminal viewer for BIM models",
	Long: `A terminal viewer for BIM models converted to fragments.

Browse the spatial structure of loaded models, search it, highlight
elements and inspect their properties. Models come from a local
fragments file, the conversion API, or the last model stored in the
local database.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  initConfig,
	PersistentPostRunE: closeLog,
	RunE:               runApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .bimview/config.yaml, then ~/.config/bimview/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging and the log overlay (also BIMVIEW_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"debug log path (default: debug.log, also BIMVIEW_LOG)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colors")

	rootCmd.Flags().StringP("file", "f", "", "fragments file to load at startup")
	rootCmd.Flags().String("model-id", "", "id given to the model loaded from --file")
	rootCmd.Flags().String("fragments-id", "", "converted model to download from the API at startup")
	rootCmd.Flags().Bool("watch", false, "reload --file when it changes")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on host:port")
}

// flagKeys maps root flags onto config keys. Flags override the file and
// the environment only when given.
var flagKeys = map[string]string{
	"file":         "viewer.file",
	"model-id":     "viewer.model_id",
	"fragments-id": "viewer.fragments_id",
	"watch":        "watch.enabled",
	"metrics-addr": "metrics.addr",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Root().Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

func debugEnabled() bool {
	return debugFlag || os.Getenv("BIMVIEW_DEBUG") != ""
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if debugEnabled() {
		path := logFile
		if path == "" {
			path = os.Getenv("BIMVIEW_LOG")
		}
		if path == "" {
			path = "debug.log"
		}
		cleanup, err := log.InitWithTeaLog(path, "bimview")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "bimview starting", "version", version, "logPath", path)
	}

	v := viper.New()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	path, _ := config.ResolvePath(cfgFile)
	loaded, err := config.Load(v, path)
	if err != nil {
		return err
	}
	cfg = loaded
	cfgPath = path
	return nil
}

func closeLog(_ *cobra.Command, _ []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

func newAPIClient(tracer trace.Tracer) *api.Client {
	return api.New(api.BaseURLFromEnv(cfg.API.BaseURL),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithTracer(tracer),
	)
}

func runApp(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()
	tracer := provider.Tracer()

	collector, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := collector.Serve(ctx, addr); err != nil {
				log.ErrorErr(log.CatConfig, "Metrics server stopped", err, "addr", addr)
			}
		}()
	}

	db, err := sqlite.NewDB(cfg.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("opening fragments database: %w", err)
	}
	defer func() { _ = db.Close() }()

	eng := memengine.New()
	reg := registry.New(registry.WithSizeObserver(collector.SetServices))
	bus := input.NewBus()
	manager := bim.New(eng, reg, bus,
		bim.WithWorkerURL(cfg.Viewer.WorkerURL),
		bim.WithWorkerDir(cfg.Viewer.WorkerDir),
		bim.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		bim.WithTracer(tracer),
		bim.WithMetrics(collector),
	)
	src := source.New(eng.Fragments(),
		source.WithStore(db.Fragments()),
		source.WithRemote(newAPIClient(tracer)),
	)

	var watchPath string
	if cfg.Watch.Enabled {
		watchPath = cfg.Viewer.File
	}

	model := app.New(app.Services{
		Manager: manager,
		Source:  src,
		Config:  cfg,
		Metrics: collector,
		Tracer:  tracer,
		Open: app.OpenRequest{
			File:        cfg.Viewer.File,
			ModelID:     cfg.Viewer.ModelID,
			FragmentsID: cfg.Viewer.FragmentsID,
		},
		WatchPath: watchPath,
		Debug:     debugEnabled(),
	})
	p := tea.NewProgram(
		&model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	_, err = p.Run()

	// Dispose the viewer and stop the watcher
	if closeErr := model.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
