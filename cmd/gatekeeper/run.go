package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"examforge/gatekeeper/pkg/cli"
	"examforge/gatekeeper/pkg/config"
	"examforge/gatekeeper/pkg/server"
	"examforge/gatekeeper/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Gatekeeper sidecar",
	Long: `Start the Gatekeeper HTTP sidecar with the specified configuration.

The server opens the configured counter store, schedules the background
sweeps and serves the rate limit, budget and reservation API until it
receives SIGINT or SIGTERM. When a config file is given, changes to the
daily token limit and trust proxy setting are applied without a restart.

Examples:
  # Start with defaults
  gatekeeper run

  # Start with a config file
  gatekeeper run --config /etc/gatekeeper/config.yaml

  # Override listen address
  gatekeeper run --listen 0.0.0.0:8080

  # Validate config without starting server
  gatekeeper run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("flags", err)
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	if err := serve(ctx, cfg, cfgFile, out); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// serve runs the engine, HTTP server and config watcher until ctx is
// cancelled or the server fails.
func serve(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	provider, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	engine, reg, err := openEngine(cfg, logger, provider.TracerProvider())
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close counter store", "error", err)
		}
	}()

	var watcher *config.Watcher
	if path != "" {
		if watcher, err = config.NewWatcher(path, engine, logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := engine.Start(gctx); err != nil {
		return fmt.Errorf("failed to start sweeps: %w", err)
	}

	srv := server.New(server.Options{
		Config:         cfg.Server,
		Metrics:        cfg.Telemetry.Metrics,
		Engine:         engine,
		Gatherer:       reg,
		TracerProvider: provider.TracerProvider(),
		Logger:         logger,
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if watcher != nil {
		g.Go(func() error {
			// A dead watcher only disables hot reload.
			if err := watcher.Watch(gctx); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
			return nil
		})
	}

	printBanner(out, cfg, path)

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(out io.Writer, cfg *config.Config, path string) {
	fmt.Fprintf(out, "Gatekeeper v%s\n", Version)
	if path != "" {
		fmt.Fprintf(out, "✓ Configuration loaded from %s\n", path)
	} else {
		fmt.Fprintln(out, "✓ Using default configuration")
	}
	fmt.Fprintf(out, "✓ Counter store: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "✓ Daily token limit: %s\n", cli.FormatCount(cfg.Limits.DailyTokenLimit))
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	if cfg.Telemetry.Tracing.Enabled {
		fmt.Fprintf(out, "✓ Tracing to %s (%s sampler)\n", cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.Sampler)
	}
}
