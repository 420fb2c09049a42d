package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/daemon"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/logging"
	"github.com/Aman-CERP/barshelf/internal/output"
	"github.com/Aman-CERP/barshelf/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var noWarm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog daemon in the foreground",
		Long: `Run the catalog daemon in the foreground.

The daemon listens on a Unix socket for list, item, status and rebuild
requests. Every request is admitted through the per-identity rate limiter.
When server.metrics_addr is set, Prometheus metrics are served on /metrics.

When upstream.csv_path is configured, edits to the CSV file trigger a
rebuild.

Stop it with Ctrl-C or SIGTERM.`,
		Example: `  # Serve using ./barshelf.yaml
  barshelf serve

  # Serve with metrics on :9464
  BARSHELF_METRICS_ADDR=:9464 barshelf serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, !noWarm)
		},
	}

	cmd.Flags().BoolVar(&noWarm, "no-warm", false, "Skip loading the catalog before accepting requests")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, warm bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The daemon always logs to file; debug mode has already installed one.
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		logCfg.FilePath = logging.DefaultLogPath()
		cleanup, err := logging.Install(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}
	logger := slog.Default()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("store_close_failed", slog.String("error", err.Error()))
		}
	}()

	dcfg := daemonConfig(cfg)
	d, err := daemon.NewDaemon(dcfg, a.svc,
		daemon.WithLogger(logger),
		daemon.WithMetrics(a.metrics, a.registry))
	if err != nil {
		return err
	}

	if warm {
		c, err := a.svc.GetCatalog(ctx, false)
		if err != nil {
			// Requests retry the load, so a cold start is not fatal.
			logger.Warn("catalog_warm_failed", shelferrors.LogAttrs(err)...)
			out.Warningf("Catalog not loaded yet: %s", err)
		} else {
			out.Successf("Catalog ready: %d cocktails (%s)", c.Len(), c.Fingerprint)
		}
	}

	if path := cfg.Upstream.CSVPath; path != "" {
		w := watcher.NewFileWatcher(path, watcher.Options{DebounceWindow: cfg.Upstream.WatchDebounce}, logger)
		go func() {
			err := w.Run(ctx, func(ctx context.Context, _ []watcher.FileEvent) {
				if _, err := a.loader.Get(ctx, true); err != nil {
					logger.Warn("catalog_reload_failed", shelferrors.LogAttrs(err)...)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher_stopped", slog.String("error", err.Error()))
			}
		}()
		out.Statusf("👀", "Watching %s", displayPath(path))
	}

	out.Statusf("🍸", "Listening on %s", dcfg.SocketPath)
	if dcfg.MetricsAddr != "" {
		out.Statusf("📈", "Metrics on http://%s/metrics", dcfg.MetricsAddr)
	}

	err = d.Start(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return shelferrors.New(shelferrors.ErrCodeDaemonFailed, "another barshelf daemon is already running", err).
			WithSuggestion("Check it with 'barshelf status'")
	}
	if errors.Is(err, context.Canceled) {
		out.Status("👋", "Daemon stopped")
		return nil
	}
	return err
}
