package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/Aman-CERP/barshelf/internal/async"
	"github.com/Aman-CERP/barshelf/internal/cache"
	"github.com/Aman-CERP/barshelf/internal/config"
	"github.com/Aman-CERP/barshelf/internal/daemon"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/index"
	"github.com/Aman-CERP/barshelf/internal/kvstore"
	"github.com/Aman-CERP/barshelf/internal/metrics"
	"github.com/Aman-CERP/barshelf/internal/ratelimit"
	"github.com/Aman-CERP/barshelf/internal/search"
	"github.com/Aman-CERP/barshelf/internal/service"
	"github.com/Aman-CERP/barshelf/internal/upstream"
)

// loadConfig resolves the effective configuration: --config when given,
// otherwise the user config merged with ./barshelf.yaml.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return config.Load(cwd)
}

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    kvstore.Store
	sched    *async.Scheduler
	fetcher  upstream.Fetcher
	loader   *index.Loader
	svc      *service.Service
}

// newApp opens the store and wires the service. Close must be called to
// flush background writes.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.CheckSource(); err != nil {
		return nil, shelferrors.ConfigError("no catalog source configured", err).
			WithSuggestion("Set upstream.spreadsheet_id or upstream.csv_path, or run 'barshelf config init'")
	}
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := kvstore.Open(kvstore.Config{
		Backend: cfg.Store.Backend,
		Dir:     cfg.Store.Dir,
		Valkey: kvstore.ValkeyConfig{
			Address:   cfg.Store.Valkey.Address,
			Password:  cfg.Store.Valkey.Password,
			DB:        cfg.Store.Valkey.DB,
			KeyPrefix: cfg.Store.Valkey.Prefix,
		},
	})
	if err != nil {
		return nil, shelferrors.PersistenceError("open "+cfg.Store.Backend+" store", err)
	}
	breaker := shelferrors.NewCircuitBreaker("kvstore",
		shelferrors.WithMaxFailures(cfg.Store.BreakerFailures),
		shelferrors.WithResetTimeout(cfg.Store.BreakerReset))
	store := kvstore.NewGuarded(raw, breaker, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sched := async.New(async.Config{
		TaskTimeout:   cfg.Async.TaskTimeout,
		MaxConcurrent: cfg.Async.MaxConcurrent,
	}, logger)

	fetcher := newFetcher(cfg)

	loader := index.NewLoader(index.Config{
		Range:        cfg.Upstream.Range,
		TTL:          cfg.Catalog.TTL,
		KeepDetails:  cfg.Catalog.KeepDetails,
		PersistKey:   cfg.Catalog.PersistKey,
		StoreTimeout: cfg.Catalog.StoreTimeout,
		FetchTimeout: cfg.Upstream.Timeout,
	}, fetcher, store, sched, index.WithLogger(logger), index.WithMetrics(m))

	family := func(f config.FamilyConfig) cache.Config {
		return cache.Config{
			TTL:          f.TTL,
			Capacity:     f.Capacity,
			PersistTTL:   cfg.Cache.PersistTTL,
			StoreTimeout: cfg.Cache.StoreTimeout,
		}
	}
	lists := cache.NewFamily[service.ListPage]("list", family(cfg.Cache.List), store, sched,
		cache.WithLogger(logger), cache.WithMetrics(m))
	items := cache.NewFamily[service.Item]("item", family(cfg.Cache.Item), store, sched,
		cache.WithLogger(logger), cache.WithMetrics(m))

	limiter := ratelimit.New(ratelimit.Config{
		Limit:          cfg.RateLimit.Limit,
		Window:         cfg.RateLimit.Window,
		SyncStep:       cfg.RateLimit.SyncStep,
		PruneBatch:     cfg.RateLimit.PruneBatch,
		PruneThreshold: cfg.RateLimit.PruneThreshold,
		PruneInterval:  cfg.RateLimit.PruneInterval,
		StoreTimeout:   cfg.Cache.StoreTimeout,
	}, store, sched, ratelimit.WithLogger(logger), ratelimit.WithMetrics(m))

	svc := service.New(service.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
	}, service.Deps{
		Loader:  loader,
		Engine:  search.New(search.Options{VerifyFuzzy: cfg.Search.VerifyFuzzy}),
		Lists:   lists,
		Items:   items,
		Limiter: limiter,
		Logger:  logger,
		Metrics: m,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		store:    store,
		sched:    sched,
		fetcher:  fetcher,
		loader:   loader,
		svc:      svc,
	}, nil
}

// newFetcher picks the local CSV export when configured, otherwise the
// spreadsheet API.
func newFetcher(cfg *config.Config) upstream.Fetcher {
	if cfg.Upstream.CSVPath != "" {
		return upstream.NewCSVFetcher(cfg.Upstream.CSVPath)
	}
	var ts oauth2.TokenSource
	if cfg.Upstream.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Upstream.Token, TokenType: "Bearer"})
	}
	return upstream.NewSheetsFetcher(upstream.SheetsConfig{
		SpreadsheetID:     cfg.Upstream.SpreadsheetID,
		Endpoint:          cfg.Upstream.Endpoint,
		APIKey:            cfg.Upstream.APIKey,
		TokenSource:       ts,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Timeout:           cfg.Upstream.Timeout,
	})
}

// Close waits for background writes and closes the store.
func (a *app) Close(ctx context.Context) error {
	if err := a.sched.Close(ctx); err != nil {
		a.logger.Warn("background_tasks_abandoned", slog.String("error", err.Error()))
	}
	return a.store.Close()
}

func daemonConfig(cfg *config.Config) daemon.Config {
	dc := daemon.DefaultConfig()
	if cfg.Server.SocketPath != "" {
		dc.SocketPath = cfg.Server.SocketPath
	}
	if cfg.Server.PIDPath != "" {
		dc.PIDPath = cfg.Server.PIDPath
	}
	dc.MetricsAddr = cfg.Server.MetricsAddr
	return dc
}

// displayPath shortens paths under the home directory for display.
func displayPath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if strings.HasPrefix(p, home+string(filepath.Separator)) {
		return "~" + p[len(home):]
	}
	return p
}
