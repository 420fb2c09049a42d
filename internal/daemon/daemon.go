package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/barshelf/internal/metrics"
)

// Daemon owns the socket server, the PID lock and the optional metrics
// listener for one serving process.
type Daemon struct {
	cfg      Config
	server   *Server
	pidFile  *PIDFile
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithMetrics sets the collectors and the gatherer served on MetricsAddr.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(d *Daemon) {
		d.metrics = m
		d.gatherer = g
	}
}

// NewDaemon creates a daemon serving handler.
func NewDaemon(cfg Config, handler Handler, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	d := &Daemon{
		cfg:     cfg,
		pidFile: NewPIDFile(cfg.PIDPath),
		logger:  slog.Default(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.server = NewServer(cfg.SocketPath, handler)
	d.server.SetLogger(d.logger)
	d.server.SetMetrics(d.metrics)
	d.server.SetTimeout(cfg.Timeout)
	return d, nil
}

// Start serves until ctx is cancelled. It fails fast when another daemon
// holds the lock.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Release(); err != nil {
			d.logger.Warn("pidfile_release_failed", slog.String("error", err.Error()))
		}
	}()

	if d.cfg.MetricsAddr != "" && d.gatherer != nil {
		stop := d.serveMetrics()
		defer stop()
	}

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("pid_file", d.cfg.PIDPath),
		slog.String("metrics_addr", d.cfg.MetricsAddr))

	err := d.server.ListenAndServe(ctx)
	d.logger.Info("daemon_stopped")
	return err
}

func (d *Daemon) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(d.gatherer))
	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics_listener_failed",
				slog.String("addr", d.cfg.MetricsAddr),
				slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGracePeriod)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
