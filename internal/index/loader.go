// Package index owns the process-wide catalog: it serves the in-memory copy
// while fresh, falls back to the persisted copy, and rebuilds from upstream
// at most once at a time.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/barshelf/internal/async"
	"github.com/Aman-CERP/barshelf/internal/catalog"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/kvstore"
	"github.com/Aman-CERP/barshelf/internal/metrics"
	"github.com/Aman-CERP/barshelf/internal/upstream"
)

// Config configures a Loader.
type Config struct {
	// Range is the A1 range holding the header row and the data.
	Range string
	// TTL is how long a catalog stays fresh. Zero or negative caches forever.
	TTL time.Duration
	// KeepDetails keeps detail fields in the built catalog.
	KeepDetails bool
	// PersistKey is the store key for the catalog blob.
	PersistKey string
	// StoreTimeout bounds the persisted-catalog read on the request path.
	StoreTimeout time.Duration
	// FetchTimeout bounds a rebuild's upstream fetch.
	FetchTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Range:        "Cocktails!A1:N",
		TTL:          10 * time.Minute,
		PersistKey:   "catalog:latest",
		StoreTimeout: 2 * time.Second,
		FetchTimeout: 30 * time.Second,
	}
}

// Loader mediates between memory, the persistent store and upstream.
type Loader struct {
	cfg     Config
	fetcher upstream.Fetcher
	store   kvstore.Store
	sched   *async.Scheduler
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	flight singleflight.Group

	mu         sync.Mutex
	current    *catalog.Catalog
	expiresAt  time.Time // zero: never
	rebuilds   int64
	storeLoads int64
	lastErr    error
	lastErrAt  time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(ld *Loader) { ld.now = now }
}

// NewLoader creates a Loader. store and sched may be nil, which disables
// persistence.
func NewLoader(cfg Config, fetcher upstream.Fetcher, store kvstore.Store, sched *async.Scheduler, opts ...Option) *Loader {
	if cfg.PersistKey == "" {
		cfg.PersistKey = DefaultConfig().PersistKey
	}
	if cfg.Range == "" {
		cfg.Range = DefaultConfig().Range
	}
	l := &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		sched:   sched,
		logger:  slog.Default(),
		metrics: metrics.Noop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the current catalog. Unless force is set it serves a fresh
// in-memory copy, then a valid persisted copy, before rebuilding. Concurrent
// rebuilds collapse into one upstream fetch.
func (l *Loader) Get(ctx context.Context, force bool) (*catalog.Catalog, error) {
	if !force {
		if c := l.fresh(); c != nil {
			l.metrics.CatalogLoads.WithLabelValues(metrics.SourceMemory).Inc()
			return c, nil
		}
		if c := l.loadPersisted(ctx); c != nil {
			l.metrics.CatalogLoads.WithLabelValues(metrics.SourceStore).Inc()
			return c, nil
		}
	}

	ch := l.flight.DoChan("rebuild", func() (any, error) {
		// A flight that started after another one finished finds its result
		// in memory.
		if !force {
			if c := l.fresh(); c != nil {
				return c, nil
			}
		}
		return l.rebuild(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.metrics.CatalogLoads.WithLabelValues(metrics.SourceShared).Inc()
		} else {
			l.metrics.CatalogLoads.WithLabelValues(metrics.SourceRebuild).Inc()
		}
		return res.Val.(*catalog.Catalog), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fresh returns the in-memory catalog when it is unexpired and usable,
// rebuilding its auxiliary buckets in place if needed. A structurally broken
// catalog is dropped.
func (l *Loader) fresh() *catalog.Catalog {
	l.mu.Lock()
	c := l.current
	if c == nil || (!l.expiresAt.IsZero() && !l.now().Before(l.expiresAt)) {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if c.HasValidIndexes() {
		return c
	}
	if err := c.EnsureAux(); err != nil {
		l.logger.Warn("catalog_memory_invalid", slog.String("error", err.Error()))
		l.mu.Lock()
		if l.current == c {
			l.current = nil
		}
		l.mu.Unlock()
		return nil
	}
	return c
}

// loadPersisted reads and adopts the stored catalog. Any failure is a miss.
func (l *Loader) loadPersisted(ctx context.Context) *catalog.Catalog {
	if l.store == nil {
		return nil
	}
	readCtx := ctx
	if l.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, l.cfg.StoreTimeout)
		defer cancel()
	}

	data, found, err := l.store.Get(readCtx, l.cfg.PersistKey)
	if err != nil {
		l.logger.Warn("catalog_store_read_failed",
			slog.String("key", l.cfg.PersistKey),
			slog.String("error", err.Error()))
		return nil
	}
	if !found {
		return nil
	}

	c, err := catalog.Decode(data)
	if err == nil {
		err = c.EnsureAux()
	}
	if err != nil {
		l.logger.Warn("catalog_store_invalid", shelferrors.LogAttrs(err)...)
		return nil
	}

	l.mu.Lock()
	l.current = c
	l.expiresAt = l.expiry()
	l.storeLoads++
	l.mu.Unlock()
	l.metrics.CatalogRecords.Set(float64(c.Len()))

	l.logger.Info("catalog_loaded_from_store",
		slog.String("fingerprint", c.Fingerprint),
		slog.Int("records", c.Len()))
	return c
}

func (l *Loader) rebuild(ctx context.Context) (*catalog.Catalog, error) {
	start := l.now()
	fetchCtx := context.WithoutCancel(ctx)
	if l.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, l.cfg.FetchTimeout)
		defer cancel()
	}

	rows, err := l.fetcher.FetchRange(fetchCtx, l.cfg.Range)
	if err != nil {
		l.metrics.CatalogRebuilds.WithLabelValues("error").Inc()
		var se *shelferrors.ShelfError
		if !errors.As(err, &se) {
			err = shelferrors.UpstreamError("fetch catalog range", err)
		}
		l.mu.Lock()
		l.lastErr, l.lastErrAt = err, l.now()
		l.mu.Unlock()
		l.logger.Warn("catalog_rebuild_failed", shelferrors.LogAttrs(err)...)
		return nil, err
	}

	c := catalog.Build(rows, catalog.Options{KeepDetails: l.cfg.KeepDetails, Now: l.now})

	l.mu.Lock()
	l.current = c
	l.expiresAt = l.expiry()
	l.rebuilds++
	l.lastErr = nil
	l.mu.Unlock()

	elapsed := l.now().Sub(start)
	l.metrics.CatalogRebuilds.WithLabelValues("ok").Inc()
	l.metrics.RebuildDuration.Observe(elapsed.Seconds())
	l.metrics.CatalogRecords.Set(float64(c.Len()))
	l.logger.Info("catalog_rebuilt",
		slog.String("fingerprint", c.Fingerprint),
		slog.Int("records", c.Len()),
		slog.Int("categories", len(c.Categories)),
		slog.Duration("elapsed", elapsed))

	l.schedulePersist(c)
	return c, nil
}

func (l *Loader) schedulePersist(c *catalog.Catalog) {
	if l.store == nil || l.sched == nil {
		return
	}
	key := l.cfg.PersistKey
	opts := kvstore.PutOptions{}
	if l.cfg.TTL > 0 {
		opts.ExpireAfter = l.cfg.TTL
	}
	l.sched.ScheduleReserved("catalog_persist", func(ctx context.Context) error {
		data, err := c.Encode()
		if err != nil {
			return shelferrors.PersistenceError("encode catalog", err)
		}
		if err := l.store.Put(ctx, key, data, opts); err != nil {
			return fmt.Errorf("persist catalog %s: %w", key, err)
		}
		return nil
	})
}

func (l *Loader) expiry() time.Time {
	if l.cfg.TTL <= 0 {
		return time.Time{}
	}
	return l.now().Add(l.cfg.TTL)
}

// Current returns the in-memory catalog regardless of freshness, or nil.
func (l *Loader) Current() *catalog.Catalog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Invalidate drops the in-memory catalog. The persisted copy is untouched,
// so the next Get may still adopt it; use Get(ctx, true) to force upstream.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.current = nil
	l.expiresAt = time.Time{}
	l.mu.Unlock()
	l.logger.Debug("catalog_invalidated")
}
