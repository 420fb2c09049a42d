package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/barshelf/internal/async"
	"github.com/Aman-CERP/barshelf/internal/kvstore"
	"github.com/Aman-CERP/barshelf/internal/metrics"
)

// Entry is the layer-2 record of a cached value.
type Entry[V any] struct {
	Fingerprint string    `json:"fingerprint"`
	StoredAt    time.Time `json:"stored_at"`
	Payload     V         `json:"payload"`
}

// Config sizes one cache family.
type Config struct {
	// TTL bounds layer-1 entry age. Zero or negative disables layer 1.
	TTL time.Duration
	// Capacity bounds layer-1 entries. Zero or negative disables layer 1.
	Capacity int
	// PersistTTL is the layer-2 expiry. Zero or negative stores without expiry.
	PersistTTL time.Duration
	// StoreTimeout bounds the layer-2 read on the request path.
	StoreTimeout time.Duration
}

// Option configures a Family.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Family is one named cache (list pages or items) spanning both layers.
type Family[V any] struct {
	name  string
	cfg   Config
	layer *Layer[V]
	store kvstore.Store
	sched *async.Scheduler
	settings
}

// NewFamily creates a family. store and sched may be nil, which disables
// layer 2.
func NewFamily[V any](name string, cfg Config, store kvstore.Store, sched *async.Scheduler, opts ...Option) *Family[V] {
	s := settings{logger: slog.Default(), metrics: metrics.Noop(), now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Family[V]{
		name:     name,
		cfg:      cfg,
		layer:    NewLayer[V](cfg.TTL, cfg.Capacity, s.now),
		store:    store,
		sched:    sched,
		settings: s,
	}
}

// Name returns the family name.
func (f *Family[V]) Name() string { return f.name }

// Layer exposes layer 1.
func (f *Family[V]) Layer() *Layer[V] { return f.layer }

// Observe applies fingerprint and filter-state invalidation for a request.
func (f *Family[V]) Observe(fingerprint string, filtered bool) {
	if reason := f.layer.Observe(fingerprint, filtered); reason != "" {
		f.invalidated(reason)
	}
}

// Get looks key up in layer 1, then layer 2. A layer-2 entry is adopted into
// layer 1 only when it was computed against fingerprint. The second result is
// the metrics label of the outcome.
func (f *Family[V]) Get(ctx context.Context, fingerprint, key string) (V, string, bool) {
	if f.layer.CheckFingerprint(fingerprint) {
		f.invalidated("fingerprint")
	}

	if v, ok := f.layer.Get(key); ok {
		f.metrics.CacheLookups.WithLabelValues(f.name, metrics.ResultHitL1).Inc()
		return v, metrics.ResultHitL1, true
	}
	if v, ok := f.readStore(ctx, fingerprint, key); ok {
		f.layer.Set(key, v)
		f.metrics.CacheLookups.WithLabelValues(f.name, metrics.ResultHitL2).Inc()
		return v, metrics.ResultHitL2, true
	}

	f.metrics.CacheLookups.WithLabelValues(f.name, metrics.ResultMiss).Inc()
	var zero V
	return zero, metrics.ResultMiss, false
}

// Set stores a computed value in layer 1 and schedules the layer-2 write.
func (f *Family[V]) Set(fingerprint, key string, value V) {
	if f.layer.CheckFingerprint(fingerprint) {
		f.invalidated("fingerprint")
	}
	f.layer.Set(key, value)

	if f.store == nil || f.sched == nil {
		return
	}
	e := Entry[V]{Fingerprint: fingerprint, StoredAt: f.now().UTC(), Payload: value}
	opts := kvstore.PutOptions{ExpireAfter: f.cfg.PersistTTL}
	f.sched.Schedule(f.name+"_cache_persist", func(ctx context.Context) error {
		return kvstore.PutJSON(ctx, f.store, key, e, opts)
	})
}

func (f *Family[V]) readStore(ctx context.Context, fingerprint, key string) (V, bool) {
	var zero V
	if f.store == nil {
		return zero, false
	}
	if f.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.StoreTimeout)
		defer cancel()
	}

	var e Entry[V]
	found, err := kvstore.GetJSON(ctx, f.store, key, &e)
	if err != nil {
		f.logger.Warn("cache_store_read_failed",
			slog.String("family", f.name),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return zero, false
	}
	if !found || e.Fingerprint != fingerprint {
		return zero, false
	}
	return e.Payload, true
}

func (f *Family[V]) invalidated(reason string) {
	f.metrics.CacheInvalidation.WithLabelValues(f.name, reason).Inc()
	f.logger.Debug("cache_invalidated", slog.String("family", f.name), slog.String("reason", reason))
}
