// Package ratelimit admits requests per identity in fixed time windows. The
// in-process count is authoritative; it is copied to the persistent store
// opportunistically so other processes seeding the same window see it.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/Aman-CERP/barshelf/internal/async"
	"github.com/Aman-CERP/barshelf/internal/kvstore"
	"github.com/Aman-CERP/barshelf/internal/metrics"
)

const (
	// persistGrace keeps a persisted counter around past its window.
	persistGrace = 60 * time.Second
	// maxSweepBatches bounds one background sweep.
	maxSweepBatches = 8
)

// Config configures a Limiter.
type Config struct {
	// Limit is the admissions per identity per window. Zero or negative
	// admits everything.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
	// SyncStep is the unsynced delta that triggers a store write.
	SyncStep int
	// PruneBatch is the buckets inspected per admission check.
	PruneBatch int
	// PruneThreshold is the bucket count above which a background sweep runs.
	PruneThreshold int
	// PruneInterval is the minimum time between background sweeps.
	PruneInterval time.Duration
	// StoreTimeout bounds the seed read on the request path.
	StoreTimeout time.Duration
	// KeyPrefix namespaces persisted counters.
	KeyPrefix string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Limit:          60,
		Window:         time.Minute,
		SyncStep:       5,
		PruneBatch:     16,
		PruneThreshold: 10000,
		PruneInterval:  30 * time.Second,
		StoreTimeout:   250 * time.Millisecond,
		KeyPrefix:      "ratelimit:",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.SyncStep <= 0 {
		c.SyncStep = d.SyncStep
	}
	if c.PruneBatch <= 0 {
		c.PruneBatch = d.PruneBatch
	}
	if c.PruneThreshold <= 0 {
		c.PruneThreshold = d.PruneThreshold
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = d.PruneInterval
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	return c
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
	ResetAt           time.Time `json:"reset_at"`
}

// counter is the persisted form of a bucket.
type counter struct {
	Count     int       `json:"count"`
	Window    int64     `json:"window"`
	UpdatedAt time.Time `json:"updated_at"`
}

type bucket struct {
	key        string
	window     int64
	expiresAt  time.Time
	count      int
	increments int
	synced     int
	persisted  bool
	syncing    bool
	pending    bool
}

// Limiter is a per-identity fixed-window rate limiter.
type Limiter struct {
	cfg     Config
	store   kvstore.Store
	sched   *async.Scheduler
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	ring      []string
	cursor    int
	sweeping  bool
	lastSweep time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Limiter) { r.logger = l }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Limiter) { r.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Limiter) { r.now = now }
}

// New creates a Limiter. store and sched may be nil, which keeps counts
// process-local.
func New(cfg Config, store kvstore.Store, sched *async.Scheduler, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		store:   store,
		sched:   sched,
		logger:  slog.Default(),
		metrics: metrics.Noop(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or denies one request from identity. It never waits on a
// store write; the only I/O is a bounded read when a bucket is first seen.
func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	now := l.now()
	window := now.UnixNano() / l.cfg.Window.Nanoseconds()
	key := identity + "|" + strconv.FormatInt(window, 10)
	windowEnd := time.Unix(0, (window+1)*l.cfg.Window.Nanoseconds())

	l.mu.Lock()
	l.pruneLocked(now, l.cfg.PruneBatch)
	b := l.buckets[key]
	if b != nil && !now.Before(b.expiresAt) {
		l.removeLocked(key)
		b = nil
	}

	if b == nil {
		l.mu.Unlock()
		seed, persisted := l.seed(ctx, key, window)
		l.mu.Lock()
		// Another request may have created the bucket while we read.
		if b = l.buckets[key]; b == nil {
			b = &bucket{
				key:       key,
				window:    window,
				expiresAt: windowEnd,
				count:     seed,
				synced:    seed,
				persisted: persisted,
			}
			l.buckets[key] = b
			l.ring = append(l.ring, key)
		}
	}

	limit := l.cfg.Limit
	if limit > 0 && b.count >= limit {
		l.mu.Unlock()
		l.metrics.RateDecisions.WithLabelValues("denied").Inc()
		retry := int(math.Ceil(windowEnd.Sub(now).Seconds()))
		return Decision{
			Limit:             limit,
			RetryAfterSeconds: max(retry, 1),
			ResetAt:           windowEnd,
		}
	}

	b.count++
	b.increments++
	startSync := false
	if l.syncDue(b) {
		if b.syncing {
			b.pending = true
		} else {
			b.syncing = true
			startSync = true
		}
	}
	d := Decision{Allowed: true, Limit: limit, ResetAt: windowEnd}
	if limit > 0 {
		d.Remaining = max(limit-b.count, 0)
	}
	n := len(l.buckets)
	sweep := l.sweepDueLocked(now)
	l.mu.Unlock()

	l.metrics.RateDecisions.WithLabelValues("allowed").Inc()
	l.metrics.RateBuckets.Set(float64(n))
	if startSync {
		l.scheduleSync(b)
	}
	if sweep {
		l.scheduleSweep()
	}
	return d
}

func (l *Limiter) syncDue(b *bucket) bool {
	if l.store == nil || l.sched == nil {
		return false
	}
	if b.count-b.synced >= l.cfg.SyncStep {
		return true
	}
	if l.cfg.Limit > 0 && b.count >= l.cfg.Limit-1 {
		return true
	}
	return b.increments == 1 && !b.persisted
}

func (l *Limiter) seed(ctx context.Context, key string, window int64) (int, bool) {
	if l.store == nil {
		return 0, false
	}
	if l.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.StoreTimeout)
		defer cancel()
	}

	var c counter
	found, err := kvstore.GetJSON(ctx, l.store, l.cfg.KeyPrefix+key, &c)
	if err != nil {
		l.logger.Warn("ratelimit_seed_failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return 0, false
	}
	if !found || c.Window != window || c.Count < 0 {
		return 0, false
	}
	return c.Count, true
}

func (l *Limiter) scheduleSync(b *bucket) {
	if !l.sched.Schedule("ratelimit_sync", l.syncTask(b)) {
		l.mu.Lock()
		b.syncing = false
		b.pending = false
		l.mu.Unlock()
		l.metrics.RateSyncs.WithLabelValues("dropped").Inc()
	}
}

func (l *Limiter) syncTask(b *bucket) async.Task {
	return func(ctx context.Context) error {
		l.mu.Lock()
		count := b.count
		l.mu.Unlock()

		now := l.now()
		c := counter{Count: count, Window: b.window, UpdatedAt: now.UTC()}
		opts := kvstore.PutOptions{ExpireAfter: b.expiresAt.Sub(now) + persistGrace}
		err := kvstore.PutJSON(ctx, l.store, l.cfg.KeyPrefix+b.key, c, opts)

		l.mu.Lock()
		b.syncing = false
		if err == nil {
			b.synced = max(b.synced, count)
			b.persisted = true
		}
		again := b.pending && b.count > b.synced
		b.pending = false
		if again {
			b.syncing = true
		}
		l.mu.Unlock()

		if err != nil {
			l.metrics.RateSyncs.WithLabelValues("error").Inc()
			l.logger.Warn("ratelimit_sync_failed",
				slog.String("key", b.key),
				slog.Int("count", count),
				slog.String("error", err.Error()))
		} else {
			l.metrics.RateSyncs.WithLabelValues("ok").Inc()
		}
		if again {
			l.scheduleSync(b)
		}
		return nil
	}
}

// pruneLocked inspects up to n buckets from the cursor and removes those
// whose window has elapsed. It returns the number removed.
func (l *Limiter) pruneLocked(now time.Time, n int) int {
	removed := 0
	for i := 0; i < n && len(l.ring) > 0; i++ {
		if l.cursor >= len(l.ring) {
			l.cursor = 0
		}
		key := l.ring[l.cursor]
		if b := l.buckets[key]; b == nil || !now.Before(b.expiresAt) {
			l.removeAtLocked(l.cursor)
			removed++
			continue
		}
		l.cursor++
	}
	return removed
}

func (l *Limiter) removeLocked(key string) {
	for i, k := range l.ring {
		if k == key {
			l.removeAtLocked(i)
			return
		}
	}
	delete(l.buckets, key)
}

// removeAtLocked swaps the last ring entry into slot i.
func (l *Limiter) removeAtLocked(i int) {
	delete(l.buckets, l.ring[i])
	last := len(l.ring) - 1
	l.ring[i] = l.ring[last]
	l.ring[last] = ""
	l.ring = l.ring[:last]
}

func (l *Limiter) sweepDueLocked(now time.Time) bool {
	if l.sched == nil || l.sweeping || len(l.buckets) <= l.cfg.PruneThreshold {
		return false
	}
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < l.cfg.PruneInterval {
		return false
	}
	l.sweeping = true
	l.lastSweep = now
	return true
}

func (l *Limiter) scheduleSweep() {
	ok := l.sched.Schedule("ratelimit_sweep", func(ctx context.Context) error {
		l.sweep()
		return nil
	})
	if !ok {
		l.mu.Lock()
		l.sweeping = false
		l.mu.Unlock()
	}
}

func (l *Limiter) sweep() {
	total := 0
	for i := 0; i < maxSweepBatches; i++ {
		l.mu.Lock()
		removed := l.pruneLocked(l.now(), 4*l.cfg.PruneBatch)
		remaining := len(l.buckets)
		l.mu.Unlock()

		total += removed
		if remaining <= l.cfg.PruneThreshold || removed == 0 {
			break
		}
	}

	l.mu.Lock()
	l.sweeping = false
	n := len(l.buckets)
	l.mu.Unlock()

	l.metrics.RateSweeps.Inc()
	l.metrics.RateBuckets.Set(float64(n))
	l.logger.Debug("ratelimit_swept", slog.Int("removed", total), slog.Int("buckets", n))
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
