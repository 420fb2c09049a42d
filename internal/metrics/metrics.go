// Package metrics defines barshelf's Prometheus collectors. Each Metrics
// value owns its collectors, so tests can build as many as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "barshelf"

// Cache lookup results.
const (
	ResultHitL1       = "hit_l1"
	ResultHitL2       = "hit_l2"
	ResultMiss        = "miss"
	ResultNotModified = "not_modified"
)

// Catalog sources reported by the loader.
const (
	SourceMemory  = "memory"
	SourceStore   = "store"
	SourceRebuild = "rebuild"
	SourceShared  = "shared"
)

// Metrics groups every collector.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	CacheInvalidation *prometheus.CounterVec
	CatalogLoads      *prometheus.CounterVec
	CatalogRebuilds   *prometheus.CounterVec
	RebuildDuration   prometheus.Histogram
	CatalogRecords    prometheus.Gauge
	RateDecisions     *prometheus.CounterVec
	RateBuckets       prometheus.Gauge
	RateSyncs         *prometheus.CounterVec
	RateSweeps        prometheus.Counter
	Requests          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by family and result.",
		}, []string{"family", "result"}),
		CacheInvalidation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Layer-1 purges by family and reason.",
		}, []string{"family", "reason"}),
		CatalogLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_loads_total",
			Help:      "Catalog loads by the source that satisfied them.",
		}, []string{"source"}),
		CatalogRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_rebuilds_total",
			Help:      "Catalog rebuilds from upstream by outcome.",
		}, []string{"outcome"}),
		RebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_rebuild_seconds",
			Help:      "Time to fetch and build the catalog.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CatalogRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_records",
			Help:      "Records in the current catalog.",
		}),
		RateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"outcome"}),
		RateBuckets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_buckets",
			Help:      "Live rate-limit buckets held in memory.",
		}),
		RateSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_syncs_total",
			Help:      "Counter writes to the persistent store by outcome.",
		}, []string{"outcome"}),
		RateSweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_sweeps_total",
			Help:      "Background bucket sweeps run.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Daemon requests by method and outcome.",
		}, []string{"method", "outcome"}),
	}
}

// Noop returns unregistered collectors, for components built without a
// registry.
func Noop() *Metrics {
	return New(nil)
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
