package cache

import (
	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wm_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"backend"}, // "file", "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.With(metrics.Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "wm_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheEntries tracks the number of cached responses by backend
	CacheEntries = promauto.With(metrics.Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wm_cache_entries",
			Help: "Current number of cached responses",
		},
		[]string{"backend"},
	)

	// CacheFlushes tracks writes of the cache file to disk
	CacheFlushes = promauto.With(metrics.Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "wm_cache_flushes_total",
			Help: "Total number of response cache flushes to disk",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "load", "flush", "delete"
	)
)
