// Package metrics holds the run-level report metrics and the registry they
// share with the rest of the module.
//
// Component metrics are defined next to the code that updates them (client,
// cache, ratelimit, aggregate) and registered on Registry through
// promauto.With. A report run is a batch job, so instead of a scrape endpoint the
// collected values can be written to a node_exporter textfile at exit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the registerer all wm_ metrics are registered on.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	wmReportRunsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wm_report_runs_total",
		Help: "Report runs by outcome",
	}, []string{"outcome"})

	wmReportDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "wm_report_duration_seconds",
		Help:    "Wall time of a report run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	wmReportPages = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "wm_report_pages",
		Help: "Pages returned by the last successful run",
	})

	wmReportGroups = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "wm_report_groups",
		Help: "Groups in the last successful run, errors bucket included",
	})
)

// RecordRun records the outcome of one report run. Page and group counts
// are only kept for successful runs.
func RecordRun(outcome string, pages, groups int, duration time.Duration) {
	wmReportRunsTotal.WithLabelValues(outcome).Inc()
	wmReportDuration.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		wmReportPages.Set(float64(pages))
		wmReportGroups.Set(float64(groups))
	}
}

// WriteTextfile writes all gathered metrics to path in the text exposition
// format, atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Gatherer)
}

// Metrics catalogue
//
// Requests (pkg/client):
//   - wm_requests_total{status} (Counter): fetches by HTTP status, cache_hit or network_error
//   - wm_request_duration_seconds (Histogram): fetch duration, retries included
//   - wm_errors_total{class} (Counter): errors by class (client, server, network, unexpected, parse)
//   - wm_retries_total{error_class} (Counter): retry attempts
//   - wm_retry_backoff_seconds{error_class} (Histogram): time slept before retries
//   - wm_retry_exhausted_total{error_class} (Counter): fetches that ran out of retries
//
// Cache (pkg/cache):
//   - wm_cache_hits_total{backend} (Counter)
//   - wm_cache_misses_total (Counter)
//   - wm_cache_entries{backend} (Gauge): responses held by the run cache
//   - wm_cache_flushes_total (Counter): file cache writes to disk
//   - wm_cache_errors_total{operation} (Counter)
//
// Pagination (pkg/ratelimit):
//   - wm_page_delay_seconds (Histogram): wait before each page request
//   - wm_page_delays_total (Counter): page requests that had to wait
//
// Classification (pkg/aggregate):
//   - wm_data_warnings_total{reason} (Counter): orphan versions, pages without versions
//   - wm_error_fallbacks_total (Counter): error pages also reported with an older healthy capture
//
// Runs (this package):
//   - wm_report_runs_total{outcome}, wm_report_duration_seconds, wm_report_pages, wm_report_groups
//
// Example queries:
//
//	# Cache hit rate
//	sum(wm_cache_hits_total) / (sum(wm_cache_hits_total) + wm_cache_misses_total)
//
//	# Failed runs in the last day
//	increase(wm_report_runs_total{outcome="failure"}[1d])
