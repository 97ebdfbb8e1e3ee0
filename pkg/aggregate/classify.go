package aggregate

import (
	"github.com/Sternrassler/wm-change-report/pkg/logging"
	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for data integrity issues found while classifying.
var (
	wmDataWarningsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wm_data_warnings_total",
		Help: "Records dropped during classification by reason",
	}, []string{"reason"})

	wmErrorFallbacksTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "wm_error_fallbacks_total",
		Help: "Pages with an erroring latest capture that were also reported with an older healthy capture",
	})
)

// Options configures Classify.
type Options struct {
	// GroupPrefixes are matched against tag names, in order, to build the
	// group key.
	GroupPrefixes []string

	// Logger receives data integrity warnings. Nil uses the global logger.
	Logger *zerolog.Logger
}

// Classification is the outcome of joining pages with their versions.
type Classification struct {
	Buckets *Buckets

	// PageCount is the number of input pages, bucketed or not.
	PageCount int

	// GroupCount is the number of buckets, the errors bucket included.
	GroupCount int
}

// Classify attaches versions to their pages, computes each page's group and
// sorts pages into buckets.
//
// Pages are modified in place: Group, Versions and Latest are set. Versions
// must arrive newest first; their order within a page is kept. Orphan
// versions and pages without versions are logged and skipped.
//
// A page whose latest capture is an error goes to the errors bucket. If an
// older capture is healthy, a shallow copy of the page with Latest pointing
// at that capture also goes to the page's group.
func Classify(pages []monitoring.Page, versions []monitoring.Version, opts Options) Classification {
	logger := logging.NewLogger("classifier")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	byUUID := make(map[string]*monitoring.Page, len(pages))
	for i := range pages {
		page := &pages[i]
		page.Versions = nil
		page.Latest = nil
		byUUID[page.UUID] = page
	}

	for _, v := range versions {
		page, ok := byUUID[v.PageUUID]
		if !ok {
			wmDataWarningsTotal.WithLabelValues("orphan_version").Inc()
			logger.Warn().
				Str("version_uuid", v.UUID).
				Str("page_uuid", v.PageUUID).
				Msg("Orphan version, no matching page")
			continue
		}
		page.Versions = append(page.Versions, v)
	}

	buckets := NewBuckets()
	for i := range pages {
		page := &pages[i]
		page.Group = GroupKey(page.TagNames(), opts.GroupPrefixes)

		if len(page.Versions) == 0 {
			wmDataWarningsTotal.WithLabelValues("no_versions").Inc()
			logger.Warn().
				Str("page_uuid", page.UUID).
				Str("url", page.URL).
				Msg("Page has no versions in window")
			continue
		}
		page.Latest = &page.Versions[0]

		if !page.Latest.IsError() {
			buckets.Bucket(page.Group).Add(page)
			continue
		}

		buckets.Bucket(ErrorsBucket).Add(page)
		for j := 1; j < len(page.Versions); j++ {
			if page.Versions[j].IsError() {
				continue
			}
			fallback := *page
			fallback.Latest = &page.Versions[j]
			buckets.Bucket(page.Group).Add(&fallback)
			wmErrorFallbacksTotal.Inc()
			logger.Debug().
				Str("page_uuid", page.UUID).
				Str("group", page.Group).
				Str("version_uuid", fallback.Latest.UUID).
				Msg("Reporting last healthy capture behind error")
			break
		}
	}

	return Classification{
		Buckets:    buckets,
		PageCount:  len(pages),
		GroupCount: buckets.Len(),
	}
}
