// Package report runs the aggregation pipeline: fetch pages and versions for
// a window, classify them into groups, merge each page's annotations and
// sort the rows. The result is handed to an external formatter as JSON.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/aggregate"
	"github.com/Sternrassler/wm-change-report/pkg/cache"
	"github.com/Sternrassler/wm-change-report/pkg/logging"
	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
	"github.com/Sternrassler/wm-change-report/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators of a run.
type Deps struct {
	// Client fetches single API documents, typically a *client.Client.
	Client pagination.Fetcher

	// Store is the run cache behind Client. It is destroyed when the run
	// ends, whatever the outcome. May be nil.
	Store cache.Store

	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Options select what a run reports on.
type Options struct {
	Window        monitoring.Window
	SourceType    string
	ChunkSize     int
	PageDelay     time.Duration
	GroupPrefixes []string
}

// Report is the aggregated dataset of one run.
type Report struct {
	Window     monitoring.Window          `json:"window"`
	Groups     map[string][]aggregate.Row `json:"groups"`
	PageCount  int                        `json:"page_count"`
	GroupCount int                        `json:"group_count"`
	Duration   time.Duration              `json:"-"`
}

// MarshalJSON renders Duration as a Go duration string.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		Duration string `json:"duration"`
	}{plain: plain(r), Duration: r.Duration.String()})
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Run produces the report for opts.Window. Any fetch, API or parse error
// aborts the run with a *FatalAggregationError; no partial report is
// returned.
func Run(ctx context.Context, deps Deps, opts Options) (rep *Report, err error) {
	start := time.Now()
	logger := logging.NewLogger("report")
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		if rep != nil {
			metrics.RecordRun(outcome, rep.PageCount, rep.GroupCount, time.Since(start))
		} else {
			metrics.RecordRun(outcome, 0, 0, time.Since(start))
		}
	}()

	// The cache only lives for one run, successful or not.
	defer func() {
		if deps.Store == nil {
			return
		}
		if derr := deps.Store.Destroy(context.WithoutCancel(ctx)); derr != nil {
			logger.Error().Err(derr).Msg("Failed to destroy run cache")
		}
	}()

	if err := opts.Window.Validate(); err != nil {
		return nil, &FatalAggregationError{Stage: StageValidate, Err: err}
	}
	if deps.Client == nil {
		return nil, &FatalAggregationError{Stage: StageValidate, Err: fmt.Errorf("no API client")}
	}

	logger.Info().
		Str("window", opts.Window.String()).
		Str("source_type", opts.SourceType).
		Msg("Starting report run")

	pages, versions, err := fetch(ctx, deps.Client, opts)
	if err != nil {
		logger.Error().Err(err).Msg("Report run aborted")
		return nil, err
	}

	classification := aggregate.Classify(pages, versions, aggregate.Options{
		GroupPrefixes: opts.GroupPrefixes,
		Logger:        &logger,
	})

	groups, err := buildRows(classification.Buckets)
	if err != nil {
		logger.Error().Err(err).Msg("Report run aborted")
		return nil, err
	}

	rep = &Report{
		Window:     opts.Window,
		Groups:     groups,
		PageCount:  classification.PageCount,
		GroupCount: classification.GroupCount,
		Duration:   time.Since(start),
	}

	logger.Info().
		Int("pages", rep.PageCount).
		Int("versions", len(versions)).
		Int("groups", rep.GroupCount).
		Dur("duration", rep.Duration).
		Msg("Report run complete")

	return rep, nil
}

// fetch runs the page and version queries concurrently. Each query is
// paginated sequentially.
func fetch(ctx context.Context, client pagination.Fetcher, opts Options) ([]monitoring.Page, []monitoring.Version, error) {
	paginator := pagination.New(client, pagination.Config{PageDelay: opts.PageDelay})
	query := monitoring.QueryOptions{
		Window:     opts.Window,
		SourceType: opts.SourceType,
		ChunkSize:  opts.ChunkSize,
	}

	var (
		pages    []monitoring.Page
		versions []monitoring.Version
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := pagination.FetchAllAs[monitoring.Page](gCtx, paginator, monitoring.PagesPath, monitoring.PagesQuery(query))
		if err != nil {
			return &FatalAggregationError{Stage: StageFetchPages, Err: err}
		}
		pages = result
		return nil
	})

	g.Go(func() error {
		result, err := pagination.FetchAllAs[monitoring.Version](gCtx, paginator, monitoring.VersionsPath, monitoring.VersionsQuery(query))
		if err != nil {
			return &FatalAggregationError{Stage: StageFetchVersions, Err: err}
		}
		versions = result
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pages, versions, nil
}

// buildRows turns every bucket into sorted rows, one per page. A row is
// represented by the page's Latest capture and carries the annotation
// merged from Latest back to the oldest capture.
func buildRows(buckets *aggregate.Buckets) (map[string][]aggregate.Row, error) {
	groups := make(map[string][]aggregate.Row, buckets.Len())
	for _, key := range buckets.Keys() {
		bucket, _ := buckets.Get(key)

		rows := make([]aggregate.Row, 0, bucket.Len())
		for _, page := range bucket.Pages() {
			chain := chainFromLatest(page)
			annotation, err := aggregate.MergeChain(chain)
			if err != nil {
				return nil, &FatalAggregationError{
					Stage: StageMerge,
					Err:   fmt.Errorf("page %s: %w", page.UUID, err),
				}
			}
			rows = append(rows, aggregate.Row{
				Page:       page,
				Version:    *page.Latest,
				Annotation: annotation,
			})
		}
		groups[key] = aggregate.Sort(rows)
	}
	return groups, nil
}

// chainFromLatest returns the page's versions from Latest to the oldest.
// For an error-fallback copy Latest is an older capture, so the newer
// error captures are left out.
func chainFromLatest(page *monitoring.Page) []monitoring.Version {
	if page.Latest == nil {
		return nil
	}
	for i := range page.Versions {
		if page.Versions[i].UUID == page.Latest.UUID {
			return page.Versions[i:]
		}
	}
	return page.Versions
}
