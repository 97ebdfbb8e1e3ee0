// Package ratelimit implements client-side pacing of sequential API requests.
// A paginated query waits a fixed delay after each page arrives before it
// requests the next one, so long result sets do not hammer the upstream API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	wmPageDelaySeconds = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "wm_page_delay_seconds",
		Help:    "Time spent waiting between consecutive page requests",
		Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	wmPageDelaysTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "wm_page_delays_total",
		Help: "Total number of page requests that had to wait for the pacer",
	})
)

// Pacer holds each request back until Delay has passed since the previous
// response was received. A Pacer belongs to one sequence of requests and is
// not safe for concurrent use; independent sequences each get their own.
type Pacer struct {
	limiter *rate.Limiter
	limit   rate.Limit
	delay   time.Duration
	logger  zerolog.Logger
}

// NewPacer creates a pacer. A delay of zero or less never waits.
func NewPacer(delay time.Duration, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		limit:   limit,
		delay:   delay,
		logger:  logger,
	}
}

// Received marks the arrival of a response. The next Wait returns no earlier
// than Delay after this point, however long the request itself took.
func (p *Pacer) Received() {
	if p.delay <= 0 {
		return
	}
	now := time.Now()
	p.limiter = rate.NewLimiter(p.limit, 1)
	p.limiter.AllowN(now, 1)
}

// Delay returns the configured spacing.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait blocks until the next request may start. Calls before the first
// Received return immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	wmPageDelaySeconds.Observe(waited.Seconds())
	if waited > time.Millisecond {
		wmPageDelaysTotal.Inc()
		p.logger.Debug().Dur("waited", waited).Msg("Paced page request")
	}
	return nil
}
