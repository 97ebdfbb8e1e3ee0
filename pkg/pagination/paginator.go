package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/client"
	"github.com/Sternrassler/wm-change-report/pkg/logging"
	"github.com/Sternrassler/wm-change-report/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// ErrStop may be returned by a Walk callback to end pagination early
// without an error.
var ErrStop = errors.New("stop pagination")

// Fetcher is the single-request interface the paginator needs. It is
// satisfied by *client.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, query url.Values) (json.RawMessage, error)
}

// Config holds paginator configuration
type Config struct {
	// PageDelay is waited between receiving one page of a query and
	// requesting the next. Zero disables pacing.
	PageDelay time.Duration
}

// Page is one chunk of a paginated result set.
type Page struct {
	// Number is 1-based.
	Number int
	URL    string
	Data   []json.RawMessage
	Next   string
}

// envelope is the list response shape: {data: [...], links: {next: ...}}.
type envelope struct {
	Data  []json.RawMessage `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
	Meta struct {
		TotalResults *int `json:"total_results"`
	} `json:"meta"`
}

// Paginator follows next links to assemble complete result sets.
type Paginator struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator.
func New(fetcher Fetcher, config Config) *Paginator {
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}
	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("paginator"),
	}
}

// Walk fetches the pages of a query one at a time and hands each to fn.
// Page k+1 is requested only after page k was received and fn returned.
// Any fetch or decode error aborts the walk.
func (p *Paginator) Walk(ctx context.Context, path string, query url.Values, fn func(Page) error) error {
	start := time.Now()
	pacer := ratelimit.NewPacer(p.config.PageDelay, p.logger)

	target, params := path, query
	records := 0
	for number := 1; ; number++ {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}

		body, err := p.fetcher.Fetch(ctx, target, params)
		pacer.Received()
		if err != nil {
			return fmt.Errorf("fetch page %d of %s: %w", number, path, err)
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return &client.ParseError{URL: target, Body: body, Err: fmt.Errorf("decode list envelope: %w", err)}
		}

		page := Page{Number: number, URL: target, Data: env.Data}
		if env.Links.Next != nil {
			page.Next = *env.Links.Next
		}
		records += len(page.Data)

		if number == 1 && env.Meta.TotalResults != nil {
			p.logger.Debug().
				Str("path", path).
				Int("total_results", *env.Meta.TotalResults).
				Msg("Starting paginated fetch")
		}

		if err := fn(page); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}

		if page.Next == "" {
			p.logger.Info().
				Str("path", path).
				Int("pages", number).
				Int("records", records).
				Dur("duration", time.Since(start)).
				Msg("Fetch complete")
			return nil
		}

		// Next links are complete URLs; the original query is already in them.
		target, params = page.Next, nil
	}
}

// FetchAll returns every record of a query, flattened in page order. No
// partial result is returned on failure.
func (p *Paginator) FetchAll(ctx context.Context, path string, query url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	err := p.Walk(ctx, path, query, func(page Page) error {
		all = append(all, page.Data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// FetchAllAs is FetchAll followed by Decode.
func FetchAllAs[T any](ctx context.Context, p *Paginator, path string, query url.Values) ([]T, error) {
	records, err := p.FetchAll(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return Decode[T](records)
}

// Decode unmarshals raw records into typed values.
func Decode[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, len(records))
	for i, raw := range records {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			return nil, &client.ParseError{Body: raw, Err: fmt.Errorf("decode record %d: %w", i, err)}
		}
	}
	return out, nil
}
