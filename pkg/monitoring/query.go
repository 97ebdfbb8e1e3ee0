package monitoring

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// API paths.
const (
	PagesPath    = "/api/v0/pages"
	VersionsPath = "/api/v0/versions"
)

// DefaultChunkSize is the page-size hint sent with every list query.
const DefaultChunkSize = 1000

// Window is the capture-time range a report covers.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LastDays returns the window of the given number of days ending at end.
func LastDays(end time.Time, days int) Window {
	return Window{From: end.AddDate(0, 0, -days), To: end}
}

// Validate checks that the window is non-empty and ordered.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return fmt.Errorf("window bounds must be set")
	}
	if !w.From.Before(w.To) {
		return fmt.Errorf("window start %s is not before end %s",
			w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// String renders the window as the API's "<start>..<end>" range.
func (w Window) String() string {
	return w.From.UTC().Format(time.RFC3339) + ".." + w.To.UTC().Format(time.RFC3339)
}

// QueryOptions are the knobs shared by the page and version queries.
type QueryOptions struct {
	Window Window
	// SourceType filters by capture source; empty means any source.
	SourceType string
	ChunkSize  int
}

func (o QueryOptions) base() url.Values {
	q := url.Values{}
	q.Set("capture_time", o.Window.String())
	if o.SourceType != "" {
		q.Set("source_type", o.SourceType)
	}
	chunk := o.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	q.Set("chunk_size", strconv.Itoa(chunk))
	return q
}

// PagesQuery lists active pages with at least one capture in the window.
func PagesQuery(o QueryOptions) url.Values {
	q := o.base()
	q.Set("include_earliest", "true")
	q.Set("active", "true")
	q.Set("sort", "url:asc")
	return q
}

// VersionsQuery lists changed versions in the window, newest first.
func VersionsQuery(o QueryOptions) url.Values {
	q := o.base()
	q.Set("different", "true")
	q.Set("include_change_from_previous", "true")
	q.Set("sort", "capture_time:desc")
	return q
}
