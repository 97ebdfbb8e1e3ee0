// Package pagination assembles complete result sets from the API's
// next-link paginated list endpoints.
//
// Every list response has the shape {data: [...], links: {next: url|null}}.
// Pages of one query are fetched strictly in order, optionally spaced by a
// fixed delay; independent queries may run concurrently, each with its own
// Paginator walk.
//
// Example usage:
//
//	p := pagination.New(apiClient, pagination.Config{PageDelay: 500 * time.Millisecond})
//	pages, err := pagination.FetchAllAs[monitoring.Page](ctx, p, monitoring.PagesPath, query)
//
// Walk is the lazy form: the callback sees one page at a time and may return
// ErrStop to end early.
package pagination
