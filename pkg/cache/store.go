package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the persisted cache could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrDestroyed is returned by stores used after Destroy
	ErrDestroyed = errors.New("cache destroyed")
)

// Store is a run-scoped mapping from canonical request URL to the raw
// response body received for it. A Store lives for exactly one run: it is
// created at start, shared by every component that fetches, and destroyed
// at the end whether the run succeeded or not.
type Store interface {
	// Get returns the cached body for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set records body under key. Persistence may be deferred.
	Set(ctx context.Context, key string, body []byte) error

	// Flush persists any pending writes immediately.
	Flush(ctx context.Context) error

	// Destroy flushes, then removes all persisted state.
	Destroy(ctx context.Context) error
}
