// Package cache provides the run-scoped response cache used by the API client.
//
// The cache exists to make a single report run resilient: if the process is
// interrupted and restarted within the same run, responses that were already
// received are served without touching the network. It is not a long-lived
// store and is destroyed when the run ends, successfully or not.
//
// # Keys
//
// Entries are keyed by canonical request URL. Canonical merges the URL's own
// query with the request parameters and serializes them with keys sorted, so
// the same logical request always maps to the same entry:
//
//	key, err := cache.Canonical("https://api.example/api/v0/pages", url.Values{
//		"chunk_size": {"1000"},
//		"active":     {"true"},
//	})
//	// https://api.example/api/v0/pages?active=true&chunk_size=1000
//
// # Backends
//
// FileStore persists the cache as one JSON object mapping canonical URL to
// raw response body. Writes are debounced (DefaultDebounceWindow) so a burst
// of responses causes a single disk write:
//
//	store, err := cache.OpenFile(cache.FileOptions{Path: "cache/responses.json"})
//	defer store.Destroy(ctx)
//
// RedisStore keeps the same mapping in a Redis hash named after the run id,
// for deployments that restart on other hosts:
//
//	store := cache.NewRedisStore(redisClient, runID, 0)
//
// # Metrics
//
//   - wm_cache_hits_total{backend} - Cache hits
//   - wm_cache_misses_total - Cache misses
//   - wm_cache_entries{backend} - Cached responses
//   - wm_cache_flushes_total - File flushes
//   - wm_cache_errors_total{operation} - Cache operation errors
package cache
