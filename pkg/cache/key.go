package cache

import (
	"fmt"
	"net/url"
)

// Canonical builds the cache key for a GET request: the URL with its own
// query merged with query, serialized with keys in alphabetical order.
// Two logically identical requests always share a key, whatever order
// their parameters were added in.
//
// Example:
//
//	Canonical("https://api.example/v0/pages?sort=url:asc", url.Values{"active": {"true"}})
//	// https://api.example/v0/pages?active=true&sort=url%3Aasc
func Canonical(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	merged := u.Query()
	for key, values := range query {
		merged[key] = append(merged[key], values...)
	}

	u.Fragment = ""
	u.RawFragment = ""
	// Encode sorts by key.
	u.RawQuery = merged.Encode()

	return u.String(), nil
}
