// Package client provides the web-monitoring API client with run-scoped
// response caching, retries and typed errors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/cache"
	"github.com/Sternrassler/wm-change-report/pkg/logging"
	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for API client operations.
var (
	wmRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wm_requests_total",
		Help: "Total API requests by outcome",
	}, []string{"status"})

	wmRequestDuration = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "wm_request_duration_seconds",
		Help:    "API fetch duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	wmErrorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wm_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents any other non-200 status.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// Client fetches JSON documents from the web-monitoring API.
type Client struct {
	httpClient *http.Client
	cache      cache.Store
	config     Config
	baseURL    *url.URL
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root that relative paths resolve against.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Optional HTTP basic auth credentials.
	Username string
	Password string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new API client. store may be nil to disable caching.
func New(cfg Config, store cache.Store) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:   store,
		config:  cfg,
		baseURL: base,
		logger:  logging.NewLogger("api-client"),
	}, nil
}

// response is the outcome of one HTTP attempt.
type response struct {
	statusCode int
	body       []byte
}

// Fetch GETs rawURL with query appended and returns the JSON body.
//
// Responses are looked up in the cache under the canonical URL first. On a
// miss, network errors and 5xx responses are retried; a successful body is
// stored in the cache before it is returned.
func (c *Client) Fetch(ctx context.Context, rawURL string, query url.Values) (json.RawMessage, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	key, err := cache.Canonical(c.baseURL.ResolveReference(ref).String(), query)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		body, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", key).Msg("Cache hit")
			wmRequestsTotal.WithLabelValues("cache_hit").Inc()
			return json.RawMessage(body), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", key).Msg("Cache get error")
		}
	}

	startTime := time.Now()
	defer func() {
		wmRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var resp response
	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var attemptErr error
		resp, attemptErr = c.do(ctx, key)
		return attemptErr
	}, func(err error) ErrorClass {
		if ctx.Err() != nil {
			// The caller gave up; retrying would only fail again.
			return ""
		}
		return classifyError(err)
	})

	if retryErr != nil {
		var reqErr *RequestError
		if errors.As(retryErr, &reqErr) {
			reqErr.URL = key
		}
		return nil, retryErr
	}

	if resp.statusCode != http.StatusOK {
		apiErr := &APIError{
			URL:        key,
			StatusCode: resp.statusCode,
			ErrorClass: classifyStatus(resp.statusCode),
			Reason:     errorReason(resp.statusCode, resp.body),
		}
		c.logger.Error().
			Str("url", key).
			Int("status", resp.statusCode).
			Str("reason", apiErr.Reason).
			Msg("API request rejected")
		return nil, apiErr
	}

	if !json.Valid(resp.body) {
		wmErrorsTotal.WithLabelValues("parse").Inc()
		return nil, &ParseError{URL: key, Body: resp.body, Err: errors.New("invalid JSON body")}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, resp.body); err != nil {
			c.logger.Warn().Err(err).Str("url", key).Msg("Failed to cache response")
		}
	}

	return json.RawMessage(resp.body), nil
}

// do performs a single HTTP attempt. 5xx responses come back as errors so
// the retry loop sees them; every other status is returned as a response.
func (c *Client) do(ctx context.Context, target string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	c.logger.Debug().Str("url", target).Msg("Executing API request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		wmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		wmRequestsTotal.WithLabelValues("network_error").Inc()
		return response{}, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		wmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		wmRequestsTotal.WithLabelValues("network_error").Inc()
		return response{}, fmt.Errorf("read response body: %w", err)
	}

	wmRequestsTotal.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode >= 500 {
		wmErrorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return response{}, &APIError{
			URL:        target,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassServer,
			Reason:     errorReason(httpResp.StatusCode, body),
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		wmErrorsTotal.WithLabelValues(string(classifyStatus(httpResp.StatusCode))).Inc()
	}

	return response{statusCode: httpResp.StatusCode, body: body}, nil
}

// classifyError categorizes an attempt error for the retry loop.
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ErrorClassUnexpected
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetLogger replaces the component logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}
