// Package testutil provides testing utilities for the change report engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock web-monitoring API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures map[string][]MockResponse

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	RequestLog        []string
	LastRequestHeader http.Header
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		failures:   make(map[string][]MockResponse),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.RequestLog = append(mock.RequestLog, r.URL.RequestURI())
		mock.LastRequestHeader = r.Header.Clone()

		// Injected failures take precedence over handlers.
		var failure *MockResponse
		if queue := mock.failures[r.URL.Path]; len(queue) > 0 {
			failure = &queue[0]
			mock.failures[r.URL.Path] = queue[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		writeResponse(w, NewErrorResponse(http.StatusNotFound, "Not Found"))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.RequestLog = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext makes the next requests to path answer with the given responses,
// in order, before the regular handler takes over again.
func (m *MockAPI) FailNext(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], responses...)
}

// SetPaginated serves records split into chunks under the API's
// {data, links: {next}} envelope. The chunk is selected by the "chunk" query
// parameter (1-based); next links repeat the incoming query so the client
// must follow them verbatim.
func (m *MockAPI) SetPaginated(path string, chunks ...[]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		chunk := 1
		if raw := query.Get("chunk"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > len(chunks) {
				writeResponse(w, NewErrorResponse(http.StatusBadRequest, "invalid chunk"))
				return
			}
			chunk = n
		}

		data := []any{}
		if len(chunks) > 0 {
			data = append(data, chunks[chunk-1]...)
		}

		var next any
		if chunk < len(chunks) {
			query.Set("chunk", strconv.Itoa(chunk+1))
			next = fmt.Sprintf("%s%s?%s", m.server.URL, path, query.Encode())
		}

		body, err := json.Marshal(map[string]any{
			"data":  data,
			"links": map[string]any{"next": next},
			"meta":  map[string]any{"chunk": chunk},
		})
		if err != nil {
			writeResponse(w, NewErrorResponse(http.StatusInternalServerError, err.Error()))
			return
		}
		writeResponse(w, NewHealthyResponse(string(body)))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockAPI) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// GetRequestLog returns the request URIs in arrival order.
func (m *MockAPI) GetRequestLog() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.RequestLog...)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewErrorResponse creates a response carrying the API's errors array.
func NewErrorResponse(status int, title string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"errors": []map[string]any{{"status": status, "title": title}},
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusServiceUnavailable, "Service Unavailable")
}
