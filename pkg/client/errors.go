package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrContextCancelled is returned when the context is cancelled during retry.
var ErrContextCancelled = errors.New("context cancelled")

// RequestError is returned when a request kept failing with network errors
// or 5xx responses until the retry budget ran out.
type RequestError struct {
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// APIError is a non-200 response. Reason is the first entry of the
// response's errors array when the body carries one.
type APIError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Reason     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API %s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Reason)
}

// ParseError is returned when a 200 response body is not valid JSON.
type ParseError struct {
	URL  string
	Body []byte
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// Client errors fail the same way every time.
		return false
	}
}

// errorReason extracts errors[0] from an API error body. Entries are either
// plain strings or objects with title/detail.
func errorReason(statusCode int, body []byte) string {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		first := payload.Errors[0]

		var s string
		if err := json.Unmarshal(first, &s); err == nil {
			return s
		}

		var obj struct {
			Title   string `json:"title"`
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(first, &obj); err == nil {
			parts := make([]string, 0, 2)
			for _, p := range []string{obj.Title, obj.Detail, obj.Message} {
				if p != "" {
					parts = append(parts, p)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ": ")
			}
		}
		return string(first)
	}

	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", statusCode)
}
