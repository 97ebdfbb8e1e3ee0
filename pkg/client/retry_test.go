package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.BaseBackoff != 1*time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", config.BaseBackoff)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	config := DefaultRetryConfig()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: 1, want: 0},
		{retry: 2, want: 1 * time.Second},
		{retry: 3, want: 2 * time.Second},
		{retry: 4, want: 4 * time.Second},
	}

	for _, tt := range tests {
		if got := config.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	fn := func() error {
		callCount++
		return nil
	}

	err := retryWithBackoff(ctx, fastRetry(), zerolog.Nop(), fn, func(error) ErrorClass {
		return ErrorClassServer
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	ctx := context.Background()

	// Function fails twice, then succeeds
	callCount := 0
	fn := func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := retryWithBackoff(ctx, fastRetry(), zerolog.Nop(), fn, func(error) ErrorClass {
		return ErrorClassServer
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_RetriesExhausted(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	testErr := errors.New("persistent error")
	fn := func() error {
		callCount++
		return testErr
	}

	err := retryWithBackoff(ctx, fastRetry(), zerolog.Nop(), fn, func(error) ErrorClass { return ErrorClassNetwork })

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %v", err)
	}
	if reqErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", reqErr.Attempts)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	// Initial request plus three retries
	if callCount != 4 {
		t.Errorf("Expected 4 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	testErr := errors.New("client error")
	fn := func() error {
		callCount++
		return testErr
	}

	err := retryWithBackoff(ctx, fastRetry(), zerolog.Nop(), fn, func(error) ErrorClass { return ErrorClassClient })

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		t.Error("Should not return *RequestError for client errors (no retry attempted)")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 1 {
			// Cancel context after first failure
			cancel()
		}
		return errors.New("error")
	}

	err := retryWithBackoff(ctx, RetryConfig{MaxRetries: 3, BaseBackoff: time.Hour}, zerolog.Nop(), fn,
		func(error) ErrorClass { return ErrorClassServer })

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation took effect, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	ctx := context.Background()

	timestamps := []time.Time{}
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		return errors.New("error")
	}

	cfg := RetryConfig{MaxRetries: 3, BaseBackoff: 40 * time.Millisecond}
	_ = retryWithBackoff(ctx, cfg, zerolog.Nop(), fn, func(error) ErrorClass { return ErrorClassServer })

	if len(timestamps) != 4 {
		t.Fatalf("Expected 4 timestamps, got %d", len(timestamps))
	}

	// First retry immediate, then base, then 2*base
	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])
	thirdDelay := timestamps[3].Sub(timestamps[2])

	if firstDelay > 30*time.Millisecond {
		t.Errorf("First retry delay %v, want immediate", firstDelay)
	}
	if secondDelay < 40*time.Millisecond {
		t.Errorf("Second retry delay %v, want >= 40ms", secondDelay)
	}
	if thirdDelay < 80*time.Millisecond {
		t.Errorf("Third retry delay %v, want >= 80ms", thirdDelay)
	}
}
