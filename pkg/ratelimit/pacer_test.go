package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPacer_ZeroDelayNeverWaits(t *testing.T) {
	p := NewPacer(0, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("zero-delay pacer waited %v", elapsed)
	}
}

func TestPacer_SpacesRequests(t *testing.T) {
	delay := 40 * time.Millisecond
	p := NewPacer(delay, zerolog.Nop())
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		stamps = append(stamps, time.Now())
	}

	for i := 1; i < len(stamps); i++ {
		// Allow scheduler slack below the nominal delay
		if gap := stamps[i].Sub(stamps[i-1]); gap < delay-5*time.Millisecond {
			t.Errorf("gap %d = %v, want >= %v", i, gap, delay)
		}
	}
}

func TestPacer_DelayCountsFromReceived(t *testing.T) {
	delay := 40 * time.Millisecond
	p := NewPacer(delay, zerolog.Nop())
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	// A response slower than the delay
	time.Sleep(2 * delay)
	p.Received()
	received := time.Now()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if gap := time.Since(received); gap < delay-5*time.Millisecond {
		t.Errorf("waited %v after the response, want >= %v", gap, delay)
	}
}

func TestPacer_ReceivedWithoutDelay(t *testing.T) {
	p := NewPacer(0, zerolog.Nop())
	p.Received()

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("zero-delay pacer waited %v", elapsed)
	}
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	// First token is free
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait() should fail once the context is cancelled")
	}
}

func TestPacer_Delay(t *testing.T) {
	if got := NewPacer(250*time.Millisecond, zerolog.Nop()).Delay(); got != 250*time.Millisecond {
		t.Errorf("Delay() = %v", got)
	}
}
