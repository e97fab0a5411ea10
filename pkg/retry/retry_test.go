package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     -1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoRetriesForeverUntilSuccess(t *testing.T) {
	// MaxRetries < 0 keeps going past any fixed attempt count.
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 7 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 7 {
		t.Errorf("Expected 7 calls, got %d", calls)
	}
}

func TestDoStopsAfterMaxRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2

	calls := 0
	wantErr := errors.New("persistent")
	err := Do(context.Background(), cfg, func() error {
		calls++
		return wantErr
	})
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected wrapped %v, got %v", wantErr, err)
	}
	// Initial attempt plus two retries.
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if !strings.Contains(err.Error(), "retry cancelled") {
			t.Errorf("Unexpected error message: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}

	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no calls, got %d", calls)
	}
}

func TestBackoffIsCappedAtMax(t *testing.T) {
	cfg := Config{
		MaxRetries:     4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     10.0,
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error {
		return errors.New("transient")
	})
	// Four backoffs, each capped at 2ms. Uncapped the third alone would
	// be 100ms.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Backoff not capped: took %v", elapsed)
	}
}
