package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds backoff configuration for the trial loop's error path.
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts; <0 retries forever
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier (exponential)
}

// DefaultConfig returns the defaults used by the collector: the original
// gatherer slept five seconds after any error and tried again indefinitely.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     -1,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
	}
}

// Do executes fn with exponential backoff retries.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; config.MaxRetries < 0 || attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.MaxRetries >= 0 && attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}
