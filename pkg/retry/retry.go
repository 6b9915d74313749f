package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig suits best-effort durable writes: short, bounded, jittered.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  2,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do executes fn with exponential backoff. The context bounds the whole
// sequence; cancellation wins over remaining attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if !cfg.Enabled {
		return fn()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts+1, lastErr)
}
