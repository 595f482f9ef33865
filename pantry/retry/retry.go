// Package retry repeats an operation with exponential backoff.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config controls Do. Zero fields take the defaults noted.
type Config struct {
	// Attempts including the first. Default 3.
	Attempts int

	// Delay before the first retry. Default 200ms.
	Delay time.Duration

	// MaxDelay caps the growing delay. Default 5s.
	MaxDelay time.Duration

	// Jitter is the fraction of each delay that is randomized (0..1).
	Jitter float64

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Delay <= 0 {
		c.Delay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0
	}
	return c
}

// Do calls fn until it succeeds, the attempts run out, or ctx is done.
// The delay doubles after each failure. It returns fn's last error, or
// ctx.Err() if fn never ran.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	delay := cfg.Delay

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}
		if last = fn(ctx); last == nil {
			return nil
		}
		if attempt >= cfg.Attempts {
			return last
		}

		wait := jitter(delay, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, last, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
		delay = min(delay*2, cfg.MaxDelay)
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac == 0 {
		return d
	}
	spread := float64(d) * frac
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}
