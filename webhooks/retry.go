package webhooks

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
)

type SleepFunc func(ctx context.Context, delay time.Duration) error

type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Sleep          SleepFunc
}

// ExponentialRetryPolicy doubles the delay on every attempt without jitter
// or a ceiling; the attempt bound is what keeps it finite.
type ExponentialRetryPolicy struct {
	Initial time.Duration
}

// NextDelay returns initial * 2^(attempt-1).
func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// EnqueueWithRetry calls fn up to MaxRetries times and stops on the first
// success. It returns the number of attempts made and the last error.
func EnqueueWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("webhooks: enqueue function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	policy := ExponentialRetryPolicy{Initial: cfg.InitialBackoff}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxRetries {
			break
		}
		if err := sleep(ctx, policy.NextDelay(attempt)); err != nil {
			return attempt, fmt.Errorf("webhooks: enqueue retry aborted: %w (last error: %v)", err, lastErr)
		}
	}
	return maxRetries, lastErr
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
