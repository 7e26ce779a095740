package resilience

import (
	"context"
	"time"
)

type RetryConfig struct {
	MaxAttempts       uint
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Delay returns the backoff delay before the given retry attempt.
// Attempts are counted from 1; the delay grows geometrically and is
// capped at MaxDelay.
func (c *RetryConfig) Delay(attempt uint) time.Duration {
	delay := float64(c.InitialDelay)
	for i := uint(1); i < attempt; i++ {
		delay *= c.BackoffMultiplier
	}

	if d := time.Duration(delay); d < c.MaxDelay {
		return d
	}
	return c.MaxDelay
}

type RetryHook interface {
	OnRetryAttempt(ctx context.Context, attempt uint, err error, nextDelay time.Duration)
	OnRetrySuccess(ctx context.Context, attempts uint, totalDuration time.Duration)
	OnRetryFailure(ctx context.Context, err error, attempts uint, totalDuration time.Duration)
}
