package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff.
// Everything else fails fast: credential problems and bad requests don't
// get better by asking again.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, not retries
	BaseDelay   time.Duration // doubled after each failed attempt
}

// DefaultRetryPolicy matches the provider budget: 3 attempts, 1s/2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs op until it succeeds, fails non-transiently, or the attempt
// budget runs out. The backoff sleep respects ctx.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.BaseDelay << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err = op(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}

	// Spent the whole budget on transient failures: surface a provider
	// failure, keeping the transient cause in the chain
	name := ""
	var te *TransientError
	if errors.As(err, &te) {
		name = te.Provider
	}
	return &ProviderError{
		Provider: name,
		Err:      fmt.Errorf("after %d attempts: %w", attempts, err),
	}
}
