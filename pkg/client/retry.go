package client

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/resumekit/gateway/pkg/apierror"
)

// Policy configures the retry wrapper. It is a plain value, not shared
// mutable state.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry decides whether a failure is worth another attempt.
	// The default retries only when no HTTP response was received at all.
	ShouldRetry func(error) bool
}

// DefaultPolicy matches the product defaults: three retries, delays
// doubling from one second up to ten, transport failures only.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		ShouldRetry:  IsTransient,
	}
}

// IsTransient reports whether the error means no HTTP response was
// received (connection refused, DNS failure, timeout). HTTP error
// responses are never transient.
func IsTransient(err error) bool {
	if apierror.HasCode(err, apierror.CodeTransientNetwork) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Retry runs fn until it succeeds, the error is not retryable, or the
// attempt budget is spent. It is a bounded iterative loop carrying
// (attempt, delay) state: the delay starts at InitialDelay and doubles
// after each failed attempt, capped at MaxDelay. Non-retryable errors
// propagate immediately and unmodified, with zero delay.
func Retry[T any](ctx context.Context, policy Policy, fn func() (T, error)) (T, error) {
	shouldRetry := policy.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	delay := policy.InitialDelay

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !shouldRetry(err) || attempt >= policy.MaxRetries {
			return zero, err
		}

		if waitErr := wait(ctx, delay); waitErr != nil {
			return zero, waitErr
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
