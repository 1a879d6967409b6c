// Package resilience holds the retry, politeness and isolation helpers shared by adapters and the pipeline.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrAttemptsExhausted wraps the last error once every attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// DelayRange is a closed interval a random pause is drawn from.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a uniformly distributed duration from the range.
func (d DelayRange) Pick() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rand.N(d.Max-d.Min+1)
}

// Policy configures Retry.
type Policy struct {
	// Attempts counts every call, the first one included. Values below 1 mean 1.
	Attempts int
	Delay    DelayRange
}

// DefaultPolicy mirrors the politeness defaults used by the scrapers.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: DelayRange{Min: time.Second, Max: 5 * time.Second}}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Retry calls fn until it succeeds, returns a permanent error, or runs out of attempts.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || IsFatal(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := Sleep(ctx, policy.Delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, lastErr)
}

// Sleep pauses for a random duration from the range unless ctx ends first.
func Sleep(ctx context.Context, delay DelayRange) error {
	d := delay.Pick()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
