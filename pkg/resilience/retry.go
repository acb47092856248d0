// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides caller-side retry and circuit breaking.
// The retrieval core never retries on its own; callers opt in here.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter between 0 and 1; 0.1 means ±10%.
	Jitter float64

	// IsRecoverable decides whether an error is worth another attempt.
	// Nil uses Recoverable.
	IsRecoverable func(error) bool

	// OnRetry runs before each new attempt with the error that caused it.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns three attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithOnRetry returns a new config with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do runs fn until it succeeds, fails with an unrecoverable error or runs
// out of attempts. The last error is returned.
func (rc RetryConfig) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, rc, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is Do for functions that return a value.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = Recoverable
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := rc.backoff(attempt)
			if rc.OnRetry != nil {
				rc.OnRetry(attempt+1, lastErr, delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, errors.New(errors.CodeTimeout, "context done during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", rc.MaxAttempts).
					WithRecoverable(false)
			case <-timer.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !rc.IsRecoverable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// backoff computes initialDelay * multiplier^(attempt-1) with jitter,
// capped at MaxDelay.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	mult := rc.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := float64(delay) * rc.Jitter
		delay += time.Duration(spread * (2*rand.Float64() - 1))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Recoverable reports whether any *errors.Error in err's chain is marked
// recoverable. Errors outside the taxonomy are retried.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	found := false
	for cur := err; cur != nil; {
		var e *errors.Error
		if !stderrors.As(cur, &e) {
			break
		}
		found = true
		if e.Recoverable {
			return true
		}
		cur = e.Err
	}
	return !found
}
