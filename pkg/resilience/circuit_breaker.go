// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed lets every call through.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen rejects calls without running them.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen lets trial calls through to check whether the backend recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// ErrCircuitOpen is the cause of every call rejected by an open circuit.
var ErrCircuitOpen = stderrors.New("circuit open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// Name identifies the breaker in errors and logs.
	Name string

	// Counts decides which errors count as failures. Nil counts every
	// error except context cancellation.
	Counts func(ctx context.Context, err error) bool
}

// CircuitBreaker fails fast while a backend keeps failing. Calls run
// outside the lock, so concurrent callers are not serialized.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu           sync.Mutex
	state        CircuitBreakerState
	failures     int
	successes    int
	lastFailTime time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	if config.Counts == nil {
		config.Counts = func(ctx context.Context, err error) bool { return ctx.Err() == nil }
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Call runs fn unless the circuit is open, in which case it returns a
// recoverable 503 error without calling fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return errors.New(errors.CodeInternal, "circuit breaker open", ErrCircuitOpen).
			WithContext("breaker", cb.config.Name).
			WithRecoverable(true).
			WithStatusCode(http.StatusServiceUnavailable)
	}
	err := fn(ctx)
	cb.record(err == nil, err != nil && cb.config.Counts(ctx, err))
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailTime) > cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.failures = 0
	}
	return cb.state != StateOpen
}

func (cb *CircuitBreaker) record(ok, counted bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case ok:
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.failures = 0
				cb.successes = 0
			}
			return
		}
		cb.failures = 0
	case counted:
		cb.failures++
		cb.lastFailTime = cb.now()
		// A failed trial call reopens at once.
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}
