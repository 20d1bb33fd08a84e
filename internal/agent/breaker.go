package agent

import (
	"sync"
	"time"
)

// CircuitBreaker stops calling a failing provider after consecutive
// failures and lets calls through again once the cooldown has passed.
type CircuitBreaker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	threshold           int
	cooldown            time.Duration
	openUntil           time.Time
	now                 func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given threshold.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3 // default
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may be made.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.openUntil.IsZero() {
		return true
	}
	return !cb.now().Before(cb.openUntil)
}

// RecordFailure increments the failure counter and opens the breaker once
// the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.threshold {
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.openUntil = time.Time{}
}

// OpenUntil returns when the breaker closes again, or the zero time.
func (cb *CircuitBreaker) OpenUntil() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.openUntil
}

// ConsecutiveFailures returns the current failure count (thread-safe).
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}
