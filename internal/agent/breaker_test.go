package agent

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	if !cb.Allow() {
		t.Error("Allow should be true after 2 failures (threshold is 3)")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Error("Allow should be false after 3 failures")
	}
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if !cb.Allow() {
		t.Error("Allow should be true after success reset")
	}
	if got := cb.ConsecutiveFailures(); got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}

func TestCircuitBreakerCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should be open right after the failure")
	}
	if want := now.Add(30 * time.Second); !cb.OpenUntil().Equal(want) {
		t.Errorf("OpenUntil = %v, want %v", cb.OpenUntil(), want)
	}

	now = now.Add(31 * time.Second)
	if !cb.Allow() {
		t.Error("breaker should allow calls after the cooldown")
	}
}

func TestCircuitBreakerDefaultThreshold(t *testing.T) {
	cb := NewCircuitBreaker(0, time.Minute)
	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if !cb.Allow() {
		t.Error("default threshold is 3; 2 failures must not open the breaker")
	}
}

func TestCircuitBreakerConcurrent(t *testing.T) {
	cb := NewCircuitBreaker(100, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure()
		}()
	}
	wg.Wait()
	if cb.ConsecutiveFailures() != 50 {
		t.Errorf("ConsecutiveFailures = %d, want 50", cb.ConsecutiveFailures())
	}
}
