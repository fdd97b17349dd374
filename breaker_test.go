package orkestro

import (
	"testing"
	"time"
)

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 60s", cb.config.RecoveryTimeout)
	}
	if cb.config.SuccessThreshold != 1 {
		t.Errorf("SuccessThreshold = %d, want 1", cb.config.SuccessThreshold)
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})

	if !cb.Allow() {
		t.Fatal("closed breaker must allow")
	}
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("one failure below threshold must not open")
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Error("breaker should open at the failure threshold")
	}
	if cb.Allow() {
		t.Error("open breaker must fail fast")
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("recovery timeout elapsed, probe should be allowed")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after probe success", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("probe should be allowed")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", cb.State())
	}
	if cb.Allow() {
		t.Error("reopened breaker must fail fast")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("interleaved success should reset the failure count")
	}
}
