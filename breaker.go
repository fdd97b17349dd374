package orkestro

import (
	"sync"
	"time"
)

// CircuitState is the state of the dispatch circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreakerConfig holds circuit breaker thresholds. Zero values take
// defaults: 5 failures to open, 60s recovery, 1 success to close.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitBreaker guards the dispatch phase against a persistently failing
// endpoint. While open, dispatches fail fast with ErrCircuitOpen; after the
// recovery timeout a half-open probe is allowed through.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      CircuitBreakerConfig
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker, filling zero config values
// with defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Allow reports whether a dispatch may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		return false
	default: // StateHalfOpen
		return true
	}
}

// RecordFailure counts a dispatch failure, opening the circuit at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.failures = cb.config.FailureThreshold
		return
	}
	cb.failures++
	if cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// RecordSuccess counts a dispatch success, closing the circuit after enough
// half-open probes succeed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
