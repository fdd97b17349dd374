package orkestro

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/orkestro/internal/backoff"
)

// RetryStrategy decides whether a classified failure is retried and with
// what delay. attempt is 1-based: the decision after the first attempt is
// ShouldRetry(err, 1).
type RetryStrategy interface {
	// MaxAttempts is the total attempt budget, including the first.
	MaxAttempts() int
	// ShouldRetry grants a retry with the delay to apply before it.
	ShouldRetry(err *OperationError, attempt int) (time.Duration, bool)
}

// RetryClassifier reports whether a classified error is safe to retry.
type RetryClassifier func(err *OperationError) bool

// DefaultRetryClassifier retries transport failures, throttling, attempt
// timeouts and 5xx/429 responses. Construction, signing and auth resolution
// failures are never retried: bytes already sent are not undone, so only
// errors classified as safe re-dispatch.
func DefaultRetryClassifier(err *OperationError) bool {
	if err == nil {
		return false
	}
	switch err.Class {
	case ErrClassDispatch, ErrClassThrottling, ErrClassTimeout:
		return true
	case ErrClassResponse:
		return err.StatusCode >= 500 || err.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// BackoffStrategy selects the delay distribution between attempts.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays exponentially with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter spreads delays per the decorrelated jitter
	// formula, smoothing retry storms across many clients.
	DecorrelatedJitter
)

// StandardRetryStrategy caps attempts, classifies errors and schedules
// backoff. A server-prescribed Retry-After always wins over the computed
// backoff.
type StandardRetryStrategy struct {
	maxAttempts       int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	calculator        internalbackoff.Strategy
	classifier        RetryClassifier
}

// NewStandardRetryStrategy creates the default strategy with exponential
// jitter backoff.
func NewStandardRetryStrategy(maxAttempts int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *StandardRetryStrategy {
	return &StandardRetryStrategy{
		maxAttempts:       maxAttempts,
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
		calculator:        internalbackoff.ExponentialJitter{},
		classifier:        DefaultRetryClassifier,
	}
}

// NewStandardRetryStrategyWithBackoff creates a strategy with an explicit
// backoff distribution.
func NewStandardRetryStrategyWithBackoff(maxAttempts int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *StandardRetryStrategy {
	s := NewStandardRetryStrategy(maxAttempts, initialBackoff, maxBackoff, multiplier, jitter)
	if strategy == DecorrelatedJitter {
		s.calculator = internalbackoff.DecorrelatedJitter{}
	}
	return s
}

// WithClassifier replaces the retryable-error classifier and returns the
// strategy for chaining.
func (s *StandardRetryStrategy) WithClassifier(fn RetryClassifier) *StandardRetryStrategy {
	s.classifier = fn
	return s
}

// MaxAttempts implements the RetryStrategy interface.
func (s *StandardRetryStrategy) MaxAttempts() int { return s.maxAttempts }

// ShouldRetry implements the RetryStrategy interface.
func (s *StandardRetryStrategy) ShouldRetry(err *OperationError, attempt int) (time.Duration, bool) {
	if attempt >= s.maxAttempts {
		return 0, false
	}
	if s.classifier != nil && !s.classifier(err) {
		return 0, false
	}
	if err != nil && err.RetryAfter > 0 {
		return err.RetryAfter, true
	}
	// attempt is 1-based; the first delay uses exponent 0.
	delay := s.calculator.Calculate(attempt-1, s.initialBackoff, s.maxBackoff, s.backoffMultiplier, s.jitter)
	return delay, true
}

// NoRetryStrategy performs exactly one attempt.
type NoRetryStrategy struct{}

// MaxAttempts implements the RetryStrategy interface.
func (NoRetryStrategy) MaxAttempts() int { return 1 }

// ShouldRetry implements the RetryStrategy interface.
func (NoRetryStrategy) ShouldRetry(*OperationError, int) (time.Duration, bool) { return 0, false }

// parseRetryAfter parses a Retry-After header value in delay-seconds or
// HTTP-date format. Delays are capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}
	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}
	return 0
}

// RetryBudget caps the number of retries granted across all concurrent
// orchestrations within a sliding window, protecting a struggling service
// from a synchronized retry storm.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a budget of maxRetries retries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow consumes one retry from the budget, reporting whether it was
// available.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the consumed count, the budget and the window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
