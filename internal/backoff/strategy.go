// Package backoff provides delay calculation strategies for retry scheduling.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay to apply before a retry attempt.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number and parameters.
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitter implements exponential backoff with uniform jitter.
type ExponentialJitter struct{}

// Calculate implements the Strategy interface for exponential backoff with jitter.
func (ExponentialJitter) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	backoff := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(backoff) * jitter * rand.Float64())
		if backoff+jitterAmount > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff += jitterAmount
		}
	}
	return backoff
}

// DecorrelatedJitter implements decorrelated jitter as described in the AWS
// architecture blog. It produces smoother tail latencies than exponential
// jitter when many clients retry against the same service.
type DecorrelatedJitter struct{}

// Calculate implements the Strategy interface for decorrelated jitter.
//
// The canonical formula is random_between(base, min(cap, previous_delay * 3)).
// The strategy is stateless across calls, so the previous delay is
// approximated as base * 3^attempt.
func (DecorrelatedJitter) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt <= 0 {
		return initialBackoff
	}

	// Prevent overflow by limiting attempt
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialBackoff)
	upper := base * pow(3.0, attempt)

	maxBackoffFloat := float64(maxBackoff)
	if upper > maxBackoffFloat || upper < 0 {
		upper = maxBackoffFloat
	}
	if upper < base {
		upper = base
	}

	delay := base + rand.Float64()*(upper-base)

	result := time.Duration(delay)
	if result < 0 || result > maxBackoff {
		result = maxBackoff
	}

	return result
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
