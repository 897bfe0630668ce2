package worker

import (
	"math"
	"time"
)

// RetryPolicy is the exponential backoff applied to queued ledger tasks.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Exhausted reports whether attempt (1-based) is the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}

// NextDelay is InitialDelay * BackoffFactor^(attempt-1), capped by MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if d <= 0 || (r.MaxDelay > 0 && d > r.MaxDelay) {
		if r.MaxDelay > 0 {
			return r.MaxDelay
		}
		return initial
	}
	return d
}
