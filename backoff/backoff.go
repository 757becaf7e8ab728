// Package backoff provides retry delay strategies and the conflict
// retry executor used around store writes. All strategies are safe for
// concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (0-indexed).
	// Attempt 0 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^attempt, Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempt, capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (additive jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter adds uniform jitter in [0, Base) to an
// exponential base. Delay = min(Base * 2^attempt + rand[0, Base), Max).
// The additive jitter spreads out workers that wake on the same tick
// and collide on the same hot document.
type ExponentialWithJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with additive jitter.
func NewExponentialWithJitter(base, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempt plus uniform jitter, capped at Max.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt)))
	if e.Base > 0 {
		d += time.Duration(rand.Int64N(int64(e.Base))) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// DefaultStrategy returns the backoff used by the default Retryer:
// exponential with additive jitter, 100ms base and 5s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(DefaultBaseDelay, DefaultMaxDelay)
}
