package job

import "time"

// Options configures per-name behavior consulted by the processor.
type Options struct {
	// Concurrency limits how many jobs of this name may run at once
	// on one worker. Zero means no per-name limit.
	Concurrency int

	// LockLimit caps how many jobs of this name one worker may hold
	// claimed at once. Zero means no limit.
	LockLimit int

	// LockLifetime is the claim lease duration. A claim not refreshed
	// within this window may be stolen by any worker.
	LockLifetime time.Duration

	// Priority is the default priority for jobs of this name, in
	// [MinPriority, MaxPriority]. Higher runs earlier on NextRunAt ties.
	Priority int

	// RateLimit is the maximum sustained dispatches per second for
	// this name on one worker. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set but RateBurst is zero.
	RateBurst int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:  5,
		LockLimit:    0,
		LockLifetime: 10 * time.Minute,
		Priority:     0,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithConcurrency sets the per-name running ceiling.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithLockLimit sets the per-name claimed ceiling.
func WithLockLimit(n int) Option {
	return func(o *Options) { o.LockLimit = n }
}

// WithLockLifetime sets the claim lease duration.
func WithLockLifetime(d time.Duration) Option {
	return func(o *Options) { o.LockLifetime = d }
}

// WithPriority sets the default priority for jobs of this name.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithRateLimit sets a per-name dispatch rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = perSecond
		o.RateBurst = burst
	}
}
