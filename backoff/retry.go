package backoff

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/camber-run/camber"
)

// Default Retryer settings.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// Classifier reports whether an error is conflict-class and therefore
// worth retrying.
type Classifier func(error) bool

// DefaultClassifier matches the conflict errors a shared document
// store produces under contention: duplicate-key violations on upsert
// and optimistic write conflicts. Everything else is non-retryable.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, camber.ErrConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "WriteConflict") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "E11000")
}

// Retryer wraps an operation with bounded, jittered exponential
// backoff on conflict-class errors. Non-conflict errors propagate
// immediately; conflict errors propagate once MaxRetries additional
// attempts are exhausted.
type Retryer struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay seeds the exponential schedule and bounds the jitter.
	BaseDelay time.Duration

	// MaxDelay caps any single sleep.
	MaxDelay time.Duration

	// Classify decides retryability. Nil means DefaultClassifier.
	Classify Classifier
}

// Option configures a Retryer.
type Option func(*Retryer)

// WithMaxRetries sets the number of retries after the initial attempt.
func WithMaxRetries(n int) Option {
	return func(r *Retryer) { r.MaxRetries = n }
}

// WithBaseDelay sets the base delay for the exponential schedule.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retryer) { r.BaseDelay = d }
}

// WithMaxDelay caps any single backoff sleep.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retryer) { r.MaxDelay = d }
}

// WithClassifier sets a custom conflict classifier.
func WithClassifier(c Classifier) Option {
	return func(r *Retryer) { r.Classify = c }
}

// NewRetryer creates a Retryer with default settings, then applies opts.
func NewRetryer(opts ...Option) *Retryer {
	r := &Retryer{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Classify:   DefaultClassifier,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Classify == nil {
		r.Classify = DefaultClassifier
	}
	return r
}

// Do invokes op, retrying on conflict-class errors. Attempt k sleeps
// min(BaseDelay * 2^k + rand[0, BaseDelay), MaxDelay) before the next
// try. Context cancellation aborts the sleep and returns ctx.Err().
func (r *Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	strategy := &ExponentialWithJitter{Base: r.BaseDelay, Max: r.MaxDelay}
	classify := r.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !classify(err) || attempt >= r.MaxRetries {
			return err
		}

		select {
		case <-time.After(strategy.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Retry invokes op through r and returns its value. This is a
// package-level generic function because Go does not allow generic
// methods on non-generic receiver types.
func Retry[T any](ctx context.Context, r *Retryer, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
