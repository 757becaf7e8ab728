// Package memory provides a fully in-memory job.Store. Safe for
// concurrent access. Intended for unit testing and development; it
// mirrors the MongoDB store's claim semantics, including the two-phase
// batch claim, and offers conflict-injection hooks for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/backoff"
	"github.com/camber-run/camber/id"
	"github.com/camber-run/camber/job"
)

// Ensure Store implements the repository contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is an in-memory implementation of job.Store.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*job.Job

	retryer *backoff.Retryer

	// injected errors by operation name, consumed FIFO.
	injected map[string][]error
	attempts map[string]int
}

// Option configures the Store.
type Option func(*Store)

// WithRetryer sets the conflict retryer wrapped around claim
// operations. Tests use this to shrink backoff delays.
func WithRetryer(r *backoff.Retryer) Option {
	return func(s *Store) { s.retryer = r }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:     make(map[string]*job.Job),
		retryer:  backoff.NewRetryer(),
		injected: make(map[string][]error),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InjectError queues errors to be returned by the named operation
// ("claim", "claimNext", "batchClaim", "saveState", "release") before
// it executes normally. Conflict-class errors exercise the retry path.
func (s *Store) InjectError(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected[op] = append(s.injected[op], errs...)
}

// Attempts returns how many times the named operation has been
// attempted, counting retries.
func (s *Store) Attempts(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[op]
}

// takeInjected pops the next injected error for op and counts the
// attempt. Caller must hold s.mu.
func (s *Store) takeInjected(op string) error {
	s.attempts[op]++
	queue := s.injected[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.injected[op] = queue[1:]
	return err
}

// clone copies a record so callers never alias store-owned memory.
func clone(j *job.Job) *job.Job {
	cp := *j
	cp.NextRunAt = cloneTime(j.NextRunAt)
	cp.LockedAt = cloneTime(j.LockedAt)
	cp.LastRunAt = cloneTime(j.LastRunAt)
	cp.LastFinishedAt = cloneTime(j.LastFinishedAt)
	cp.FailedAt = cloneTime(j.FailedAt)
	if j.Progress != nil {
		p := *j.Progress
		cp.Progress = &p
	}
	if j.Data != nil {
		cp.Data = append([]byte(nil), j.Data...)
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// eligible reports whether rec may be claimed: not disabled, and either
// unclaimed with a due NextRunAt, or carrying a stale claim.
func eligible(rec *job.Job, scanHorizon, lockDeadline time.Time) bool {
	if rec.Disabled {
		return false
	}
	if rec.LockedAt == nil {
		return rec.NextRunAt != nil && !rec.NextRunAt.After(scanHorizon)
	}
	return !rec.LockedAt.After(lockDeadline)
}

// byRunOrder sorts candidates by (NextRunAt ASC, Priority DESC).
func byRunOrder(candidates []*job.Job) {
	sort.SliceStable(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		switch {
		case a.NextRunAt == nil && b.NextRunAt == nil:
		case a.NextRunAt == nil:
			return false
		case b.NextRunAt == nil:
			return true
		case !a.NextRunAt.Equal(*b.NextRunAt):
			return a.NextRunAt.Before(*b.NextRunAt)
		}
		return a.Priority > b.Priority
	})
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

// CreateJob persists a new job record.
func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := j.ID.String()
	if _, exists := s.jobs[key]; exists {
		return camber.ErrJobAlreadyExists
	}
	s.jobs[key] = clone(j)
	return nil
}

// UpsertSingle creates or updates the at-most-one record for a
// single-type name. NextRunAt and execution state are written only on
// insert, mirroring the insert-only side of the MongoDB upsert.
func (s *Store) UpsertSingle(_ context.Context, j *job.Job) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.jobs {
		if rec.Name == j.Name && rec.Type == job.TypeSingle {
			rec.Data = append([]byte(nil), j.Data...)
			rec.Priority = j.Priority
			rec.Disabled = j.Disabled
			rec.RepeatInterval = j.RepeatInterval
			rec.UpdatedAt = time.Now().UTC()
			return clone(rec), nil
		}
	}

	cp := clone(j)
	cp.Type = job.TypeSingle
	s.jobs[cp.ID.String()] = cp
	return clone(cp), nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, camber.ErrJobNotFound
	}
	return clone(rec), nil
}

// ──────────────────────────────────────────────────
// Claiming
// ──────────────────────────────────────────────────

// Claim atomically locks the given job where it is unclaimed and not
// disabled. Returns nil when another worker won.
func (s *Store) Claim(ctx context.Context, j *job.Job, now time.Time) (*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(context.Context) (*job.Job, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.takeInjected("claim"); err != nil {
			return nil, err
		}

		rec, ok := s.jobs[j.ID.String()]
		if !ok || rec.Name != j.Name || rec.Disabled || rec.LockedAt != nil {
			return nil, nil
		}
		rec.LockedAt = cloneTime(&now)
		return clone(rec), nil
	})
}

// ClaimNext locks and returns the most urgent eligible job of the
// given name, or nil.
func (s *Store) ClaimNext(ctx context.Context, name string, scanHorizon, lockDeadline, now time.Time) (*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(context.Context) (*job.Job, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.takeInjected("claimNext"); err != nil {
			return nil, err
		}

		candidates := make([]*job.Job, 0)
		for _, rec := range s.jobs {
			if rec.Name == name && eligible(rec, scanHorizon, lockDeadline) {
				candidates = append(candidates, rec)
			}
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		byRunOrder(candidates)

		rec := candidates[0]
		rec.LockedAt = cloneTime(&now)
		return clone(rec), nil
	})
}

// BatchClaim locks up to batchSize eligible jobs of the given name in
// run order. The two phases mirror the MongoDB store: select ids, then
// conditionally stamp only those still eligible.
func (s *Store) BatchClaim(ctx context.Context, name string, batchSize int, scanHorizon, lockDeadline, now time.Time) ([]*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(context.Context) ([]*job.Job, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.takeInjected("batchClaim"); err != nil {
			return nil, err
		}

		// Phase 1: select candidate ids in run order.
		candidates := make([]*job.Job, 0)
		for _, rec := range s.jobs {
			if rec.Name == name && eligible(rec, scanHorizon, lockDeadline) {
				candidates = append(candidates, rec)
			}
		}
		byRunOrder(candidates)
		if len(candidates) > batchSize {
			candidates = candidates[:batchSize]
		}

		// Phase 2: stamp those still unclaimed or stale.
		claimed := make([]*job.Job, 0, len(candidates))
		for _, rec := range candidates {
			if rec.LockedAt != nil && rec.LockedAt.After(lockDeadline) {
				continue
			}
			rec.LockedAt = cloneTime(&now)
			claimed = append(claimed, clone(rec))
		}
		return claimed, nil
	})
}

// ──────────────────────────────────────────────────
// Release and state
// ──────────────────────────────────────────────────

// Release clears the lock where the job still has a NextRunAt.
func (s *Store) Release(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeInjected("release"); err != nil {
		return err
	}

	rec, ok := s.jobs[j.ID.String()]
	if ok && rec.NextRunAt != nil {
		rec.LockedAt = nil
	}
	return nil
}

// ReleaseMany clears the lock on every given id that still has a
// NextRunAt.
func (s *Store) ReleaseMany(_ context.Context, ids []id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, jobID := range ids {
		if rec, ok := s.jobs[jobID.String()]; ok && rec.NextRunAt != nil {
			rec.LockedAt = nil
		}
	}
	return nil
}

// SaveState patches the mutable execution fields of an existing record.
func (s *Store) SaveState(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeInjected("saveState"); err != nil {
		return err
	}

	rec, ok := s.jobs[j.ID.String()]
	if !ok || rec.Name != j.Name {
		return camber.ErrJobNotFound
	}

	rec.LockedAt = cloneTime(j.LockedAt)
	rec.NextRunAt = cloneTime(j.NextRunAt)
	rec.LastRunAt = cloneTime(j.LastRunAt)
	rec.LastFinishedAt = cloneTime(j.LastFinishedAt)
	rec.FailedAt = cloneTime(j.FailedAt)
	rec.FailCount = j.FailCount
	rec.FailReason = j.FailReason
	if j.Progress != nil {
		p := *j.Progress
		rec.Progress = &p
	} else {
		rec.Progress = nil
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchJob refreshes LockedAt for a job that still holds a claim.
func (s *Store) TouchJob(_ context.Context, jobID id.JobID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID.String()]
	if !ok || rec.LockedAt == nil {
		return camber.ErrLockMissing
	}
	rec.LockedAt = cloneTime(&now)
	return nil
}

// QueueSize returns the number of jobs due before now.
func (s *Store) QueueSize(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.jobs {
		if rec.NextRunAt != nil && rec.NextRunAt.Before(now) {
			n++
		}
	}
	return n, nil
}
