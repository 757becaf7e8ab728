package job

import (
	"context"
	"time"

	"github.com/camber-run/camber/id"
)

// Store defines the persistence contract for jobs. Every mutation is a
// single atomic conditional update; the store is the only shared
// mutable resource between worker processes.
//
// The store implementations absorb conflict-class failures (duplicate
// key, optimistic write conflict) in the claim operations with a
// backoff.Retryer; the error returned once the retries are exhausted
// is the store's own and need not match camber.ErrConflict.
type Store interface {
	// CreateJob persists a new job record.
	CreateJob(ctx context.Context, j *Job) error

	// UpsertSingle creates or updates the at-most-one record for a
	// single-type job name. NextRunAt is written only on insert so a
	// concurrent scheduler cannot push back an existing schedule.
	// Returns the stored record.
	UpsertSingle(ctx context.Context, j *Job) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// Claim atomically sets LockedAt = now on the given job where it
	// is unclaimed and not disabled. Returns the updated record, or
	// nil when another worker won or the job was disabled.
	Claim(ctx context.Context, j *Job, now time.Time) (*Job, error)

	// ClaimNext finds one eligible job of the given name and
	// atomically sets LockedAt = now. Eligible means not disabled and
	// either unclaimed with NextRunAt <= scanHorizon, or claimed with
	// LockedAt <= lockDeadline (a stale claim, which is stolen).
	// Candidates are ordered by (NextRunAt ASC, Priority DESC).
	// Returns nil when nothing is eligible.
	ClaimNext(ctx context.Context, name string, scanHorizon, lockDeadline, now time.Time) (*Job, error)

	// BatchClaim claims up to batchSize eligible jobs of the given
	// name in one multi-document update, converting batchSize
	// independent contention events into one. Returns the claimed
	// records in (NextRunAt ASC, Priority DESC) order; concurrent
	// stealers between selection and update simply shrink the result.
	BatchClaim(ctx context.Context, name string, batchSize int, scanHorizon, lockDeadline, now time.Time) ([]*Job, error)

	// Release clears LockedAt where the job still has a NextRunAt.
	// The predicate prevents un-finishing a job whose NextRunAt was
	// intentionally cleared by completion.
	Release(ctx context.Context, j *Job) error

	// ReleaseMany is Release over a set of job IDs.
	ReleaseMany(ctx context.Context, ids []id.JobID) error

	// SaveState patches the mutable execution fields (LockedAt,
	// NextRunAt, LastRunAt, LastFinishedAt, FailedAt, FailCount,
	// FailReason, Progress) of an existing record. Returns
	// camber.ErrJobNotFound when the record no longer exists.
	SaveState(ctx context.Context, j *Job) error

	// TouchJob refreshes LockedAt to now for a job that still holds a
	// claim (keepalive). Returns camber.ErrLockMissing when the claim
	// is gone.
	TouchJob(ctx context.Context, jobID id.JobID, now time.Time) error

	// QueueSize returns the number of jobs due before now. Advisory.
	QueueSize(ctx context.Context, now time.Time) (int64, error)

	// Migrate creates the indexes required at correctness-scale.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
