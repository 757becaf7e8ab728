// Package ext defines the extension system for camber.
// Extensions are notified of lifecycle events (job dispatched,
// completed, failed, queue overflow, etc.) and can react to them —
// logging, metrics, alerting. The events are observations; the core
// never consumes them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/camber-run/camber/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Overflow describes a rejected ready-queue insert.
type Overflow struct {
	Name      string
	QueueSize int
	MaxSize   int
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// Ready is called once the processor has started its periodic tick.
type Ready interface {
	OnReady(ctx context.Context) error
}

// JobProcessed is called when a job is handed to its handler.
type JobProcessed interface {
	OnJobProcessed(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job's run ends in error: the handler
// returned one, the watchdog cancelled it, or its recurrence could not
// be rescheduled. A failed state save is reported through ErrorReported.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// QueueOverflow is called when the ready queue rejects an insert.
type QueueOverflow interface {
	OnQueueOverflow(ctx context.Context, o Overflow) error
}

// ErrorReported is called for processor-level errors that are not tied
// to a single job run, e.g. a failed discovery round trip.
type ErrorReported interface {
	OnError(ctx context.Context, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
