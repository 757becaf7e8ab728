package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/camber-run/camber/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type readyEntry struct {
	name string
	hook Ready
}

type jobProcessedEntry struct {
	name string
	hook JobProcessed
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type queueOverflowEntry struct {
	name string
	hook QueueOverflow
}

type errorReportedEntry struct {
	name string
	hook ErrorReported
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	ready         []readyEntry
	jobProcessed  []jobProcessedEntry
	jobCompleted  []jobCompletedEntry
	jobFailed     []jobFailedEntry
	queueOverflow []queueOverflowEntry
	errorReported []errorReportedEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(Ready); ok {
		r.ready = append(r.ready, readyEntry{name, h})
	}
	if h, ok := e.(JobProcessed); ok {
		r.jobProcessed = append(r.jobProcessed, jobProcessedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(QueueOverflow); ok {
		r.queueOverflow = append(r.queueOverflow, queueOverflowEntry{name, h})
	}
	if h, ok := e.(ErrorReported); ok {
		r.errorReported = append(r.errorReported, errorReportedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitReady notifies all extensions that implement Ready.
func (r *Registry) EmitReady(ctx context.Context) {
	for _, e := range r.ready {
		if err := e.hook.OnReady(ctx); err != nil {
			r.logHookError("OnReady", e.name, err)
		}
	}
}

// EmitJobProcessed notifies all extensions that implement JobProcessed.
func (r *Registry) EmitJobProcessed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobProcessed {
		if err := e.hook.OnJobProcessed(ctx, j); err != nil {
			r.logHookError("OnJobProcessed", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitQueueOverflow notifies all extensions that implement QueueOverflow.
func (r *Registry) EmitQueueOverflow(ctx context.Context, o Overflow) {
	for _, e := range r.queueOverflow {
		if err := e.hook.OnQueueOverflow(ctx, o); err != nil {
			r.logHookError("OnQueueOverflow", e.name, err)
		}
	}
}

// EmitError notifies all extensions that implement ErrorReported.
func (r *Registry) EmitError(ctx context.Context, procErr error) {
	for _, e := range r.errorReported {
		if err := e.hook.OnError(ctx, procErr); err != nil {
			r.logHookError("OnError", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure. Hook errors are never
// propagated: an extension cannot poison job processing.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}
