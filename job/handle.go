package job

import (
	"context"
	"sync"
	"time"

	"github.com/camber-run/camber"
)

// Handle pairs a claimed job with its definition and carries the
// mutable run state the processor needs: a run-once entry point, a
// cancellation hook, lease expiry checks, and the one-shot dispatch
// timer guard.
type Handle struct {
	job *Job
	def *Definition

	mu         sync.Mutex
	ran        bool
	running    bool
	cancel     context.CancelCauseFunc
	cancelErr  error
	timerArmed bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewHandle wraps a claimed job and its definition.
func NewHandle(j *Job, def *Definition) *Handle {
	return &Handle{
		job:  j,
		def:  def,
		done: make(chan struct{}),
	}
}

// Job returns the underlying record.
func (h *Handle) Job() *Job { return h.job }

// Definition returns the job's registered definition.
func (h *Handle) Definition() *Definition { return h.def }

// Run executes the handler. It is callable at most once; subsequent
// calls return camber.ErrAlreadyRan. The handler context is cancelled
// by Cancel; when the handler returns nil after a cancellation, the
// cancellation reason is the result.
func (h *Handle) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return camber.ErrAlreadyRan
	}
	h.ran = true
	h.running = true

	runCtx, cancel := context.WithCancelCause(ctx)
	h.cancel = cancel
	if h.cancelErr != nil {
		// Cancelled before the handler started.
		cancel(h.cancelErr)
	}

	now := time.Now().UTC()
	h.job.LastRunAt = &now
	h.mu.Unlock()

	err := h.def.Handler(runCtx, h.job)

	h.mu.Lock()
	h.running = false
	if err == nil && h.cancelErr != nil {
		err = h.cancelErr
	}
	h.mu.Unlock()

	h.doneOnce.Do(func() { close(h.done) })
	cancel(nil)

	return err
}

// Cancel signals the handler to wind down and records the reason.
// Safe to call before, during, or after Run.
func (h *Handle) Cancel(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelErr == nil {
		h.cancelErr = err
	}
	if h.cancel != nil {
		h.cancel(err)
	}
}

// CancelReason returns the error passed to Cancel, or nil.
func (h *Handle) CancelReason() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelErr
}

// IsRunning reports whether the handler is currently executing.
func (h *Handle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Done is closed when Run returns.
func (h *Handle) Done() <-chan struct{} { return h.done }

// LockedAt returns the claim timestamp, or nil when unclaimed.
func (h *Handle) LockedAt() *time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.LockedAt
}

// SetLockedAt updates the claim timestamp. The processor clears it on
// completion; the watchdog reads it concurrently.
func (h *Handle) SetLockedAt(t *time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.job.LockedAt = t
}

// IsExpired reports whether the job's claim has expired at now, or is
// absent entirely. An expired claim may be stolen by any worker.
func (h *Handle) IsExpired(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.LockedAt == nil {
		return true
	}
	lifetime := h.def.Opts.LockLifetime
	return lifetime > 0 && now.Sub(*h.job.LockedAt) >= lifetime
}

// ArmTimer marks the handle as holding a deferred dispatch timer.
// Returns false when a timer is already armed, so a job can never arm
// two timers.
func (h *Handle) ArmTimer() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timerArmed {
		return false
	}
	h.timerArmed = true
	return true
}

// DisarmTimer clears the deferred-timer flag.
func (h *Handle) DisarmTimer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timerArmed = false
}

// Touch refreshes the claim's LockedAt through the store (keepalive).
// Handlers that may outlive the lock lifetime call this periodically.
func (h *Handle) Touch(ctx context.Context, store Store) error {
	now := time.Now().UTC()
	if err := store.TouchJob(ctx, h.job.ID, now); err != nil {
		return err
	}
	h.mu.Lock()
	h.job.LockedAt = &now
	h.mu.Unlock()
	return nil
}
