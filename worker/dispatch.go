package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/ext"
	"github.com/camber-run/camber/interval"
	"github.com/camber-run/camber/job"
)

// maxTimerDelay clamps deferred dispatch timers to a 32-bit-safe
// ceiling. A clamped timer re-enters dispatch, which re-evaluates the
// remaining wait.
const maxTimerDelay = time.Duration(math.MaxInt32) * time.Millisecond

func clampTimer(d time.Duration) time.Duration {
	if d > maxTimerDelay {
		return maxTimerDelay
	}
	return d
}

// dispatch drains the ready queue: jobs whose NextRunAt has arrived
// are executed, jobs that drifted past the next tick are released, and
// jobs due soon get a one-shot timer that re-enters dispatch.
func (p *Processor) dispatch(ctx context.Context) {
	handled := make(map[string]struct{})

	for {
		if p.readyQueue.Len() == 0 || !p.isRunning() {
			return
		}

		h := p.readyQueue.PickNextRunnable(p.canRunSnapshot(), handled)
		if h == nil {
			return
		}

		rec := h.Job()
		key := rec.ID.String()
		name := rec.Name

		// Per-name rate limit: leave the job queued for a later pass.
		if !p.limits.Allow(name) {
			handled[key] = struct{}{}
			continue
		}

		if !p.readyQueue.Remove(h) {
			// Lost a race with another dispatch pass.
			handled[key] = struct{}{}
			continue
		}

		now := time.Now().UTC()

		if h.IsExpired(now) {
			// Another worker likely stole the claim; drop it.
			p.logger.Debug("dropping expired claim",
				slog.String("job_id", key),
				slog.String("job_name", name),
			)
			p.forgetClaim(key, name)
			handled[key] = struct{}{}
			continue
		}

		nextRunAt := rec.NextRunAt
		switch {
		case nextRunAt == nil || !nextRunAt.After(now):
			p.jobWG.Add(1)
			go p.runOrRetry(ctx, h)
			handled[key] = struct{}{}

			p.mu.Lock()
			saturated := p.cfg.MaxConcurrency > 0 && p.localQueueProcessing >= p.cfg.MaxConcurrency
			p.mu.Unlock()
			if saturated {
				return
			}

		case nextRunAt.Sub(now) > p.cfg.ProcessEvery:
			// The job drifted too far into the future (e.g. it was
			// rescheduled while queued): give the claim back.
			p.forgetClaim(key, name)
			p.releaseClaim(ctx, rec)
			handled[key] = struct{}{}

		default:
			p.armDispatchTimer(ctx, h, nextRunAt.Sub(now))
			handled[key] = struct{}{}
		}
	}
}

// canRunSnapshot captures the running counts under the lock and
// returns a predicate for PickNextRunnable. runOrRetry re-checks the
// ceilings authoritatively before executing.
func (p *Processor) canRunSnapshot() func(name string) bool {
	p.mu.Lock()
	totalRunning := p.totalRunning
	runningByName := make(map[string]int, len(p.counters))
	for name, c := range p.counters {
		runningByName[name] = c.running
	}
	p.mu.Unlock()

	return func(name string) bool {
		def, ok := p.registry.Get(name)
		if !ok {
			return false
		}
		if p.cfg.MaxConcurrency > 0 && totalRunning >= p.cfg.MaxConcurrency {
			return false
		}
		limit := def.Opts.Concurrency
		return limit == 0 || runningByName[name] < limit
	}
}

// armDispatchTimer schedules a one-shot dispatch for a job due before
// the next tick. The handle's timer guard ensures a job never arms two
// timers; the job goes back into the queue until the timer fires.
func (p *Processor) armDispatchTimer(ctx context.Context, h *job.Handle, wait time.Duration) {
	if !h.ArmTimer() {
		// A timer is already pending; just requeue.
		p.requeue(ctx, h)
		return
	}

	p.requeue(ctx, h)

	time.AfterFunc(clampTimer(wait), func() {
		h.DisarmTimer()
		if p.isRunning() {
			p.dispatch(context.Background())
		}
	})
}

// requeue puts a handle back into the ready queue, releasing the claim
// when the queue is full.
func (p *Processor) requeue(ctx context.Context, h *job.Handle) {
	if p.readyQueue.Insert(h) {
		return
	}

	rec := h.Job()
	p.extensions.EmitQueueOverflow(ctx, ext.Overflow{
		Name:      rec.Name,
		QueueSize: p.readyQueue.Len(),
		MaxSize:   p.readyQueue.Cap(),
	})
	p.forgetClaim(rec.ID.String(), rec.Name)
	p.releaseClaim(ctx, rec)
}

// runOrRetry executes one claimed job under the liveness watchdog,
// then reconciles final state to the store. Per-job errors are
// isolated here; only invariant violations escape.
func (p *Processor) runOrRetry(ctx context.Context, h *job.Handle) {
	defer p.jobWG.Done()

	if !p.isRunning() {
		return
	}

	rec := h.Job()
	key := rec.ID.String()
	name := rec.Name
	def := h.Definition()

	// Authoritative ceiling re-check; the dispatch snapshot may be
	// stale by now.
	p.mu.Lock()
	c := p.countersFor(name)
	atNameLimit := def.Opts.Concurrency > 0 && c.running >= def.Opts.Concurrency
	atTotalLimit := p.cfg.MaxConcurrency > 0 && p.totalRunning >= p.cfg.MaxConcurrency
	if atNameLimit || atTotalLimit {
		p.mu.Unlock()
		p.requeue(ctx, h)
		return
	}
	c.running++
	p.totalRunning++
	p.localQueueProcessing++
	p.runningJobs[key] = h
	p.mu.Unlock()

	p.extensions.EmitJobProcessed(ctx, rec)

	// Liveness watchdog races the handler; whichever settles first
	// decides the outcome (the watchdog settles by cancelling).
	watchCtx, stopWatchdog := context.WithCancel(context.Background())
	go p.watchdog(watchCtx, h)

	start := time.Now()
	runErr := p.chain(ctx, rec, func(ctx context.Context) error {
		return h.Run(ctx)
	})
	stopWatchdog()
	elapsed := time.Since(start)

	p.finishJob(ctx, h, runErr, elapsed)

	p.mu.Lock()
	if _, ok := p.runningJobs[key]; !ok {
		p.mu.Unlock()
		// Bookkeeping disagrees with reality: this is a programming
		// bug, never swallowed.
		panic(&camber.InconsistencyError{Op: "runOrRetry", JobID: key})
	}
	delete(p.runningJobs, key)
	c = p.countersFor(name)
	c.running--
	p.totalRunning--
	p.localQueueProcessing--
	if _, ok := p.locked[key]; ok {
		delete(p.locked, key)
		c.locked--
		p.totalLocked--
	}
	p.mu.Unlock()

	// Another job may fit now.
	if p.isRunning() {
		p.dispatch(context.Background())
	}
}

// watchdog probes a running job's liveness at
// max(ProcessEvery/2, lockLifetime/2) until the run settles. It
// cancels the job when the claim has expired under the lease rules or
// LockedAt was cleared externally.
func (p *Processor) watchdog(ctx context.Context, h *job.Handle) {
	probeEvery := p.cfg.ProcessEvery / 2
	if half := h.Definition().Opts.LockLifetime / 2; half > probeEvery {
		probeEvery = half
	}
	if probeEvery <= 0 {
		probeEvery = time.Millisecond
	}

	ticker := time.NewTicker(probeEvery)
	defer ticker.Stop()

	rec := h.Job()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
			return
		case <-ticker.C:
			if !h.IsRunning() {
				return
			}
			if h.LockedAt() == nil {
				h.Cancel(fmt.Errorf("job %s (%s) lock disappeared: %w",
					rec.Name, rec.ID, camber.ErrLockMissing))
				return
			}
			if h.IsExpired(time.Now().UTC()) {
				h.Cancel(fmt.Errorf("job %s (%s) took longer than lockLifetime %v; call touch() to keep the claim alive: %w",
					rec.Name, rec.ID, h.Definition().Opts.LockLifetime, camber.ErrLockExpired))
				return
			}
		}
	}
}

// finishJob writes the job's final state back to the store. Success on
// a recurring job advances NextRunAt; success on a one-shot job clears
// it. Failure records the reason and leaves the job re-claimable.
// The lock is released implicitly by the state update.
func (p *Processor) finishJob(ctx context.Context, h *job.Handle, runErr error, elapsed time.Duration) {
	rec := h.Job()
	now := time.Now().UTC()

	if runErr != nil {
		// Invoke the cancellation hook so a still-listening handler
		// observes the reason; a watchdog cancellation already did.
		h.Cancel(runErr)
		rec.FailCount++
		rec.FailReason = runErr.Error()
		rec.FailedAt = &now
	}

	rec.LastFinishedAt = &now
	h.SetLockedAt(nil)

	if rec.IsRecurring() {
		next, err := interval.Next(rec.RepeatInterval, now)
		if err != nil {
			p.logger.Error("reschedule failed",
				slog.String("job_id", rec.ID.String()),
				slog.String("job_name", rec.Name),
				slog.String("repeat_interval", rec.RepeatInterval),
				slog.String("error", err.Error()),
			)
			if runErr == nil {
				runErr = err
				rec.FailCount++
				rec.FailReason = err.Error()
				rec.FailedAt = &now
			}
		} else {
			rec.NextRunAt = &next
		}
	} else if runErr == nil {
		rec.NextRunAt = nil
	}

	if err := p.store.SaveState(ctx, rec); err != nil {
		p.logger.Error("save state failed",
			slog.String("job_id", rec.ID.String()),
			slog.String("job_name", rec.Name),
			slog.String("error", err.Error()),
		)
		p.extensions.EmitError(ctx, err)
	}

	if runErr != nil {
		p.extensions.EmitJobFailed(ctx, rec, runErr)
	} else {
		p.extensions.EmitJobCompleted(ctx, rec, elapsed)
	}
}
