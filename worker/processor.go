// Package worker provides the job processor — the orchestrator that
// periodically discovers ready jobs in the shared store, claims them
// under the concurrency ceilings, dispatches them from the local ready
// queue, and supervises execution with a liveness watchdog.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/ext"
	"github.com/camber-run/camber/id"
	"github.com/camber-run/camber/job"
	"github.com/camber-run/camber/middleware"
	"github.com/camber-run/camber/queue"
)

// nameCounters tracks per-name concurrency accounting so ceiling
// decisions never scan the collections.
type nameCounters struct {
	locked           int
	running          int
	lockLimitReached int
}

// Processor discovers, claims, dispatches, and supervises jobs. All
// bookkeeping (locked, running, jobsToClaim, counters) is guarded by
// one mutex and mutated only between store round trips, so it is
// consistent at every suspension point. Handler execution and store
// I/O run outside the lock.
type Processor struct {
	registry   *job.Registry
	store      job.Store
	extensions *ext.Registry
	limits     *queue.Manager
	readyQueue *queue.ReadyQueue
	cfg        camber.Config
	logger     *slog.Logger
	mw         []middleware.Middleware
	chain      middleware.Middleware
	name       string
	workerID   id.WorkerID

	mu         sync.Mutex
	running    bool
	nextScanAt time.Time

	locked      map[string]*job.Handle
	runningJobs map[string]*job.Handle
	jobsToClaim []*job.Handle
	toClaimIDs  map[string]struct{}
	counters    map[string]*nameCounters

	totalLocked           int
	totalRunning          int
	localQueueProcessing  int
	localLockLimitReached int

	claiming bool            // lock-on-the-fly drain in progress
	filling  map[string]bool // per-name discovery in progress

	stopCh chan struct{}
	tickWG sync.WaitGroup
	jobWG  sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithConfig replaces the default configuration.
func WithConfig(cfg camber.Config) Option {
	return func(p *Processor) { p.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithExtensions sets the extension registry lifecycle events are
// emitted to.
func WithExtensions(r *ext.Registry) Option {
	return func(p *Processor) { p.extensions = r }
}

// WithMiddleware appends middleware to the handler chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(p *Processor) { p.mw = append(p.mw, mws...) }
}

// WithName sets the queue name reported in status snapshots.
func WithName(name string) Option {
	return func(p *Processor) { p.name = name }
}

// New creates a Processor over the given definitions and store.
func New(registry *job.Registry, store job.Store, opts ...Option) *Processor {
	p := &Processor{
		registry:    registry,
		store:       store,
		cfg:         camber.DefaultConfig(),
		logger:      slog.Default(),
		limits:      queue.NewManager(),
		name:        "default",
		workerID:    id.NewWorkerID(),
		locked:      make(map[string]*job.Handle),
		runningJobs: make(map[string]*job.Handle),
		toClaimIDs:  make(map[string]struct{}),
		counters:    make(map[string]*nameCounters),
		filling:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.extensions == nil {
		p.extensions = ext.NewRegistry(p.logger)
	}
	p.readyQueue = queue.NewReadyQueue(queue.WithCapacity(p.cfg.QueueCapacity))
	p.chain = middleware.Chain(p.mw...)
	return p
}

// WorkerID returns the processor's unique worker identifier.
func (p *Processor) WorkerID() id.WorkerID { return p.workerID }

// Queue returns the local ready queue for observation.
func (p *Processor) Queue() *queue.ReadyQueue { return p.readyQueue }

// Start launches the periodic discovery tick. It returns immediately.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	// Per-name dispatch rate limits come from the definitions.
	for _, name := range p.registry.Names() {
		if def, ok := p.registry.Get(name); ok && def.Opts.RateLimit > 0 {
			p.limits.Configure(name, def.Opts.RateLimit, def.Opts.RateBurst)
		}
	}

	p.logger.Info("processor starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("queue", p.name),
		slog.Int("max_concurrency", p.cfg.MaxConcurrency),
		slog.Duration("process_every", p.cfg.ProcessEvery),
	)

	p.tickWG.Add(1)
	go p.tickLoop(stopCh)

	p.extensions.EmitReady(ctx)
	return nil
}

// tickLoop drives discovery every ProcessEvery until stopped.
func (p *Processor) tickLoop(stopCh chan struct{}) {
	defer p.tickWG.Done()

	ticker := time.NewTicker(p.cfg.ProcessEvery)
	defer ticker.Stop()

	// Discover immediately on start; ready jobs should not wait a
	// full tick.
	p.Process(context.Background(), nil)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.Process(context.Background(), nil)
		}
	}
}

// Stop cancels the periodic tick, waits up to ShutdownTimeout for
// in-flight handlers to settle, and returns the currently-claimed
// handles so the caller can release residual claims. In-flight
// handlers are not forcibly aborted; the watchdog may still cancel
// them via lock expiration.
func (p *Processor) Stop(ctx context.Context) []*job.Handle {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.tickWG.Wait()

	// Wait for handlers, bounded by ShutdownTimeout and ctx.
	done := make(chan struct{})
	go func() {
		p.jobWG.Wait()
		close(done)
	}()

	timeout := p.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("shutdown timed out with handlers in flight",
			slog.String("worker_id", p.workerID.String()))
	case <-ctx.Done():
		p.logger.Warn("shutdown context cancelled with handlers in flight",
			slog.String("worker_id", p.workerID.String()))
	}

	p.extensions.EmitShutdown(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	claimed := make([]*job.Handle, 0, len(p.locked))
	for _, h := range p.locked {
		claimed = append(claimed, h)
	}
	return claimed
}

// isRunning reports whether the processor accepts work.
func (p *Processor) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// countersFor lazily creates the per-name counters. Buckets are never
// deleted during a run. Caller must hold p.mu.
func (p *Processor) countersFor(name string) *nameCounters {
	c, ok := p.counters[name]
	if !ok {
		c = &nameCounters{}
		p.counters[name] = c
	}
	return c
}

// shouldLockLocked reports whether another claim of name fits under
// both the per-name lock limit and the total lock limit. Zero means
// no limit in either field. Caller must hold p.mu.
func (p *Processor) shouldLockLocked(name string) bool {
	def, ok := p.registry.Get(name)
	if !ok {
		return false
	}
	if limit := def.Opts.LockLimit; limit > 0 && p.countersFor(name).locked >= limit {
		return false
	}
	if p.cfg.TotalLockLimit > 0 && p.totalLocked >= p.cfg.TotalLockLimit {
		return false
	}
	return true
}

// ShouldLock reports whether the processor may claim another job of
// the given name.
func (p *Processor) ShouldLock(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shouldLockLocked(name)
}

// Process triggers job intake. With a nil extra it runs a full
// discovery pass for every registered name and then dispatches. With
// extra set and due before the next periodic scan, the job is queued
// for an immediate claim instead of waiting out the tick. No-op when
// stopped.
func (p *Processor) Process(ctx context.Context, extra *job.Handle) {
	if !p.isRunning() {
		return
	}

	if extra != nil {
		p.mu.Lock()
		nextRunAt := extra.Job().NextRunAt
		due := nextRunAt != nil && (p.nextScanAt.IsZero() || nextRunAt.Before(p.nextScanAt))
		key := extra.Job().ID.String()
		if due {
			if _, pending := p.toClaimIDs[key]; !pending {
				p.jobsToClaim = append(p.jobsToClaim, extra)
				p.toClaimIDs[key] = struct{}{}
			}
		}
		p.mu.Unlock()

		if due {
			p.lockOnTheFly(ctx)
		}
		return
	}

	for _, name := range p.registry.Names() {
		p.fillQueueForName(ctx, name)
	}
	p.dispatch(ctx)
}

// fillQueueForName claims eligible jobs of one name into the ready
// queue, draining all currently-eligible work before yielding the
// tick. Reentrant calls for the same name are dropped.
func (p *Processor) fillQueueForName(ctx context.Context, name string) {
	def, ok := p.registry.Get(name)
	if !ok {
		return
	}

	p.mu.Lock()
	if p.filling[name] {
		p.mu.Unlock()
		return
	}
	p.filling[name] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.filling, name)
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			return
		}
		if !p.shouldLockLocked(name) {
			p.countersFor(name).lockLimitReached++
			p.localLockLimitReached++
			p.mu.Unlock()
			return
		}

		now := time.Now().UTC()
		p.nextScanAt = now.Add(p.cfg.ProcessEvery)
		scanHorizon := p.nextScanAt
		lockDeadline := now.Add(-def.Opts.LockLifetime)

		batchSize := p.availableSlotsLocked(name, def)
		if batchSize > p.cfg.BatchSize {
			batchSize = p.cfg.BatchSize
		}
		p.mu.Unlock()

		if batchSize < 1 {
			return
		}

		var claimed []*job.Job
		var err error
		if !p.cfg.DisableBatch && batchSize > 1 {
			claimed, err = p.store.BatchClaim(ctx, name, batchSize, scanHorizon, lockDeadline, now)
		} else {
			var one *job.Job
			one, err = p.store.ClaimNext(ctx, name, scanHorizon, lockDeadline, now)
			if one != nil {
				claimed = []*job.Job{one}
			}
		}
		if err != nil {
			// Exhausted retries or a non-conflict storage error: the
			// jobs stay unclaimed and discovery continues elsewhere.
			p.logger.Error("claim failed",
				slog.String("job_name", name),
				slog.String("error", err.Error()),
			)
			p.extensions.EmitError(ctx, err)
			return
		}
		if len(claimed) == 0 {
			return
		}

		if !p.admitClaimed(ctx, name, def, claimed) {
			return
		}
	}
}

// availableSlotsLocked computes min(globalFree, perNameFree), where a
// zero limit means unbounded. Caller must hold p.mu.
func (p *Processor) availableSlotsLocked(name string, def *job.Definition) int {
	slots := int(^uint(0) >> 1) // effectively unbounded
	if limit := def.Opts.LockLimit; limit > 0 {
		if free := limit - p.countersFor(name).locked; free < slots {
			slots = free
		}
	}
	if p.cfg.TotalLockLimit > 0 {
		if free := p.cfg.TotalLockLimit - p.totalLocked; free < slots {
			slots = free
		}
	}
	return slots
}

// admitClaimed moves freshly claimed records into the bookkeeping and
// the ready queue. Returns false when the fill loop should stop: a
// concurrent claim took the last slot, or the queue overflowed. On an
// early stop every remaining claim is released so nothing leaks.
func (p *Processor) admitClaimed(ctx context.Context, name string, def *job.Definition, claimed []*job.Job) bool {
	for i, rec := range claimed {
		if rec.Name != name {
			// A record from another name slipped in; never run it here.
			p.logger.Warn("claimed job name mismatch",
				slog.String("want", name),
				slog.String("got", rec.Name),
				slog.String("job_id", rec.ID.String()),
			)
			p.releaseClaim(ctx, rec)
			continue
		}

		p.mu.Lock()
		key := rec.ID.String()
		if _, held := p.locked[key]; held {
			// This worker already holds the job (its own lease went
			// stale while queued or running); keep the existing handle
			// so one job id is never tracked twice.
			p.mu.Unlock()
			continue
		}
		if !p.shouldLockLocked(name) {
			p.countersFor(name).lockLimitReached++
			p.localLockLimitReached++
			p.mu.Unlock()
			p.releaseClaims(ctx, claimed[i:])
			return false
		}

		h := job.NewHandle(rec, def)
		p.locked[key] = h
		p.countersFor(name).locked++
		p.totalLocked++
		p.mu.Unlock()

		if !p.readyQueue.Insert(h) {
			p.extensions.EmitQueueOverflow(ctx, ext.Overflow{
				Name:      name,
				QueueSize: p.readyQueue.Len(),
				MaxSize:   p.readyQueue.Cap(),
			})
			p.forgetClaim(key, name)
			p.releaseClaims(ctx, claimed[i:])
			return false
		}
	}
	return true
}

// releaseClaims gives a set of claims back in one round trip.
func (p *Processor) releaseClaims(ctx context.Context, recs []*job.Job) {
	if len(recs) == 0 {
		return
	}
	if len(recs) == 1 {
		p.releaseClaim(ctx, recs[0])
		return
	}
	ids := make([]id.JobID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	if err := p.store.ReleaseMany(ctx, ids); err != nil {
		p.logger.Error("release failed",
			slog.Int("jobs", len(ids)),
			slog.String("error", err.Error()),
		)
		p.extensions.EmitError(ctx, err)
	}
}

// forgetClaim drops a handle from the locked bookkeeping.
func (p *Processor) forgetClaim(key, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.locked[key]; !ok {
		return
	}
	delete(p.locked, key)
	p.countersFor(name).locked--
	p.totalLocked--
}

// releaseClaim clears a claim in the store, reporting failures as
// processor-level errors.
func (p *Processor) releaseClaim(ctx context.Context, rec *job.Job) {
	if err := p.store.Release(ctx, rec); err != nil {
		p.logger.Error("release failed",
			slog.String("job_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)
		p.extensions.EmitError(ctx, err)
	}
}

// lockOnTheFly drains the claim-intent buffer, claiming one job at a
// time. A job scheduled before the next periodic tick would otherwise
// wait up to ProcessEvery. Reentrant calls return immediately; when a
// popped intent hits a lock limit the whole remaining buffer is
// dropped (the next tick re-discovers those jobs).
func (p *Processor) lockOnTheFly(ctx context.Context) {
	p.mu.Lock()
	if p.claiming || !p.running {
		p.mu.Unlock()
		return
	}
	p.claiming = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.claiming = false
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		if !p.running || len(p.jobsToClaim) == 0 {
			p.mu.Unlock()
			break
		}

		intent := p.jobsToClaim[0]
		p.jobsToClaim = p.jobsToClaim[1:]
		delete(p.toClaimIDs, intent.Job().ID.String())
		name := intent.Job().Name

		if !p.shouldLockLocked(name) {
			// Hard back-off: discard every pending intent.
			for _, dropped := range p.jobsToClaim {
				delete(p.toClaimIDs, dropped.Job().ID.String())
			}
			p.jobsToClaim = nil
			p.countersFor(name).lockLimitReached++
			p.localLockLimitReached++
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		def, ok := p.registry.Get(name)
		if !ok {
			p.extensions.EmitError(ctx, fmt.Errorf("%w for job %q", camber.ErrNoHandler, name))
			continue
		}

		rec, err := p.store.Claim(ctx, intent.Job(), time.Now().UTC())
		if err != nil {
			p.logger.Error("claim failed",
				slog.String("job_id", intent.Job().ID.String()),
				slog.String("error", err.Error()),
			)
			p.extensions.EmitError(ctx, err)
			continue
		}
		if rec == nil {
			// Another worker won, or the job was disabled.
			continue
		}

		p.admitClaimed(ctx, name, def, []*job.Job{rec})
	}

	p.dispatch(ctx)
}
