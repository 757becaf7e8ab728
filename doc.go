// Package camber provides a distributed, persistent job scheduler core
// for Go. Any number of worker processes cooperate on the same MongoDB
// collection: jobs are discovered, atomically claimed, executed under a
// liveness watchdog, and reconciled back to storage.
//
// The contract is at-least-once execution with strong deduplication
// under healthy locks. A claim is an atomic transition of a job's
// lockedAt field from null-or-stale to now; the claim is a lease that
// other workers may steal once the job's lock lifetime has elapsed.
//
// # Quick Start
//
//	store := mongo.New(db)
//	reg := job.NewRegistry()
//	reg.Register(job.NewDefinition("send-email", sendEmail,
//	    job.WithConcurrency(10),
//	    job.WithLockLifetime(2*time.Minute),
//	))
//
//	p := worker.New(reg, store)
//	p.Start(ctx)
//	defer p.Stop(ctx)
//
// # Architecture
//
// The core is five components: a conflict-classified retry executor
// (backoff), a typed repository over the document store (job.Store,
// store/mongo, store/memory), a bounded priority/time-ordered ready
// queue (queue), the processor that discovers, claims, dispatches and
// supervises jobs (worker), and the per-job handle carrying identity,
// run state and cancellation (job.Handle).
package camber
