// Package job defines the persistent job record, the definitions
// registry consulted by the processor, the per-job handle, and the
// repository contract over the shared document store.
//
// # Job Record
//
// A [Job] is a document shared between worker processes. It is claimed
// iff LockedAt is non-nil (a lease), and eligible for claim when it is
// not disabled and either unclaimed with NextRunAt inside the scan
// horizon, or carrying a stale claim older than the lock deadline.
//
// # Definitions
//
// A [Definition] binds a job name to its handler and to the per-name
// concurrency ceilings, lock lifetime and priority. Definitions live
// in a [Registry] owned by the caller and consulted by the processor.
//
// # Handles
//
// A [Handle] is the processor's view of one claimed job: a run-once
// entry point, a cancellation hook used by the liveness watchdog, and
// lease bookkeeping.
package job
