// Package mongo implements job.Store on MongoDB. The shared jobs
// collection is the rendezvous point for horizontal scaling: every
// mutation is a single atomic conditional update (findOneAndUpdate /
// updateMany semantics), with no distributed locks and no leases
// beyond the locked_at stamp.
//
// Claim operations are wrapped in a conflict-classified retryer:
// duplicate-key (11000) and write-conflict (112) errors back off with
// jitter and retry; everything else surfaces to the caller.
package mongo
