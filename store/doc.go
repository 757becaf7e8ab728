// Package store documents the persistence backends for camber.
//
// Two implementations of job.Store ship with the module:
//
//   - store/memory: a fully in-memory store for unit testing and
//     development, including conflict-injection hooks.
//   - store/mongo: the production MongoDB store. The shared collection
//     is the rendezvous point for horizontal scaling; every mutation is
//     a single atomic conditional update.
package store
