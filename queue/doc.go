// Package queue provides the local ready queue — the bounded,
// priority/time-ordered holding area for claimed jobs awaiting
// dispatch — and per-name dispatch rate limiting.
package queue
