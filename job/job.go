package job

import (
	"time"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/id"
)

// Type classifies how many records of a job name may exist.
type Type string

const (
	// TypeNormal jobs may have any number of records per name.
	TypeNormal Type = "normal"
	// TypeSingle jobs have at most one record per name; creation is an
	// upsert keyed by name.
	TypeSingle Type = "single"
)

// Priority bounds. Higher priorities run earlier when NextRunAt ties.
const (
	MinPriority = -20
	MaxPriority = 20
)

// Job is a persistent unit of work shared between worker processes.
// A job is claimed iff LockedAt is non-nil; the claim is a lease that
// expires after the definition's lock lifetime.
type Job struct {
	camber.Entity

	ID             id.JobID `json:"id"`
	Name           string   `json:"name"`
	Data           []byte   `json:"data,omitempty"`
	Priority       int      `json:"priority"`
	Type           Type     `json:"type"`
	Disabled       bool     `json:"disabled,omitempty"`
	RepeatInterval string   `json:"repeat_interval,omitempty"`

	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`

	FailCount  int    `json:"fail_count"`
	FailReason string `json:"fail_reason,omitempty"`
	Progress   *int   `json:"progress,omitempty"`
}

// New creates a job of the given name scheduled to run immediately.
func New(name string, data []byte) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity:    camber.Entity{CreatedAt: now, UpdatedAt: now},
		ID:        id.NewJobID(),
		Name:      name,
		Data:      data,
		Type:      TypeNormal,
		NextRunAt: &now,
	}
}

// IsClaimed reports whether the job currently carries a claim.
func (j *Job) IsClaimed() bool {
	return j.LockedAt != nil
}

// IsRecurring reports whether a successful run reschedules the job.
func (j *Job) IsRecurring() bool {
	return j.RepeatInterval != ""
}

// ClampPriority normalizes p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
