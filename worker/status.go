package worker

import (
	"time"

	"github.com/camber-run/camber/job"
)

// StatusVersion identifies the snapshot schema.
const StatusVersion = 1

// NameStatus reports per-name concurrency accounting.
type NameStatus struct {
	Locked           int         `json:"locked"`
	Running          int         `json:"running"`
	LockLimitReached int         `json:"lock_limit_reached"`
	Config           job.Options `json:"config"`
}

// Status is an observable snapshot of the processor's state.
type Status struct {
	Version        int           `json:"version"`
	Queue          string        `json:"queue"`
	WorkerID       string        `json:"worker_id"`
	Running        bool          `json:"running"`
	MaxConcurrency int           `json:"max_concurrency"`
	TotalLockLimit int           `json:"total_lock_limit"`
	ProcessEvery   time.Duration `json:"process_every"`

	Jobs map[string]NameStatus `json:"jobs"`

	QueuedJobs  int `json:"queued_jobs"`
	RunningJobs int `json:"running_jobs"`
	LockedJobs  int `json:"locked_jobs"`
	JobsToClaim int `json:"jobs_to_claim"`

	// Populated only when full details are requested.
	QueuedJobIDs  []string `json:"queued_job_ids,omitempty"`
	RunningJobIDs []string `json:"running_job_ids,omitempty"`
	LockedJobIDs  []string `json:"locked_job_ids,omitempty"`
	ToClaimJobIDs []string `json:"to_claim_job_ids,omitempty"`

	LocalQueueProcessing  int     `json:"local_queue_processing"`
	LocalLockLimitReached int     `json:"local_lock_limit_reached"`
	QueueUtilization      float64 `json:"queue_utilization"`
}

// Status captures the processor's observable state for metrics. With
// fullDetails the id lists of every collection are included; otherwise
// only lengths are reported.
func (p *Processor) Status(fullDetails bool) Status {
	queued := p.readyQueue.Handles()

	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Version:        StatusVersion,
		Queue:          p.name,
		WorkerID:       p.workerID.String(),
		Running:        p.running,
		MaxConcurrency: p.cfg.MaxConcurrency,
		TotalLockLimit: p.cfg.TotalLockLimit,
		ProcessEvery:   p.cfg.ProcessEvery,
		Jobs:           make(map[string]NameStatus, len(p.counters)),

		QueuedJobs:  len(queued),
		RunningJobs: len(p.runningJobs),
		LockedJobs:  len(p.locked),
		JobsToClaim: len(p.jobsToClaim),

		LocalQueueProcessing:  p.localQueueProcessing,
		LocalLockLimitReached: p.localLockLimitReached,
		QueueUtilization:      float64(len(queued)) / float64(p.readyQueue.Cap()),
	}

	for name, c := range p.counters {
		ns := NameStatus{
			Locked:           c.locked,
			Running:          c.running,
			LockLimitReached: c.lockLimitReached,
		}
		if def, ok := p.registry.Get(name); ok {
			ns.Config = def.Opts
		}
		s.Jobs[name] = ns
	}

	if fullDetails {
		s.QueuedJobIDs = make([]string, 0, len(queued))
		for _, h := range queued {
			s.QueuedJobIDs = append(s.QueuedJobIDs, h.Job().ID.String())
		}
		s.RunningJobIDs = make([]string, 0, len(p.runningJobs))
		for key := range p.runningJobs {
			s.RunningJobIDs = append(s.RunningJobIDs, key)
		}
		s.LockedJobIDs = make([]string, 0, len(p.locked))
		for key := range p.locked {
			s.LockedJobIDs = append(s.LockedJobIDs, key)
		}
		s.ToClaimJobIDs = make([]string, 0, len(p.jobsToClaim))
		for _, h := range p.jobsToClaim {
			s.ToClaimJobIDs = append(s.ToClaimJobIDs, h.Job().ID.String())
		}
	}

	return s
}
