package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/id"
	"github.com/camber-run/camber/job"
)

type jobModel struct {
	grove.BaseModel `grove:"table:camber_jobs"`

	ID             string     `grove:"id,pk"            bson:"_id"`
	Name           string     `grove:"name,notnull"     bson:"name"`
	Data           []byte     `grove:"data"             bson:"data,omitempty"`
	Priority       int        `grove:"priority,notnull" bson:"priority"`
	Type           string     `grove:"type,notnull"     bson:"type"`
	Disabled       bool       `grove:"disabled,notnull" bson:"disabled"`
	RepeatInterval string     `grove:"repeat_interval"  bson:"repeat_interval,omitempty"`
	NextRunAt      *time.Time `grove:"next_run_at"      bson:"next_run_at"`
	LockedAt       *time.Time `grove:"locked_at"        bson:"locked_at"`
	LastRunAt      *time.Time `grove:"last_run_at"      bson:"last_run_at,omitempty"`
	LastFinishedAt *time.Time `grove:"last_finished_at" bson:"last_finished_at,omitempty"`
	FailedAt       *time.Time `grove:"failed_at"        bson:"failed_at,omitempty"`
	FailCount      int        `grove:"fail_count,notnull" bson:"fail_count"`
	FailReason     string     `grove:"fail_reason"      bson:"fail_reason,omitempty"`
	Progress       *int       `grove:"progress"         bson:"progress,omitempty"`
	CreatedAt      time.Time  `grove:"created_at,notnull" bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at,notnull" bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Name:           j.Name,
		Data:           j.Data,
		Priority:       j.Priority,
		Type:           string(j.Type),
		Disabled:       j.Disabled,
		RepeatInterval: j.RepeatInterval,
		NextRunAt:      j.NextRunAt,
		LockedAt:       j.LockedAt,
		LastRunAt:      j.LastRunAt,
		LastFinishedAt: j.LastFinishedAt,
		FailedAt:       j.FailedAt,
		FailCount:      j.FailCount,
		FailReason:     j.FailReason,
		Progress:       j.Progress,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("camber/mongo: parse job id %q: %w", m.ID, err)
	}

	jobType := job.Type(m.Type)
	if jobType == "" {
		jobType = job.TypeNormal
	}

	return &job.Job{
		Entity: camber.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             parsedID,
		Name:           m.Name,
		Data:           m.Data,
		Priority:       m.Priority,
		Type:           jobType,
		Disabled:       m.Disabled,
		RepeatInterval: m.RepeatInterval,
		NextRunAt:      m.NextRunAt,
		LockedAt:       m.LockedAt,
		LastRunAt:      m.LastRunAt,
		LastFinishedAt: m.LastFinishedAt,
		FailedAt:       m.FailedAt,
		FailCount:      m.FailCount,
		FailReason:     m.FailReason,
		Progress:       m.Progress,
	}, nil
}
