package models

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

type JobType string

const (
	JobTypeImport     JobType = "import"
	JobTypeExport     JobType = "export"
	JobTypeValidation JobType = "validation"
	JobTypeTestRun    JobType = "test_run"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

var JobStatuses = []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:    {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning:   {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:    {JobStatusQueued},
	JobStatusCancelled: {JobStatusQueued},
}

// CanTransitionTo reports whether the job lifecycle allows moving from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) IsValid() bool {
	_, ok := jobTransitions[s]
	return ok || s == JobStatusCompleted
}

type Job struct {
	ID          string                          `db:"id" json:"id"`
	Type        JobType                         `db:"type" json:"type"`
	ProjectID   string                          `db:"project_id" json:"project_id"`
	Status      JobStatus                       `db:"status" json:"status"`
	Progress    int                             `db:"progress" json:"progress"`
	Payload     database.JSONB[json.RawMessage] `db:"payload" json:"payload,omitempty"`
	Result      database.JSONB[json.RawMessage] `db:"result" json:"result,omitempty"`
	Error       *string                         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time                       `db:"created_at" json:"created_at"`
	StartedAt   *time.Time                      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time                      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedBy   string                          `db:"created_by" json:"created_by"`
}

// JobRun is the part of a job that identifies its current attempt. Retry clears StartedAt and the
// next Start sets a new one.
type JobRun struct {
	Status    JobStatus  `db:"status"`
	StartedAt *time.Time `db:"started_at"`
}

// Continues reports whether r is still the Running attempt that began at startedAt.
func (r JobRun) Continues(startedAt *time.Time) bool {
	if r.Status != JobStatusRunning || r.StartedAt == nil || startedAt == nil {
		return false
	}
	return r.StartedAt.Equal(*startedAt)
}

type CreateJobRequest struct {
	Type      JobType
	ProjectID string
	Payload   any
	CreatedBy string
}

type JobStats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Add counts n jobs in status.
func (s *JobStats) Add(status JobStatus, n int) {
	s.Total += n
	switch status {
	case JobStatusQueued:
		s.Queued += n
	case JobStatusRunning:
		s.Running += n
	case JobStatusCompleted:
		s.Completed += n
	case JobStatusFailed:
		s.Failed += n
	case JobStatusCancelled:
		s.Cancelled += n
	}
}
