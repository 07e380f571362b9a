// Package jobs owns the job lifecycle: creation, the status state machine, control operations
// and retention.
package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	GetRun(ctx context.Context, id string) (*models.JobRun, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Job, error)
	ListAll(ctx context.Context, status models.JobStatus) ([]models.Job, error)
	Transition(ctx context.Context, job *models.Job, from models.JobStatus) error
	UpdateProgress(ctx context.Context, id string, progress int) (bool, error)
	SetResult(ctx context.Context, id string, result json.RawMessage) error
	CountByStatus(ctx context.Context, projectID string) (*models.JobStats, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Queue hands a queued job to the workers.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type Service struct {
	store  Store
	queue  Queue
	logger ectologger.Logger
	now    func() time.Time
}

func NewService(store Store, queue Queue, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		queue:  queue,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a Queued job and enqueues it. When the queue rejects it the job is cancelled so
// that it can be retried; the reason goes to the log and the returned error.
func (s *Service) Create(ctx context.Context, req models.CreateJobRequest) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Create")
	defer span.End()

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid job payload: %s", err.Error())
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Type:      req.Type,
		ProjectID: req.ProjectID,
		Status:    models.JobStatusQueued,
		Progress:  0,
		Payload:   database.NewJSONB(json.RawMessage(payload)),
		CreatedAt: s.now(),
		CreatedBy: req.CreatedBy,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.RecordJobTransition(string(job.Type), string(job.Status))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":     job.ID,
		"job_type":   job.Type,
		"project_id": job.ProjectID,
	}).Info("job created")

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) enqueue(ctx context.Context, job *models.Job) error {
	if s.queue == nil {
		return nil
	}
	err := s.queue.Enqueue(ctx, job)
	if err == nil {
		return nil
	}

	s.logger.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Error("failed to enqueue job, cancelling it")
	msg := "Failed to enqueue job: " + err.Error()
	now := s.now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	if terr := s.transition(ctx, job, models.JobStatusQueued); terr != nil {
		s.logger.WithContext(ctx).WithError(terr).WithField("job_id", job.ID).Error("failed to cancel unqueued job")
	}
	return httperror.NewHTTPError(http.StatusServiceUnavailable, msg)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Get")
	defer span.End()

	return s.store.Get(ctx, id)
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.ListByProject")
	defer span.End()

	return s.store.ListByProject(ctx, projectID)
}

// ListAll lists every job, optionally only those in status.
func (s *Service) ListAll(ctx context.Context, status string) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.ListAll")
	defer span.End()

	st := models.JobStatus(status)
	if st != "" && !st.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Invalid job status: %s", status)
	}
	return s.store.ListAll(ctx, st)
}

func (s *Service) Stats(ctx context.Context, projectID string) (*models.JobStats, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Stats")
	defer span.End()

	return s.store.CountByStatus(ctx, projectID)
}

// Cancel moves a Queued or Running job to Cancelled. A running import notices between rows.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Cancel")
	defer span.End()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusRunning {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Cannot cancel job with status %s. Only queued or running jobs can be cancelled.", job.Status)
	}

	from := job.Status
	now := s.now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	if err := s.transition(ctx, job, from); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("job_id", id).Info("job cancelled")
	return job, nil
}

// Retry resets a Failed or Cancelled job to Queued and enqueues it again. The job starts over.
func (s *Service) Retry(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Retry")
	defer span.End()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusCancelled {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Cannot retry job with status %s. Only failed or cancelled jobs can be retried.", job.Status)
	}

	from := job.Status
	job.Status = models.JobStatusQueued
	job.Progress = 0
	job.Error = nil
	job.Result = database.JSONB[json.RawMessage]{}
	job.StartedAt = nil
	job.CompletedAt = nil
	if err := s.transition(ctx, job, from); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("job_id", id).Info("job queued for retry")

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start moves a Queued job to Running.
func (s *Service) Start(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Start")
	defer span.End()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := job.Status
	if err := checkTransition(job, models.JobStatusRunning); err != nil {
		return nil, err
	}
	// timestamptz keeps microseconds; StartedAt must compare equal after a round trip
	now := s.now().Truncate(time.Microsecond)
	job.Status = models.JobStatusRunning
	job.Progress = 0
	job.StartedAt = &now
	if err := s.transition(ctx, job, from); err != nil {
		return nil, err
	}
	return job, nil
}

// Progress records progress on a running job. It reports false when the job is no longer running.
func (s *Service) Progress(ctx context.Context, id string, progress int) (bool, error) {
	return s.store.UpdateProgress(ctx, id, progress)
}

// StillRunning re-reads the stored run and reports whether run is still the job's current attempt.
// The stored status is returned so the caller can tell a cancel from a restart.
func (s *Service) StillRunning(ctx context.Context, run *models.Job) (models.JobStatus, bool, error) {
	stored, err := s.store.GetRun(ctx, run.ID)
	if err != nil {
		return "", false, err
	}
	return stored.Status, stored.Continues(run.StartedAt), nil
}

// Complete stores result and moves a Running job to Completed.
func (s *Service) Complete(ctx context.Context, job *models.Job, result any) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Complete")
	defer span.End()

	raw, err := json.Marshal(result)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to marshal job result: %s", err.Error())
	}

	from := job.Status
	if err := checkTransition(job, models.JobStatusCompleted); err != nil {
		return err
	}
	now := s.now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Result = database.NewJSONB(json.RawMessage(raw))
	job.CompletedAt = &now
	return s.transition(ctx, job, from)
}

// Fail moves a Running job to Failed with message.
func (s *Service) Fail(ctx context.Context, job *models.Job, message string) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Fail")
	defer span.End()

	from := job.Status
	if err := checkTransition(job, models.JobStatusFailed); err != nil {
		return err
	}
	now := s.now()
	job.Status = models.JobStatusFailed
	job.Error = &message
	job.CompletedAt = &now
	return s.transition(ctx, job, from)
}

// Abandon gives up on a job the workers could not finish. A running job fails with message. A
// queued job is cancelled and message is only logged, since error belongs to failed jobs.
func (s *Service) Abandon(ctx context.Context, id, message string) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Abandon")
	defer span.End()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusRunning:
		return s.Fail(ctx, job, message)
	case models.JobStatusQueued:
		s.logger.WithContext(ctx).WithField("job_id", id).Warnf("cancelling abandoned job: %s", message)
		now := s.now()
		job.Status = models.JobStatusCancelled
		job.CompletedAt = &now
		return s.transition(ctx, job, models.JobStatusQueued)
	default:
		return nil
	}
}

// StoreResult writes result without touching status.
func (s *Service) StoreResult(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to marshal job result: %s", err.Error())
	}
	return s.store.SetResult(ctx, id, raw)
}

// SweepExpired deletes Completed and Cancelled jobs that finished more than olderThan ago.
func (s *Service) SweepExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.SweepExpired")
	defer span.End()

	n, err := s.store.DeleteFinishedBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	metrics.RecordJobsSwept(n)
	if n > 0 {
		s.logger.WithContext(ctx).Infof("swept %d expired jobs", n)
	}
	return n, nil
}

func checkTransition(job *models.Job, next models.JobStatus) error {
	if !job.Status.CanTransitionTo(next) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "Cannot move job %s from %s to %s", job.ID, job.Status, next)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, job *models.Job, from models.JobStatus) error {
	if err := s.store.Transition(ctx, job, from); err != nil {
		return err
	}
	metrics.RecordJobTransition(string(job.Type), string(job.Status))
	return nil
}
