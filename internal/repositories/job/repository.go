package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "jobs"

var columns = []string{"id", "type", "project_id", "status", "progress", "payload", "result", "error", "created_at", "started_at", "completed_at", "created_by"}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, job *models.Job) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(job.ID, job.Type, job.ProjectID, job.Status, job.Progress, job.Payload, job.Result, job.Error, job.CreatedAt, job.StartedAt, job.CompletedAt, job.CreatedBy)

	query, args := ib.Build()
	if _, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id":     job.ID,
			"job_type":   job.Type,
			"project_id": job.ProjectID,
		}).Error("failed to create job")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create job: %s", err.Error())
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var job models.Job
	if err := database.GetQuerier(ctx, r.db).GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "Job with ID %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("job_id", id).Error("failed to get job")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get job: %s", err.Error())
	}
	return &job, nil
}

// GetRun reads only the run columns. The import loop calls it between rows.
func (r *Repository) GetRun(ctx context.Context, id string) (*models.JobRun, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.GetRun")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("status", "started_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var run models.JobRun
	if err := database.GetQuerier(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "Job with ID %s not found", id)
		}
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get job run: %s", err.Error())
	}
	return &run, nil
}

func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListByProject")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("project_id", projectID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	return r.list(ctx, query, args)
}

// ListAll lists every job, newest first, optionally filtered by status.
func (r *Repository) ListAll(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListAll")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	return r.list(ctx, query, args)
}

func (r *Repository) list(ctx context.Context, query string, args []any) ([]models.Job, error) {
	jobs := []models.Job{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list jobs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list jobs: %s", err.Error())
	}
	return jobs, nil
}

// Transition writes the job's mutable columns only while its stored status is still from.
// A concurrent change of status makes it fail with 409.
func (r *Repository) Transition(ctx context.Context, job *models.Job, from models.JobStatus) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Transition")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", job.Status),
		ub.Assign("progress", job.Progress),
		ub.Assign("result", job.Result),
		ub.Assign("error", job.Error),
		ub.Assign("started_at", job.StartedAt),
		ub.Assign("completed_at", job.CompletedAt),
	)
	ub.Where(
		ub.Equal("id", job.ID),
		ub.Equal("status", from),
	)

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id": job.ID,
			"from":   from,
			"to":     job.Status,
		}).Error("failed to update job status")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update job: %s", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "Job %s is no longer %s", job.ID, from)
	}
	return nil
}

// UpdateProgress sets progress on a running job. It reports whether a row was updated.
func (r *Repository) UpdateProgress(ctx context.Context, id string, progress int) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.UpdateProgress")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("progress", progress))
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.JobStatusRunning),
	)

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update job progress: %s", err.Error())
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetResult stores result without changing status. Used for the partial report of a
// cancelled import.
func (r *Repository) SetResult(ctx context.Context, id string, result json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.SetResult")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("result", string(result)))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_id", id).Error("failed to store job result")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to store job result: %s", err.Error())
	}
	return nil
}

type statusCount struct {
	Status models.JobStatus `db:"status"`
	Count  int              `db:"count"`
}

func (r *Repository) CountByStatus(ctx context.Context, projectID string) (*models.JobStats, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.CountByStatus")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS count")
	sb.From(tableName)
	sb.Where(sb.Equal("project_id", projectID))
	sb.GroupBy("status")

	query, args := sb.Build()

	var rows []statusCount
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("project_id", projectID).Error("failed to count jobs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count jobs: %s", err.Error())
	}

	stats := &models.JobStats{}
	for _, row := range rows {
		stats.Add(row.Status, row.Count)
	}
	return stats, nil
}

// DeleteFinishedBefore removes completed and cancelled jobs that finished before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.DeleteFinishedBefore")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(
		db.In("status", models.JobStatusCompleted, models.JobStatusCancelled),
		db.LessThan("completed_at", cutoff),
	)

	query, args := db.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to sweep jobs")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to sweep jobs: %s", err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
