package job

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger), logger), mock
}

func TestRepository_Get(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		rows := sqlmock.NewRows(columns).
			AddRow("job-1", "import", "project-1", "queued", 0, []byte(`{"file_path":"a.csv"}`), nil, nil, created, nil, nil, "user-1")
		mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1`).WithArgs("job-1").WillReturnRows(rows)

		job, err := repo.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, models.JobTypeImport, job.Type)
		assert.Equal(t, models.JobStatusQueued, job.Status)
		assert.JSONEq(t, `{"file_path":"a.csv"}`, string(job.Payload.Data))
		assert.Nil(t, job.StartedAt)
		assert.Equal(t, "user-1", job.CreatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing job is 404", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT .* FROM jobs`).WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(ctx, "job-2")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("driver failure is 500", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT .* FROM jobs`).WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(ctx, "job-3")
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	})
}

func TestRepository_GetRun(t *testing.T) {
	repo, mock := newTestRepository(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT status, started_at FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "started_at"}).AddRow("running", started))

	run, err := repo.GetRun(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, run.Status)
	assert.True(t, run.Continues(&started))
	assert.NoError(t, mock.ExpectationsWereMet())

	t.Run("missing job is a 404", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT status, started_at FROM jobs`).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetRun(context.Background(), "job-1")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestRepository_Transition(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	job := &models.Job{ID: "job-1", Status: models.JobStatusRunning, StartedAt: &now}

	t.Run("updates while status matches", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(`UPDATE jobs SET .* WHERE id = \$7 AND status = \$8`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Transition(ctx, job, models.JobStatusQueued))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race is 409", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Transition(ctx, job, models.JobStatusQueued)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}

func TestRepository_UpdateProgress(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec(`UPDATE jobs SET progress = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(40, "job-1", models.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.UpdateProgress(context.Background(), "job-1", 40)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CountByStatus(t *testing.T) {
	repo, mock := newTestRepository(t)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("queued", 2).
		AddRow("completed", 5).
		AddRow("failed", 1)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM jobs WHERE project_id = \$1 GROUP BY status`).
		WithArgs("project-1").
		WillReturnRows(rows)

	stats, err := repo.CountByStatus(context.Background(), "project-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStats{Total: 8, Queued: 2, Completed: 5, Failed: 1}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeleteFinishedBefore(t *testing.T) {
	repo, mock := newTestRepository(t)
	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectExec(`DELETE FROM jobs WHERE status IN \(\$1, \$2\) AND completed_at < \$3`).
		WithArgs(models.JobStatusCompleted, models.JobStatusCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteFinishedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
