package link

import (
	"context"
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
)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger), logger), mock
}

func TestRepository_ListByEntity(t *testing.T) {
	repo, mock := newTestRepository(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(columns).
		AddRow("l-1", "project-1", "signal", "e-1", "alarm", "e-2", "triggers", nil, "user-1", now).
		AddRow("l-2", "project-1", "device", "e-3", "signal", "e-1", "contains", "rack", "user-1", now)
	mock.ExpectQuery(`SELECT .* FROM links WHERE .*source_entity_id = .* OR target_entity_id = `).
		WillReturnRows(rows)

	links, err := repo.ListByEntity(context.Background(), "e-1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "e-2", links[0].TargetEntityID)
	assert.Equal(t, "e-1", links[1].TargetEntityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Repoint(t *testing.T) {
	ctx := context.Background()

	t.Run("moves both ends", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(`UPDATE links SET source_entity_id = CASE WHEN .* target_entity_id = CASE WHEN`).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.Repoint(ctx, "old", "new")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure is 500", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(`UPDATE links`).WillReturnError(errors.New("deadlock detected"))

		_, err := repo.Repoint(ctx, "old", "new")
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	})
}
