package importprofile

import (
	"context"
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

func TestRepository_Create(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec(`INSERT INTO import_profiles \(id, name, entity_type, column_mappings, created_at, created_by\)`).
		WithArgs(sqlmock.AnyArg(), "Signal sheet", "signal", `{"Tag":"name"}`, sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	profile := &models.ImportProfile{
		Name:           "Signal sheet",
		EntityType:     "signal",
		ColumnMappings: database.NewJSONB(models.ColumnMappings{"Tag": "name"}),
		CreatedBy:      "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), profile))
	assert.NotEmpty(t, profile.ID)
	assert.False(t, profile.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes mappings", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		rows := sqlmock.NewRows(columns).
			AddRow("p-1", "Alarms", "alarm", []byte(`{"Tag":"name","High":"high_limit"}`), time.Now(), "user-1")
		mock.ExpectQuery(`SELECT .* FROM import_profiles WHERE id = \$1`).WithArgs("p-1").WillReturnRows(rows)

		profile, err := repo.Get(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "high_limit", profile.ColumnMappings.Data["High"])
	})

	t.Run("missing profile is 404", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT .* FROM import_profiles`).WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.Get(ctx, "p-9")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestRepository_List(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectQuery(`SELECT .* FROM import_profiles WHERE entity_type = \$1 ORDER BY created_at DESC`).
		WithArgs("device").
		WillReturnRows(sqlmock.NewRows(columns))

	profiles, err := repo.List(context.Background(), "device")
	require.NoError(t, err)
	assert.NotNil(t, profiles)
	assert.Empty(t, profiles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Delete(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec(`DELETE FROM import_profiles WHERE id = \$1`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "p-9")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
