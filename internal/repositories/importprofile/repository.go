package importprofile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "import_profiles"

var columns = []string{"id", "name", "entity_type", "column_mappings", "created_at", "created_by"}

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

func (r *Repository) Create(ctx context.Context, profile *models.ImportProfile) error {
	ctx, span := tracing.StartSpan(ctx, "importprofile.Repository.Create")
	defer span.End()

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(profile.ID, profile.Name, profile.EntityType, profile.ColumnMappings, profile.CreatedAt, profile.CreatedBy)

	query, args := ib.Build()
	if _, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("profile_name", profile.Name).Error("failed to create import profile")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create import profile: %s", err.Error())
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ImportProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "importprofile.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var profile models.ImportProfile
	if err := database.GetQuerier(ctx, r.db).GetContext(ctx, &profile, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "Import profile not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithField("profile_id", id).Error("failed to get import profile")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get import profile: %s", err.Error())
	}
	return &profile, nil
}

// List returns profiles newest first, optionally only those for entityType.
func (r *Repository) List(ctx context.Context, entityType string) ([]models.ImportProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "importprofile.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	if entityType != "" {
		sb.Where(sb.Equal("entity_type", entityType))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()

	profiles := []models.ImportProfile{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &profiles, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list import profiles")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list import profiles: %s", err.Error())
	}
	return profiles, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importprofile.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("profile_id", id).Error("failed to delete import profile")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete import profile: %s", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "Import profile not found")
	}
	return nil
}
