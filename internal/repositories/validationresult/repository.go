package validationresult

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "validation_results"

var columns = []string{"id", "project_id", "entity_type", "entity_id", "rule_name", "severity", "message", "acknowledged", "created_at"}

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

// ReplaceForEntity deletes the entity's stored results and inserts results in one transaction.
// Readers never see old and new results together.
func (r *Repository) ReplaceForEntity(ctx context.Context, projectID, entityType, entityID string, results []models.ValidationResult) error {
	ctx, span := tracing.StartSpan(ctx, "validationresult.Repository.ReplaceForEntity")
	defer span.End()

	return database.WithTx(ctx, r.db, func(ctx context.Context) error {
		q := database.GetQuerier(ctx, r.db)

		db := database.NewDeleteBuilder()
		db.DeleteFrom(tableName)
		db.Where(
			db.Equal("project_id", projectID),
			db.Equal("entity_type", entityType),
			db.Equal("entity_id", entityID),
		)
		query, args := db.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("failed to clear validation results")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to clear validation results: %s", err.Error())
		}

		if len(results) == 0 {
			return nil
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(tableName)
		ib.Cols(columns...)
		for _, res := range results {
			ib.Values(res.ID, projectID, entityType, entityID, res.RuleName, res.Severity, res.Message, false, res.CreatedAt)
		}
		query, args = ib.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"entity_id": entityID,
				"count":     len(results),
			}).Error("failed to insert validation results")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert validation results: %s", err.Error())
		}
		return nil
	})
}

func (r *Repository) ListByEntity(ctx context.Context, projectID, entityType, entityID string) ([]models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validationresult.Repository.ListByEntity")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	return r.list(ctx, query, args)
}

// ListByProject lists a project's results. An empty entityType lists every type.
func (r *Repository) ListByProject(ctx context.Context, projectID, entityType string) ([]models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validationresult.Repository.ListByProject")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("project_id", projectID))
	if entityType != "" {
		sb.Where(sb.Equal("entity_type", entityType))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	return r.list(ctx, query, args)
}

func (r *Repository) list(ctx context.Context, query string, args []any) ([]models.ValidationResult, error) {
	results := []models.ValidationResult{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list validation results")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list validation results: %s", err.Error())
	}
	return results, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validationresult.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var result models.ValidationResult
	if err := database.GetQuerier(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "validation result %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("validation_result_id", id).Error("failed to get validation result")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get validation result: %s", err.Error())
	}
	return &result, nil
}

func (r *Repository) Acknowledge(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "validationresult.Repository.Acknowledge")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("acknowledged", true))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("validation_result_id", id).Error("failed to acknowledge validation result")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to acknowledge validation result: %s", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "validation result %s not found", id)
	}
	return nil
}
