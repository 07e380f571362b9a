package attachment

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "attachments"

var columns = []string{"id", "project_id", "entity_type", "entity_id", "file_id", "description", "created_by", "created_at"}

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

func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Attachment, error) {
	ctx, span := tracing.StartSpan(ctx, "attachment.Repository.ListByEntity")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()

	attachments := []models.Attachment{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &attachments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("failed to list attachments")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list attachments: %s", err.Error())
	}
	return attachments, nil
}

// Repoint moves every attachment on fromID to toID and returns how many moved.
func (r *Repository) Repoint(ctx context.Context, fromID, toID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "attachment.Repository.Repoint")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("entity_id", toID))
	ub.Where(ub.Equal("entity_id", fromID))

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_entity_id": fromID,
			"to_entity_id":   toID,
		}).Error("failed to repoint attachments")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint attachments: %s", err.Error())
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
