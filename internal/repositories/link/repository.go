package link

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "links"

var columns = []string{"id", "project_id", "source_entity_type", "source_entity_id", "target_entity_type", "target_entity_id", "link_type", "description", "created_by", "created_at"}

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

// ListByEntity returns every link with entityID on either side.
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.ListByEntity")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Or(
		sb.Equal("source_entity_id", entityID),
		sb.Equal("target_entity_id", entityID),
	))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()

	links := []models.Link{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("failed to list links")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list links: %s", err.Error())
	}
	return links, nil
}

// Repoint moves both ends of every link that references fromID onto toID and returns the
// number of links changed. A link between the two entities becomes a self link on toID.
func (r *Repository) Repoint(ctx context.Context, fromID, toID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.Repoint")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	from, to := ub.Var(fromID), ub.Var(toID)
	ub.Set(
		fmt.Sprintf("source_entity_id = CASE WHEN source_entity_id = %s THEN %s ELSE source_entity_id END", from, to),
		fmt.Sprintf("target_entity_id = CASE WHEN target_entity_id = %s THEN %s ELSE target_entity_id END", from, to),
	)
	ub.Where(ub.Or(
		fmt.Sprintf("source_entity_id = %s", from),
		fmt.Sprintf("target_entity_id = %s", from),
	))

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_entity_id": fromID,
			"to_entity_id":   toID,
		}).Error("failed to repoint links")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint links: %s", err.Error())
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
