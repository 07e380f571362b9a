package auditlog

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "audit_logs"

var columns = []string{"id", "user_id", "operation", "entity_type", "entity_id", "changes", "timestamp"}

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

func (r *Repository) Create(ctx context.Context, req models.CreateAuditLogRequest) (*models.AuditLog, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Create")
	defer span.End()

	entry := &models.AuditLog{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Operation:  req.Operation,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Changes:    database.NewJSONB(req.Changes),
		Timestamp:  time.Now().UTC(),
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(entry.ID, entry.UserID, entry.Operation, entry.EntityType, entry.EntityID, entry.Changes, entry.Timestamp)

	query, args := ib.Build()
	if _, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"operation": req.Operation,
			"entity_id": req.EntityID,
		}).Error("failed to write audit log")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to write audit log: %s", err.Error())
	}
	return entry, nil
}

func (r *Repository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.ListByEntity")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)
	sb.OrderBy("timestamp").Desc()

	query, args := sb.Build()

	entries := []models.AuditLog{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("failed to list audit logs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list audit logs: %s", err.Error())
	}
	return entries, nil
}
