package entity

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "catalog_entities"

var columns = []string{"id", "project_id", "entity_type", "name", "data", "import_lineage", "created_by", "created_at", "updated_at"}

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

// Create inserts a new entity. The name column mirrors data.name for indexed lookups.
func (r *Repository) Create(ctx context.Context, req models.CreateEntityRequest) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	e := &models.Entity{
		ID:         uuid.New().String(),
		ProjectID:  req.ProjectID,
		EntityType: req.EntityType,
		Name:       nameOf(req.Data),
		Data:       database.NewJSONB(req.Data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.ImportLineage != nil {
		lineage := database.NewJSONB(req.ImportLineage)
		e.ImportLineage = &lineage
	}
	if req.CreatedBy != "" {
		e.CreatedBy = &req.CreatedBy
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(e.ID, e.ProjectID, e.EntityType, e.Name, e.Data, e.ImportLineage, e.CreatedBy, e.CreatedAt, e.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id":  req.ProjectID,
			"entity_type": req.EntityType,
		}).Error("failed to create entity")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create entity: %s", err.Error())
	}

	return e, nil
}

func (r *Repository) Get(ctx context.Context, entityType, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	return r.get(ctx, entityType, id, false)
}

// GetForUpdate reads the entity and locks its row until the surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, entityType, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetForUpdate")
	defer span.End()

	return r.get(ctx, entityType, id, true)
}

func (r *Repository) get(ctx context.Context, entityType, id string, lock bool) (*models.Entity, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("entity_type", entityType),
	)
	if lock {
		sb.ForUpdate()
	}

	query, args := sb.Build()

	var e models.Entity
	if err := database.GetQuerier(ctx, r.db).GetContext(ctx, &e, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", entityType, id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": entityType,
			"entity_id":   id,
		}).Error("failed to get entity")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get entity: %s", err.Error())
	}
	return &e, nil
}

func (r *Repository) ListByProject(ctx context.Context, projectID, entityType string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListByProject")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("entity_type", entityType),
	)
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()

	entities := []models.Entity{}
	if err := database.GetQuerier(ctx, r.db).SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id":  projectID,
			"entity_type": entityType,
		}).Error("failed to list entities")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list entities: %s", err.Error())
	}
	return entities, nil
}

// ListFields returns the property bags, id included, of a project's entities of one type.
func (r *Repository) ListFields(ctx context.Context, projectID, entityType string) ([]models.Fields, error) {
	entities, err := r.ListByProject(ctx, projectID, entityType)
	if err != nil {
		return nil, err
	}
	fields := make([]models.Fields, len(entities))
	for i := range entities {
		fields[i] = entities[i].Fields()
	}
	return fields, nil
}

// Save writes the entity's data under its id.
func (r *Repository) Save(ctx context.Context, e *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Save")
	defer span.End()

	e.Name = nameOf(e.Data.Data)
	e.UpdatedAt = time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("name", e.Name),
		ub.Assign("data", e.Data),
		ub.Assign("updated_at", e.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", e.ID),
		ub.Equal("entity_type", e.EntityType),
	)

	query, args := ub.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", e.ID).Error("failed to save entity")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to save entity: %s", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", e.EntityType, e.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, entityType, id string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(
		db.Equal("id", id),
		db.Equal("entity_type", entityType),
	)

	query, args := db.Build()
	res, err := database.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", id).Error("failed to delete entity")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete entity: %s", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", entityType, id)
	}
	return nil
}

func nameOf(f models.Fields) *string {
	name := strings.TrimSpace(f.StringValue("name"))
	if name == "" {
		return nil
	}
	return &name
}
