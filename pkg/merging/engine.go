// Package merging folds a source catalog entity into a target entity in one transaction.
package merging

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type EntityStore interface {
	GetForUpdate(ctx context.Context, entityType, id string) (*models.Entity, error)
	Save(ctx context.Context, e *models.Entity) error
	Delete(ctx context.Context, entityType, id string) error
}

// Repointer moves rows that reference one entity id onto another and reports how many moved.
type Repointer interface {
	Repoint(ctx context.Context, fromID, toID string) (int, error)
}

type AuditSink interface {
	Create(ctx context.Context, req models.CreateAuditLogRequest) (*models.AuditLog, error)
}

// Locker serializes merges into the same target across instances.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type GraphProjector interface {
	RepointEntity(ctx context.Context, projectID, entityType, fromID, toID string) error
	UpsertEntity(ctx context.Context, e *models.Entity) error
}

type EventPublisher interface {
	EmitEntityMerged(ctx context.Context, projectID, entityType, sourceID string, strategy models.MergeStrategy, result *models.MergeResult) error
}

type Engine struct {
	db          database.DB
	entities    EntityStore
	links       Repointer
	attachments Repointer
	audit       AuditSink
	locker      Locker
	graph       GraphProjector
	events      EventPublisher
	logger      ectologger.Logger
}

func NewEngine(db database.DB, entities EntityStore, links, attachments Repointer, audit AuditSink, logger ectologger.Logger) *Engine {
	return &Engine{
		db:          db,
		entities:    entities,
		links:       links,
		attachments: attachments,
		audit:       audit,
		logger:      logger,
	}
}

func (e *Engine) WithLocker(locker Locker) *Engine {
	e.locker = locker
	return e
}

func (e *Engine) WithGraph(graph GraphProjector) *Engine {
	e.graph = graph
	return e
}

func (e *Engine) WithEvents(events EventPublisher) *Engine {
	e.events = events
	return e
}

// Merge folds req.SourceEntityID into req.TargetEntityID. It always returns a result: on any
// failure nothing is written and the result carries the error with zeroed counts.
func (e *Engine) Merge(ctx context.Context, userID string, req models.MergeRequest) *models.MergeResult {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":      req.EntityType,
		"source_entity_id": req.SourceEntityID,
		"target_entity_id": req.TargetEntityID,
		"strategy":         req.Strategy,
	})

	var (
		result *models.MergeResult
		target *models.Entity
	)
	run := func(ctx context.Context) error {
		var err error
		result, target, err = e.merge(ctx, userID, req)
		return err
	}

	var err error
	if e.locker != nil {
		err = e.locker.WithLock(ctx, "merge:"+req.TargetEntityID, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.RecordMerge(req.EntityType, string(req.Strategy), "failed", time.Since(start))
		log.WithError(err).Warn("merge failed")
		return &models.MergeResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	metrics.RecordMerge(req.EntityType, string(req.Strategy), "success", time.Since(start))
	log.WithFields(map[string]any{
		"preserved_links":       result.PreservedLinks,
		"preserved_attachments": result.PreservedAttachments,
		"audit_log_id":          result.AuditLogID,
	}).Info("merged entities")

	e.project(ctx, req, target, result)
	return result
}

func (e *Engine) merge(ctx context.Context, userID string, req models.MergeRequest) (*models.MergeResult, *models.Entity, error) {
	if !models.IsEntityType(req.EntityType) {
		return nil, nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported entity type: %s", req.EntityType)
	}
	if !req.Strategy.IsValid() {
		return nil, nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Invalid merge strategy: %s", req.Strategy)
	}
	if req.SourceEntityID == req.TargetEntityID {
		return nil, nil, httperror.NewHTTPError(http.StatusBadRequest, "Cannot merge an entity into itself")
	}

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctxTx)

	// target first so concurrent merges into it queue on the row lock
	target, err := e.load(ctxTx, req.EntityType, req.TargetEntityID)
	if err != nil {
		return nil, nil, err
	}
	source, err := e.load(ctxTx, req.EntityType, req.SourceEntityID)
	if err != nil {
		return nil, nil, err
	}
	if source.ProjectID != target.ProjectID {
		return nil, nil, httperror.NewHTTPError(http.StatusBadRequest, "Cannot merge entities from different projects")
	}

	merged, err := ApplyStrategy(req.Strategy, source.Data.Data, target.Data.Data, req.FieldSelections)
	if err != nil {
		return nil, nil, err
	}
	target.Data = database.NewJSONB(merged)

	if err := e.entities.Save(ctxTx, target); err != nil {
		return nil, nil, err
	}

	links, err := e.links.Repoint(ctxTx, source.ID, target.ID)
	if err != nil {
		return nil, nil, err
	}
	attachments, err := e.attachments.Repoint(ctxTx, source.ID, target.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := e.entities.Delete(ctxTx, req.EntityType, source.ID); err != nil {
		return nil, nil, err
	}

	entry, err := e.audit.Create(ctxTx, models.CreateAuditLogRequest{
		UserID:     userID,
		Operation:  models.AuditOperationMerge,
		EntityType: req.EntityType,
		EntityID:   target.ID,
		Changes: models.Fields{
			"mergedFrom":           source.ID,
			"strategy":             string(req.Strategy),
			"preservedLinks":       links,
			"preservedAttachments": attachments,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, nil, err
	}

	return &models.MergeResult{
		Success:              true,
		MergedEntityID:       target.ID,
		PreservedLinks:       links,
		PreservedAttachments: attachments,
		AuditLogID:           entry.ID,
	}, target, nil
}

func (e *Engine) load(ctx context.Context, entityType, id string) (*models.Entity, error) {
	entity, err := e.entities.GetForUpdate(ctx, entityType, id)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "One or both entities not found")
		}
		return nil, err
	}
	return entity, nil
}

// project pushes a committed merge to the graph and the event stream. Failures are logged only.
func (e *Engine) project(ctx context.Context, req models.MergeRequest, target *models.Entity, result *models.MergeResult) {
	log := e.logger.WithContext(ctx).WithField("target_entity_id", req.TargetEntityID)

	if e.graph != nil {
		if err := e.graph.RepointEntity(ctx, target.ProjectID, req.EntityType, req.SourceEntityID, target.ID); err != nil {
			log.WithError(err).Warn("failed to repoint merged entity in graph")
		} else if err := e.graph.UpsertEntity(ctx, target); err != nil {
			log.WithError(err).Warn("failed to update merged entity in graph")
		}
	}

	if e.events != nil {
		if err := e.events.EmitEntityMerged(ctx, target.ProjectID, req.EntityType, req.SourceEntityID, req.Strategy, result); err != nil {
			log.WithError(err).Warn("failed to emit entity.merged event")
		}
	}
}
