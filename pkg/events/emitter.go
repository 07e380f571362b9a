// Package events publishes data-quality lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const SchemaVersion = "1.0"

const (
	EventValidationCompleted = "validation.completed"
	EventEntityMerged        = "entity.merged"
	EventImportFinished      = "import.finished"
)

type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitValidationCompleted reports the stored failing findings of one entity.
func (e *Emitter) EmitValidationCompleted(ctx context.Context, projectID, entityType, entityID string, findings []models.ValidationFinding) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitValidationCompleted")
	defer span.End()

	counts := map[models.Severity]int{}
	for _, f := range findings {
		if !f.Passed {
			counts[f.Severity]++
		}
	}

	return e.emit(ctx, &kafka.Event{
		EventType:  EventValidationCompleted,
		ProjectID:  projectID,
		EntityID:   entityID,
		EntityType: entityType,
	}, map[string]any{
		"errors":   counts[models.SeverityError],
		"warnings": counts[models.SeverityWarning],
		"info":     counts[models.SeverityInfo],
		"findings": findings,
	})
}

func (e *Emitter) EmitEntityMerged(ctx context.Context, projectID, entityType, sourceID string, strategy models.MergeStrategy, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	return e.emit(ctx, &kafka.Event{
		EventType:  EventEntityMerged,
		ProjectID:  projectID,
		EntityID:   result.MergedEntityID,
		EntityType: entityType,
	}, map[string]any{
		"merged_from":           sourceID,
		"strategy":              strategy,
		"preserved_links":       result.PreservedLinks,
		"preserved_attachments": result.PreservedAttachments,
		"audit_log_id":          result.AuditLogID,
	})
}

// EmitImportFinished is keyed by job id. report is nil for failed jobs.
func (e *Emitter) EmitImportFinished(ctx context.Context, job *models.Job, report *models.ImportReport) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitImportFinished")
	defer span.End()

	data := map[string]any{"status": job.Status}
	entityType := ""
	if report != nil {
		entityType = report.EntityType
		data["total_rows"] = report.TotalRows
		data["success"] = report.Success
		data["errors"] = report.Errors
		data["warnings"] = report.Warnings
	}
	if job.Error != nil {
		data["error"] = *job.Error
	}

	return e.emit(ctx, &kafka.Event{
		EventType:  EventImportFinished,
		ProjectID:  job.ProjectID,
		EntityID:   job.ID,
		EntityType: entityType,
	}, data)
}

func (e *Emitter) emit(ctx context.Context, event *kafka.Event, data map[string]any) error {
	data["schema_version"] = SchemaVersion
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}
	event.Data = raw

	if err := e.publisher.Publish(ctx, event); err != nil {
		metrics.RecordEvent(event.EventType, "failed")
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.EventType)
		return err
	}

	metrics.RecordEvent(event.EventType, "published")
	return nil
}
