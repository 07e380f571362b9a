package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type capturePublisher struct {
	events []*kafka.Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, event *kafka.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func newEmitter(pub Publisher) *Emitter {
	return NewEmitter(pub, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEmitValidationCompleted(t *testing.T) {
	pub := &capturePublisher{}
	findings := []models.ValidationFinding{
		{RuleName: "Naming Convention", Severity: models.SeverityError, Message: "Tag name is required"},
		{RuleName: "Scaling and Units", Severity: models.SeverityWarning, Message: "Scale range is very small"},
		{RuleName: "Scaling and Units", Severity: models.SeverityInfo, Message: "ok", Passed: true},
	}

	err := newEmitter(pub).EmitValidationCompleted(context.Background(), "p1", "tag", "e1", findings)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	event := pub.events[0]
	assert.Equal(t, EventValidationCompleted, event.EventType)
	assert.Equal(t, "p1", event.ProjectID)
	assert.Equal(t, "e1", event.EntityID)
	assert.Equal(t, "tag", event.EntityType)

	data := decode(t, event.Data)
	assert.Equal(t, float64(1), data["errors"])
	assert.Equal(t, float64(1), data["warnings"])
	assert.Equal(t, float64(0), data["info"])
	assert.Equal(t, SchemaVersion, data["schema_version"])
}

func TestEmitEntityMerged(t *testing.T) {
	pub := &capturePublisher{}
	result := &models.MergeResult{Success: true, MergedEntityID: "target", PreservedLinks: 2, PreservedAttachments: 1, AuditLogID: "a1"}

	err := newEmitter(pub).EmitEntityMerged(context.Background(), "p1", "equipment", "source", models.MergeStrategyOverwrite, result)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	event := pub.events[0]
	assert.Equal(t, EventEntityMerged, event.EventType)
	assert.Equal(t, "target", event.EntityID)

	data := decode(t, event.Data)
	assert.Equal(t, "source", data["merged_from"])
	assert.Equal(t, "overwrite", data["strategy"])
	assert.Equal(t, float64(2), data["preserved_links"])
	assert.Equal(t, float64(1), data["preserved_attachments"])
}

func TestEmitImportFinished(t *testing.T) {
	t.Run("completed job carries counts", func(t *testing.T) {
		pub := &capturePublisher{}
		job := &models.Job{ID: "j1", ProjectID: "p1", Status: models.JobStatusCompleted}
		report := &models.ImportReport{EntityType: "tag", TotalRows: 3, Success: 2, Errors: 1}

		require.NoError(t, newEmitter(pub).EmitImportFinished(context.Background(), job, report))
		data := decode(t, pub.events[0].Data)
		assert.Equal(t, "completed", data["status"])
		assert.Equal(t, float64(3), data["total_rows"])
		assert.Equal(t, "j1", pub.events[0].EntityID)
		assert.Equal(t, "tag", pub.events[0].EntityType)
	})

	t.Run("failed job carries error", func(t *testing.T) {
		pub := &capturePublisher{}
		msg := "row source unavailable"
		job := &models.Job{ID: "j1", ProjectID: "p1", Status: models.JobStatusFailed, Error: &msg}

		require.NoError(t, newEmitter(pub).EmitImportFinished(context.Background(), job, nil))
		data := decode(t, pub.events[0].Data)
		assert.Equal(t, msg, data["error"])
		assert.NotContains(t, data, "total_rows")
	})
}

func TestEmitPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	err := newEmitter(pub).EmitValidationCompleted(context.Background(), "p1", "tag", "e1", nil)
	assert.EqualError(t, err, "broker down")
}
