package validation

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeResults struct {
	results      []models.ValidationResult
	acknowledged []string
}

func (f *fakeResults) ListByEntity(_ context.Context, projectID, entityType, entityID string) ([]models.ValidationResult, error) {
	var out []models.ValidationResult
	for _, r := range f.results {
		if r.ProjectID == projectID && r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) ListByProject(_ context.Context, projectID, entityType string) ([]models.ValidationResult, error) {
	var out []models.ValidationResult
	for _, r := range f.results {
		if r.ProjectID == projectID && (entityType == "" || r.EntityType == entityType) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) Get(_ context.Context, id string) (*models.ValidationResult, error) {
	for _, r := range f.results {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "validation result not found")
}

func (f *fakeResults) Acknowledge(_ context.Context, id string) error {
	f.acknowledged = append(f.acknowledged, id)
	return nil
}

type fakeSiblings struct {
	fields []models.Fields
}

func (f *fakeSiblings) ListFields(context.Context, string, string) ([]models.Fields, error) {
	return f.fields, nil
}

type siblingCountRule struct{}

func (siblingCountRule) Name() string          { return "siblings" }
func (siblingCountRule) Description() string   { return "" }
func (siblingCountRule) EntityTypes() []string { return nil }

func (siblingCountRule) Validate(_ context.Context, vctx *Context) ([]Finding, error) {
	if len(vctx.AllEntities) > 0 {
		return []Finding{Warning("siblings", "has siblings")}, nil
	}
	return []Finding{Pass("siblings", "alone")}, nil
}

var storedResults = []models.ValidationResult{
	{ID: "r1", ProjectID: "p1", EntityType: "tag", EntityID: "e1", RuleName: "Naming Convention", Severity: models.SeverityWarning},
	{ID: "r2", ProjectID: "p1", EntityType: "tag", EntityID: "e1", RuleName: "Scaling and Units", Severity: models.SeverityError},
	{ID: "r3", ProjectID: "p1", EntityType: "alarm", EntityID: "e2", RuleName: "Alarm Completeness", Severity: models.SeverityInfo, Acknowledged: true},
	{ID: "r4", ProjectID: "p2", EntityType: "tag", EntityID: "e9", RuleName: "Naming Convention", Severity: models.SeverityWarning},
}

func TestService_AcknowledgeWarning(t *testing.T) {
	repo := &fakeResults{results: storedResults}
	svc := NewService(newTestEngine(&memoryStore{}), repo, nil, testLogger())

	t.Run("acknowledges a warning", func(t *testing.T) {
		result, err := svc.AcknowledgeWarning(context.Background(), "r1")
		require.NoError(t, err)
		assert.True(t, result.Acknowledged)
		assert.Equal(t, []string{"r1"}, repo.acknowledged)
	})

	t.Run("rejects errors", func(t *testing.T) {
		_, err := svc.AcknowledgeWarning(context.Background(), "r2")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		assert.Contains(t, err.Error(), "Cannot acknowledge errors, only warnings")
	})

	t.Run("missing result", func(t *testing.T) {
		_, err := svc.AcknowledgeWarning(context.Background(), "nope")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestService_GetSummary(t *testing.T) {
	svc := NewService(newTestEngine(&memoryStore{}), &fakeResults{results: storedResults}, nil, testLogger())

	summary, err := svc.GetSummary(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Warnings)
	assert.Equal(t, 1, summary.Info)
	assert.Equal(t, 1, summary.Acknowledged)
	assert.Equal(t, map[string]int{"tag": 2, "alarm": 1}, summary.ByEntityType)
	assert.Equal(t, 1, summary.ByRule["Scaling and Units"])
}

func TestService_Queries(t *testing.T) {
	svc := NewService(newTestEngine(&memoryStore{}), &fakeResults{results: storedResults}, nil, testLogger())

	results, err := svc.GetValidationResults(context.Background(), "p1", "tag", "e1")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = svc.GetProjectValidationResults(context.Background(), "p1", "alarm")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r3", results[0].ID)
}

func TestService_CanSave(t *testing.T) {
	engine := newTestEngine(&memoryStore{},
		&stubRule{name: "Naming Convention", findings: []Finding{Error("Naming Convention", "Entity name is required")}},
		&stubRule{name: "Alarm Completeness", findings: []Finding{Error("Alarm Completeness", "Alarm priority is required")}},
	)
	svc := NewService(engine, &fakeResults{}, nil, testLogger())

	_, err := svc.CanSave(context.Background(), &Context{EntityType: "alarm"}, false)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "Cannot save entity due to validation errors: Naming Convention: Entity name is required; Alarm Completeness: Alarm priority is required")

	findings, err := svc.CanSave(context.Background(), &Context{EntityType: "alarm"}, true)
	require.NoError(t, err)
	assert.Len(t, findings, 2)
}

func TestService_Validate(t *testing.T) {
	t.Run("loads siblings when duplicates are checked", func(t *testing.T) {
		store := &memoryStore{}
		engine := newTestEngine(store, siblingCountRule{})
		svc := NewService(engine, &fakeResults{}, &fakeSiblings{fields: []models.Fields{{"name": "FT-101"}}}, testLogger())

		findings, err := svc.Validate(context.Background(), &Context{ProjectID: "p1", EntityType: "tag", EntityID: "e1"}, nil, true)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.False(t, findings[0].Passed)
		assert.Len(t, store.stored["p1/tag/e1"], 1)
	})

	t.Run("a stored entity is not its own duplicate", func(t *testing.T) {
		store := &memoryStore{}
		engine := newTestEngine(store, siblingCountRule{})
		siblings := &fakeSiblings{fields: []models.Fields{{"id": "e1", "name": "P-101"}}}
		svc := NewService(engine, &fakeResults{}, siblings, testLogger())

		vctx := &Context{ProjectID: "p1", EntityType: "tag", EntityID: "e1", Entity: models.Fields{"name": "P-101"}}
		findings, err := svc.Validate(context.Background(), vctx, nil, true)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.True(t, findings[0].Passed)
		assert.Empty(t, vctx.AllEntities)
		assert.Empty(t, store.stored["p1/tag/e1"])
	})

	t.Run("rule subset is not stored", func(t *testing.T) {
		store := &memoryStore{}
		engine := newTestEngine(store, siblingCountRule{})
		svc := NewService(engine, &fakeResults{}, nil, testLogger())

		findings, err := svc.Validate(context.Background(), &Context{ProjectID: "p1", EntityType: "tag", EntityID: "e1"}, []string{"siblings"}, false)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.True(t, findings[0].Passed)
		assert.Equal(t, 0, store.calls)
	})
}
