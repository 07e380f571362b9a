package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const (
	projectID = "7d4f2c1e-3b5a-4e8f-9a6b-1c2d3e4f5a6b"
	entityID  = "0b6f1d2c-8e7a-4f3b-a1c2-d3e4f5a6b7c8"
	otherID   = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newServer(handlers ...Registrar) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Use(middleware.Context())
	Register(e, handlers...)
	return e
}

type call struct {
	method string
	path   string
	body   string
	user   string
}

func do(t *testing.T, e *echo.Echo, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if c.user != "" {
		req.Header.Set(middleware.HeaderUserID, c.user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type fakeValidation struct {
	vctx            *validation.Context
	ruleNames       []string
	checkDuplicates bool
	findings        []validation.Finding
	results         []models.ValidationResult
	acknowledged    string
}

func (f *fakeValidation) Validate(_ context.Context, vctx *validation.Context, ruleNames []string, checkDuplicates bool) ([]validation.Finding, error) {
	f.vctx = vctx
	f.ruleNames = ruleNames
	f.checkDuplicates = checkDuplicates
	return f.findings, nil
}

func (f *fakeValidation) GetValidationResults(_ context.Context, _, _, _ string) ([]models.ValidationResult, error) {
	return f.results, nil
}

func (f *fakeValidation) GetProjectValidationResults(_ context.Context, _, entityType string) ([]models.ValidationResult, error) {
	var out []models.ValidationResult
	for _, r := range f.results {
		if entityType == "" || r.EntityType == entityType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeValidation) AcknowledgeWarning(_ context.Context, id string) (*models.ValidationResult, error) {
	if id == otherID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Cannot acknowledge errors, only warnings")
	}
	f.acknowledged = id
	return &models.ValidationResult{ID: id, Severity: models.SeverityWarning, Acknowledged: true}, nil
}

func (f *fakeValidation) GetSummary(_ context.Context, _ string) (*models.ValidationSummary, error) {
	return validation.Summarize(f.results), nil
}

type stubRule struct {
	name  string
	types []string
}

func (r stubRule) Name() string          { return r.name }
func (r stubRule) Description() string   { return r.name + " check" }
func (r stubRule) EntityTypes() []string { return r.types }
func (r stubRule) Validate(context.Context, *validation.Context) ([]validation.Finding, error) {
	return nil, nil
}

func TestValidationRoutes(t *testing.T) {
	registry := validation.NewRegistry(testLogger())
	registry.RegisterAll(stubRule{name: "Naming", types: []string{"tag"}}, stubRule{name: "Duplicates"}, stubRule{name: "Alarm", types: []string{"alarm"}})

	svc := &fakeValidation{
		findings: []validation.Finding{validation.Warning("Naming", "Tag name is lowercase")},
		results: []models.ValidationResult{
			{ID: "r1", EntityType: "tag", RuleName: "Naming", Severity: models.SeverityWarning},
			{ID: "r2", EntityType: "alarm", RuleName: "Alarm", Severity: models.SeverityError},
		},
	}
	e := newServer(NewValidationHandler(svc, registry, testLogger()))

	t.Run("validate", func(t *testing.T) {
		rec := do(t, e, call{
			method: http.MethodPost,
			path:   "/api/v1/projects/" + projectID + "/validate",
			body:   `{"entity_type":"tag","entity_id":"` + entityID + `","entity":{"name":"fic-101"},"rules":["Naming"],"check_duplicates":true}`,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ValidateResponse](t, rec)
		assert.True(t, resp.Valid)
		assert.True(t, resp.HasWarnings)
		assert.Len(t, resp.Findings, 1)

		assert.Equal(t, projectID, svc.vctx.ProjectID)
		assert.Equal(t, entityID, svc.vctx.EntityID)
		assert.Equal(t, "fic-101", svc.vctx.Entity["name"])
		assert.Equal(t, []string{"Naming"}, svc.ruleNames)
		assert.True(t, svc.checkDuplicates)
	})

	t.Run("validate rejects bad input", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			body string
		}{
			{"missing entity", "/api/v1/projects/" + projectID + "/validate", `{"entity_type":"tag"}`},
			{"unknown type", "/api/v1/projects/" + projectID + "/validate", `{"entity_type":"pump","entity":{"name":"x"}}`},
			{"bad project id", "/api/v1/projects/not-a-uuid/validate", `{"entity_type":"tag","entity":{"name":"x"}}`},
			{"bad entity id", "/api/v1/projects/" + projectID + "/validate", `{"entity_type":"tag","entity_id":"x","entity":{"name":"x"}}`},
			{"malformed body", "/api/v1/projects/" + projectID + "/validate", `{`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := do(t, e, call{method: http.MethodPost, path: tt.path, body: tt.body})
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("project results filtered by type", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/projects/" + projectID + "/validation-results?entity_type=alarm"})
		require.Equal(t, http.StatusOK, rec.Code)
		results := decode[[]models.ValidationResult](t, rec)
		require.Len(t, results, 1)
		assert.Equal(t, "r2", results[0].ID)
	})

	t.Run("entity results", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/projects/" + projectID + "/validation-results/tag/" + entityID})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("summary", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/projects/" + projectID + "/validation-summary"})
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode[models.ValidationSummary](t, rec)
		assert.Equal(t, 2, summary.Total)
		assert.Equal(t, 1, summary.Errors)
	})

	t.Run("acknowledge", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodPost, path: "/api/v1/validation-results/" + entityID + "/acknowledge"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, entityID, svc.acknowledged)

		rec = do(t, e, call{method: http.MethodPost, path: "/api/v1/validation-results/" + otherID + "/acknowledge"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Cannot acknowledge errors, only warnings", decode[middleware.ErrorResponse](t, rec).Message)
	})

	t.Run("rules", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/validation-rules"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]RuleInfo](t, rec), 3)

		rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/validation-rules?entity_type=tag"})
		rules := decode[[]RuleInfo](t, rec)
		require.Len(t, rules, 2)
		assert.Equal(t, "Naming", rules[0].Name)
		assert.Equal(t, []string{}, rules[1].EntityTypes)
	})
}

type fakeDuplicates struct {
	rule     *models.DuplicateMatchRule
	incoming []models.Fields
}

func (f *fakeDuplicates) DetectInProject(_ context.Context, _, _ string, incoming []models.Fields, rule *models.DuplicateMatchRule) ([]models.DuplicateCandidate, error) {
	f.rule = rule
	f.incoming = incoming
	return []models.DuplicateCandidate{{ExistingEntity: models.Fields{"name": "FIC-101"}, NewEntity: incoming[0], MatchScore: 1, MatchedFields: []string{"name"}}}, nil
}

type fakeMerger struct {
	userID string
	req    models.MergeRequest
	result *models.MergeResult
}

func (f *fakeMerger) Merge(_ context.Context, userID string, req models.MergeRequest) *models.MergeResult {
	f.userID = userID
	f.req = req
	return f.result
}

func TestMergeRoutes(t *testing.T) {
	dups := &fakeDuplicates{}
	merger := &fakeMerger{}
	e := newServer(NewMergeHandler(dups, merger, testLogger()))

	t.Run("detect duplicates", func(t *testing.T) {
		rec := do(t, e, call{
			method: http.MethodPost,
			path:   "/api/v1/projects/" + projectID + "/merge/detect-duplicates",
			body:   `{"entity_type":"tag","entities":[{"name":"fic-101"}],"match_rule":{"match_fields":["name"],"similarity_threshold":0.9}}`,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[DetectDuplicatesResponse](t, rec)
		assert.Equal(t, 1, resp.Count)
		require.NotNil(t, dups.rule)
		assert.Equal(t, 0.9, dups.rule.SimilarityThreshold)
	})

	t.Run("detect duplicates rejects an invalid rule", func(t *testing.T) {
		rec := do(t, e, call{
			method: http.MethodPost,
			path:   "/api/v1/projects/" + projectID + "/merge/detect-duplicates",
			body:   `{"entity_type":"tag","entities":[{"name":"x"}],"match_rule":{"match_fields":["name"],"similarity_threshold":1.5}}`,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	mergeBody := `{"entity_type":"tag","source_entity_id":"` + entityID + `","target_entity_id":"` + otherID + `","strategy":"overwrite"}`

	t.Run("merge success", func(t *testing.T) {
		merger.result = &models.MergeResult{Success: true, MergedEntityID: otherID, PreservedLinks: 2}
		rec := do(t, e, call{method: http.MethodPost, path: "/api/v1/projects/" + projectID + "/merge", body: mergeBody, user: "user-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", merger.userID)
		assert.Equal(t, models.MergeStrategyOverwrite, merger.req.Strategy)
		assert.Equal(t, 2, decode[models.MergeResult](t, rec).PreservedLinks)
	})

	t.Run("failed merge is still a 200 result", func(t *testing.T) {
		merger.result = &models.MergeResult{Success: false, Error: "Source entity not found"}
		rec := do(t, e, call{method: http.MethodPost, path: "/api/v1/projects/" + projectID + "/merge", body: mergeBody, user: "user-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[models.MergeResult](t, rec)
		assert.False(t, result.Success)
		assert.Equal(t, "Source entity not found", result.Error)
	})

	t.Run("merge requires a user", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodPost, path: "/api/v1/projects/" + projectID + "/merge", body: mergeBody})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type fakeImports struct {
	started models.StartImportRequest
	deleted string
}

func (f *fakeImports) StartImport(_ context.Context, projectID, userID string, req models.StartImportRequest) (*models.Job, error) {
	f.started = req
	return &models.Job{ID: entityID, Type: models.JobTypeImport, ProjectID: projectID, Status: models.JobStatusQueued, CreatedBy: userID}, nil
}

func (f *fakeImports) GetReport(_ context.Context, jobID string) (*models.ImportReport, error) {
	if jobID == otherID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Import job is not yet complete")
	}
	return &models.ImportReport{JobID: jobID, Status: models.JobStatusCompleted, TotalRows: 3, Success: 3}, nil
}

func (f *fakeImports) CreateProfile(_ context.Context, userID string, req models.CreateImportProfileRequest) (*models.ImportProfile, error) {
	return &models.ImportProfile{ID: entityID, Name: req.Name, EntityType: req.EntityType, CreatedBy: userID}, nil
}

func (f *fakeImports) ListProfiles(context.Context, string) ([]models.ImportProfile, error) {
	return nil, nil
}

func (f *fakeImports) GetProfile(_ context.Context, id string) (*models.ImportProfile, error) {
	return nil, httperror.NewHTTPError(http.StatusNotFound, "Import profile not found")
}

func (f *fakeImports) DeleteProfile(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func TestImportRoutes(t *testing.T) {
	svc := &fakeImports{}
	e := newServer(NewImportHandler(svc, testLogger()))

	t.Run("start", func(t *testing.T) {
		rec := do(t, e, call{
			method: http.MethodPost,
			path:   "/api/v1/projects/" + projectID + "/imports",
			body:   `{"file_path":"/uploads/tags.csv","entity_type":"tag","column_mappings":{"Tag":"name"}}`,
			user:   "user-1",
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
		job := decode[models.Job](t, rec)
		assert.Equal(t, models.JobStatusQueued, job.Status)
		assert.Equal(t, "user-1", job.CreatedBy)
		assert.Equal(t, models.ColumnMappings{"Tag": "name"}, svc.started.ColumnMappings)
	})

	t.Run("start needs a file path", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodPost, path: "/api/v1/projects/" + projectID + "/imports", body: `{"entity_type":"tag"}`, user: "user-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("report", func(t *testing.T) {
		rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/imports/" + entityID + "/report"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, decode[models.ImportReport](t, rec).TotalRows)

		rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/imports/" + otherID + "/report"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("profiles", func(t *testing.T) {
		rec := do(t, e, call{
			method: http.MethodPost,
			path:   "/api/v1/import-profiles",
			body:   `{"name":"Tag list","entity_type":"tag","column_mappings":{"Tag":"name"}}`,
			user:   "user-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "user-1", decode[models.ImportProfile](t, rec).CreatedBy)

		rec = do(t, e, call{method: http.MethodPost, path: "/api/v1/import-profiles", body: `{"name":"x","entity_type":"tag","column_mappings":{}}`, user: "user-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/import-profiles?entity_type=tag"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]\n", rec.Body.String())

		rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/import-profiles/" + entityID})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, e, call{method: http.MethodDelete, path: "/api/v1/import-profiles/" + entityID})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, entityID, svc.deleted)
	})
}

type fakeJobs struct {
	status string
}

func (f *fakeJobs) Get(_ context.Context, id string) (*models.Job, error) {
	if id == otherID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "Job with ID %s not found", id)
	}
	return &models.Job{ID: id, Status: models.JobStatusRunning}, nil
}

func (f *fakeJobs) ListAll(_ context.Context, status string) ([]models.Job, error) {
	f.status = status
	return nil, nil
}

func (f *fakeJobs) ListByProject(_ context.Context, projectID string) ([]models.Job, error) {
	return []models.Job{{ID: entityID, ProjectID: projectID}}, nil
}

func (f *fakeJobs) Stats(context.Context, string) (*models.JobStats, error) {
	return &models.JobStats{Total: 3, Queued: 1, Completed: 2}, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id string) (*models.Job, error) {
	return &models.Job{ID: id, Status: models.JobStatusCancelled}, nil
}

func (f *fakeJobs) Retry(_ context.Context, id string) (*models.Job, error) {
	return nil, httperror.NewHTTPError(http.StatusBadRequest, "Cannot retry job with status completed. Only failed or cancelled jobs can be retried.")
}

func TestJobRoutes(t *testing.T) {
	svc := &fakeJobs{}
	e := newServer(NewJobHandler(svc, testLogger()))

	rec := do(t, e, call{method: http.MethodGet, path: "/api/v1/jobs?status=failed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", svc.status)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/jobs/" + entityID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/jobs/" + otherID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/jobs/nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, call{method: http.MethodPost, path: "/api/v1/jobs/" + entityID + "/cancel"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.JobStatusCancelled, decode[models.Job](t, rec).Status)

	rec = do(t, e, call{method: http.MethodPost, path: "/api/v1/jobs/" + entityID + "/retry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[middleware.ErrorResponse](t, rec).Message, "Only failed or cancelled jobs can be retried")

	rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/projects/" + projectID + "/jobs"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Job](t, rec), 1)

	rec = do(t, e, call{method: http.MethodGet, path: "/api/v1/projects/" + projectID + "/jobs/stats"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[models.JobStats](t, rec).Total)
}
