package validation

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ResultRepository interface {
	ListByEntity(ctx context.Context, projectID, entityType, entityID string) ([]models.ValidationResult, error)
	ListByProject(ctx context.Context, projectID, entityType string) ([]models.ValidationResult, error)
	Get(ctx context.Context, id string) (*models.ValidationResult, error)
	Acknowledge(ctx context.Context, id string) error
}

// SiblingLoader returns the other entities of the same type in a project, used to fill
// Context.AllEntities when duplicate checking is requested.
type SiblingLoader interface {
	ListFields(ctx context.Context, projectID, entityType string) ([]models.Fields, error)
}

type Service struct {
	engine   *Engine
	results  ResultRepository
	siblings SiblingLoader
	logger   ectologger.Logger
}

func NewService(engine *Engine, results ResultRepository, siblings SiblingLoader, logger ectologger.Logger) *Service {
	return &Service{
		engine:   engine,
		results:  results,
		siblings: siblings,
		logger:   logger,
	}
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// Validate runs the applicable rules, or only ruleNames when given. Results are stored only
// for a full pass over a persisted entity.
func (s *Service) Validate(ctx context.Context, vctx *Context, ruleNames []string, checkDuplicates bool) ([]Finding, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Validate")
	defer span.End()

	if checkDuplicates && s.siblings != nil {
		siblings, err := s.siblings.ListFields(ctx, vctx.ProjectID, vctx.EntityType)
		if err != nil {
			return nil, err
		}
		// a stored entity is among its own siblings
		if vctx.EntityID != "" {
			siblings = ectolinq.Filter(siblings, func(f models.Fields) bool { return f.StringValue("id") != vctx.EntityID })
		}
		vctx.AllEntities = siblings
	}

	if len(ruleNames) > 0 {
		return s.engine.ValidateWithRules(ctx, vctx, ruleNames...), nil
	}

	findings, err := s.engine.ValidateAndStore(ctx, vctx)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store validation results")
	}
	return findings, nil
}

// CanSave validates the entity and rejects it when any Error finding remains, unless
// allowOverride is set.
func (s *Service) CanSave(ctx context.Context, vctx *Context, allowOverride bool) ([]Finding, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.CanSave")
	defer span.End()

	findings := s.engine.ValidateEntity(ctx, vctx)
	if allowOverride || !HasErrors(findings) {
		return findings, nil
	}

	errs := BySeverity(findings, models.SeverityError)
	return findings, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "Cannot save entity due to validation errors: %s", Describe(errs))
}

func (s *Service) GetValidationResults(ctx context.Context, projectID, entityType, entityID string) ([]models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.GetValidationResults")
	defer span.End()

	return s.results.ListByEntity(ctx, projectID, entityType, entityID)
}

// GetProjectValidationResults lists a project's stored results, optionally for one entity type.
func (s *Service) GetProjectValidationResults(ctx context.Context, projectID, entityType string) ([]models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.GetProjectValidationResults")
	defer span.End()

	return s.results.ListByProject(ctx, projectID, entityType)
}

// AcknowledgeWarning marks a stored result as acknowledged. Errors cannot be acknowledged.
func (s *Service) AcknowledgeWarning(ctx context.Context, id string) (*models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.AcknowledgeWarning")
	defer span.End()

	result, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if result.Severity == models.SeverityError {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Cannot acknowledge errors, only warnings")
	}

	if err := s.results.Acknowledge(ctx, id); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"validation_result_id": id,
		"rule":                 result.RuleName,
	}).Info("Acknowledged validation result")

	result.Acknowledged = true
	return result, nil
}

func (s *Service) GetSummary(ctx context.Context, projectID string) (*models.ValidationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.GetSummary")
	defer span.End()

	results, err := s.results.ListByProject(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	return Summarize(results), nil
}

func Summarize(results []models.ValidationResult) *models.ValidationSummary {
	summary := &models.ValidationSummary{
		Total:        len(results),
		ByEntityType: map[string]int{},
		ByRule:       map[string]int{},
	}
	count := func(severity models.Severity) int {
		return len(ectolinq.Filter(results, func(r models.ValidationResult) bool { return r.Severity == severity }))
	}
	summary.Errors = count(models.SeverityError)
	summary.Warnings = count(models.SeverityWarning)
	summary.Info = count(models.SeverityInfo)
	summary.Acknowledged = len(ectolinq.Filter(results, func(r models.ValidationResult) bool { return r.Acknowledged }))

	for _, r := range results {
		summary.ByEntityType[r.EntityType]++
		summary.ByRule[r.RuleName]++
	}
	return summary
}
