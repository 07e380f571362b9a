package routes

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type ValidationService interface {
	Validate(ctx context.Context, vctx *validation.Context, ruleNames []string, checkDuplicates bool) ([]validation.Finding, error)
	GetValidationResults(ctx context.Context, projectID, entityType, entityID string) ([]models.ValidationResult, error)
	GetProjectValidationResults(ctx context.Context, projectID, entityType string) ([]models.ValidationResult, error)
	AcknowledgeWarning(ctx context.Context, id string) (*models.ValidationResult, error)
	GetSummary(ctx context.Context, projectID string) (*models.ValidationSummary, error)
}

type RuleCatalog interface {
	All() []validation.Rule
	ForEntityType(entityType string) []validation.Rule
}

type ValidationHandler struct {
	service ValidationService
	rules   RuleCatalog
	logger  ectologger.Logger
}

func NewValidationHandler(service ValidationService, rules RuleCatalog, logger ectologger.Logger) *ValidationHandler {
	return &ValidationHandler{
		service: service,
		rules:   rules,
		logger:  logger,
	}
}

type ValidateRequest struct {
	EntityType      string        `json:"entity_type" validate:"required"`
	EntityID        string        `json:"entity_id,omitempty" validate:"omitempty,uuid"`
	Entity          models.Fields `json:"entity" validate:"required"`
	Rules           []string      `json:"rules,omitempty"`
	CheckDuplicates bool          `json:"check_duplicates,omitempty"`
}

type ValidateResponse struct {
	Valid       bool                 `json:"valid"`
	HasWarnings bool                 `json:"has_warnings"`
	Findings    []validation.Finding `json:"findings"`
}

type RuleInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	EntityTypes []string `json:"entity_types"`
}

func (h *ValidationHandler) Register(g *echo.Group) {
	g.POST("/projects/:projectId/validate", h.Validate)
	g.GET("/projects/:projectId/validation-results", h.ListProjectResults)
	g.GET("/projects/:projectId/validation-results/:entityType/:entityId", h.ListEntityResults)
	g.GET("/projects/:projectId/validation-summary", h.Summary)
	g.POST("/validation-results/:id/acknowledge", h.Acknowledge)
	g.GET("/validation-rules", h.ListRules)
}

// Validate runs the rules against a posted entity. Results are stored when entity_id is given.
func (h *ValidationHandler) Validate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ValidationHandler.Validate")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	req, err := BindRequest[ValidateRequest](c)
	if err != nil {
		return err
	}
	if !models.IsEntityType(req.EntityType) {
		return BadRequest("Unsupported entity type: " + req.EntityType)
	}

	findings, err := h.service.Validate(ctx, &validation.Context{
		ProjectID:  projectID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Entity:     req.Entity,
	}, req.Rules, req.CheckDuplicates)
	if err != nil {
		return err
	}

	if findings == nil {
		findings = []validation.Finding{}
	}
	return SuccessResponse(c, ValidateResponse{
		Valid:       !validation.HasErrors(findings),
		HasWarnings: validation.HasWarnings(findings),
		Findings:    findings,
	})
}

func (h *ValidationHandler) ListProjectResults(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ValidationHandler.ListProjectResults")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	results, err := h.service.GetProjectValidationResults(ctx, projectID, c.QueryParam("entity_type"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, results)
}

func (h *ValidationHandler) ListEntityResults(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ValidationHandler.ListEntityResults")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}
	entityID, err := ParseUUID(c, "entityId")
	if err != nil {
		return err
	}

	results, err := h.service.GetValidationResults(ctx, projectID, c.Param("entityType"), entityID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, results)
}

func (h *ValidationHandler) Summary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ValidationHandler.Summary")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	summary, err := h.service.GetSummary(ctx, projectID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

func (h *ValidationHandler) Acknowledge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ValidationHandler.Acknowledge")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.service.AcknowledgeWarning(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// ListRules lists the registered rules, optionally only those applying to entity_type.
func (h *ValidationHandler) ListRules(c echo.Context) error {
	rules := h.rules.All()
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		rules = h.rules.ForEntityType(entityType)
	}

	infos := make([]RuleInfo, 0, len(rules))
	for _, rule := range rules {
		types := rule.EntityTypes()
		if types == nil {
			types = []string{}
		}
		infos = append(infos, RuleInfo{
			Name:        rule.Name(),
			Description: rule.Description(),
			EntityTypes: types,
		})
	}
	return SuccessResponse(c, infos)
}
