package routes

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type DuplicateFinder interface {
	DetectInProject(ctx context.Context, projectID, entityType string, incoming []models.Fields, rule *models.DuplicateMatchRule) ([]models.DuplicateCandidate, error)
}

type Merger interface {
	Merge(ctx context.Context, userID string, req models.MergeRequest) *models.MergeResult
}

type MergeHandler struct {
	duplicates DuplicateFinder
	merger     Merger
	logger     ectologger.Logger
}

func NewMergeHandler(duplicates DuplicateFinder, merger Merger, logger ectologger.Logger) *MergeHandler {
	return &MergeHandler{
		duplicates: duplicates,
		merger:     merger,
		logger:     logger,
	}
}

type DetectDuplicatesRequest struct {
	EntityType string                     `json:"entity_type" validate:"required"`
	Entities   []models.Fields            `json:"entities" validate:"required,min=1"`
	MatchRule  *models.DuplicateMatchRule `json:"match_rule,omitempty"`
}

type DetectDuplicatesResponse struct {
	Candidates []models.DuplicateCandidate `json:"candidates"`
	Count      int                         `json:"count"`
}

func (h *MergeHandler) Register(g *echo.Group) {
	g.POST("/projects/:projectId/merge/detect-duplicates", h.DetectDuplicates)
	g.POST("/projects/:projectId/merge", h.Merge)
}

func (h *MergeHandler) DetectDuplicates(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergeHandler.DetectDuplicates")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	req, err := BindRequest[DetectDuplicatesRequest](c)
	if err != nil {
		return err
	}

	candidates, err := h.duplicates.DetectInProject(ctx, projectID, req.EntityType, req.Entities, req.MatchRule)
	if err != nil {
		return err
	}
	if candidates == nil {
		candidates = []models.DuplicateCandidate{}
	}

	return SuccessResponse(c, DetectDuplicatesResponse{Candidates: candidates, Count: len(candidates)})
}

// Merge always answers 200 with a MergeResult; a failed merge reports success=false.
func (h *MergeHandler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergeHandler.Merge")
	defer span.End()

	if _, err := ParseUUID(c, "projectId"); err != nil {
		return err
	}
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[models.MergeRequest](c)
	if err != nil {
		return err
	}

	result := h.merger.Merge(ctx, userID, req)
	if !result.Success {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"source_entity_id": req.SourceEntityID,
			"target_entity_id": req.TargetEntityID,
			"error":            result.Error,
		}).Warn("Merge did not complete")
	}
	return SuccessResponse(c, result)
}
