package routes

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ImportService interface {
	StartImport(ctx context.Context, projectID, userID string, req models.StartImportRequest) (*models.Job, error)
	GetReport(ctx context.Context, jobID string) (*models.ImportReport, error)
	CreateProfile(ctx context.Context, userID string, req models.CreateImportProfileRequest) (*models.ImportProfile, error)
	ListProfiles(ctx context.Context, entityType string) ([]models.ImportProfile, error)
	GetProfile(ctx context.Context, id string) (*models.ImportProfile, error)
	DeleteProfile(ctx context.Context, id string) error
}

type ImportHandler struct {
	service ImportService
	logger  ectologger.Logger
}

func NewImportHandler(service ImportService, logger ectologger.Logger) *ImportHandler {
	return &ImportHandler{
		service: service,
		logger:  logger,
	}
}

func (h *ImportHandler) Register(g *echo.Group) {
	g.POST("/projects/:projectId/imports", h.Start)
	g.GET("/imports/:jobId/report", h.Report)

	profiles := g.Group("/import-profiles")
	profiles.POST("", h.CreateProfile)
	profiles.GET("", h.ListProfiles)
	profiles.GET("/:id", h.GetProfile)
	profiles.DELETE("/:id", h.DeleteProfile)
}

// Start queues an import job and answers 202 with the job.
func (h *ImportHandler) Start(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.Start")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[models.StartImportRequest](c)
	if err != nil {
		return err
	}

	job, err := h.service.StartImport(ctx, projectID, userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, job)
}

func (h *ImportHandler) Report(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.Report")
	defer span.End()

	jobID, err := ParseUUID(c, "jobId")
	if err != nil {
		return err
	}

	report, err := h.service.GetReport(ctx, jobID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, report)
}

func (h *ImportHandler) CreateProfile(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.CreateProfile")
	defer span.End()

	userID, err := UserID(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[models.CreateImportProfileRequest](c)
	if err != nil {
		return err
	}

	profile, err := h.service.CreateProfile(ctx, userID, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{"id": profile.ID, "entity_type": profile.EntityType}).Info("Created import profile")
	return CreatedResponse(c, profile)
}

func (h *ImportHandler) ListProfiles(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.ListProfiles")
	defer span.End()

	profiles, err := h.service.ListProfiles(ctx, c.QueryParam("entity_type"))
	if err != nil {
		return err
	}
	if profiles == nil {
		profiles = []models.ImportProfile{}
	}
	return SuccessResponse(c, profiles)
}

func (h *ImportHandler) GetProfile(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.GetProfile")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	profile, err := h.service.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, profile)
}

func (h *ImportHandler) DeleteProfile(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ImportHandler.DeleteProfile")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.DeleteProfile(ctx, id); err != nil {
		return err
	}
	return NoContentResponse(c)
}
