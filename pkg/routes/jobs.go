package routes

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type JobService interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	ListAll(ctx context.Context, status string) ([]models.Job, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Job, error)
	Stats(ctx context.Context, projectID string) (*models.JobStats, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	Retry(ctx context.Context, id string) (*models.Job, error)
}

type JobHandler struct {
	service JobService
	logger  ectologger.Logger
}

func NewJobHandler(service JobService, logger ectologger.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

func (h *JobHandler) Register(g *echo.Group) {
	jobs := g.Group("/jobs")
	jobs.GET("", h.List)
	jobs.GET("/:id", h.Get)
	jobs.POST("/:id/cancel", h.Cancel)
	jobs.POST("/:id/retry", h.Retry)

	g.GET("/projects/:projectId/jobs", h.ListByProject)
	g.GET("/projects/:projectId/jobs/stats", h.Stats)
}

func (h *JobHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.List")
	defer span.End()

	jobs, err := h.service.ListAll(ctx, c.QueryParam("status"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, nonNilJobs(jobs))
}

func (h *JobHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Get")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	job, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, job)
}

func (h *JobHandler) Cancel(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Cancel")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	job, err := h.service.Cancel(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, job)
}

func (h *JobHandler) Retry(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Retry")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	job, err := h.service.Retry(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, job)
}

func (h *JobHandler) ListByProject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.ListByProject")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	jobs, err := h.service.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, nonNilJobs(jobs))
}

func (h *JobHandler) Stats(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Stats")
	defer span.End()

	projectID, err := ParseUUID(c, "projectId")
	if err != nil {
		return err
	}

	stats, err := h.service.Stats(ctx, projectID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, stats)
}

func nonNilJobs(jobs []models.Job) []models.Job {
	if jobs == nil {
		return []models.Job{}
	}
	return jobs
}
