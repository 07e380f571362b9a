package importer

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type JobCreator interface {
	Create(ctx context.Context, req models.CreateJobRequest) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
}

type ProfileStore interface {
	Create(ctx context.Context, profile *models.ImportProfile) error
	Get(ctx context.Context, id string) (*models.ImportProfile, error)
	List(ctx context.Context, entityType string) ([]models.ImportProfile, error)
	Delete(ctx context.Context, id string) error
}

// Service starts import jobs, reads their reports and manages saved column mappings.
type Service struct {
	jobs     JobCreator
	profiles  ProfileStore
	logger    ectologger.Logger
	stat      func(name string) (fs.FileInfo, error)
	uploadDir string
}

func NewService(jobs JobCreator, profiles ProfileStore, logger ectologger.Logger) *Service {
	return &Service{
		jobs:     jobs,
		profiles: profiles,
		logger:   logger,
		stat:     os.Stat,
	}
}

// WithUploadDir confines imported files to dir. Relative file paths are resolved against it.
func (s *Service) WithUploadDir(dir string) *Service {
	s.uploadDir = dir
	return s
}

// StartImport creates a queued import job. Mappings come from the request or, when a profile id
// is given, from the saved profile.
func (s *Service) StartImport(ctx context.Context, projectID, userID string, req models.StartImportRequest) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.StartImport")
	defer span.End()

	if !models.IsEntityType(req.EntityType) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported entity type: %s", req.EntityType)
	}

	mappings := req.ColumnMappings
	if req.ProfileID != "" {
		profile, err := s.profiles.Get(ctx, req.ProfileID)
		if err != nil {
			return nil, err
		}
		if profile.EntityType != req.EntityType {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Import profile %s is for %s, not %s", profile.Name, profile.EntityType, req.EntityType)
		}
		if len(mappings) == 0 {
			mappings = profile.ColumnMappings.Data
		}
	}
	if len(mappings) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Column mappings are required")
	}

	path, err := ConfinePath(s.uploadDir, req.FilePath)
	if err != nil {
		return nil, err
	}
	if _, err := s.stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "File not found")
		}
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read upload: %s", err.Error())
	}

	job, err := s.jobs.Create(ctx, models.CreateJobRequest{
		Type:      models.JobTypeImport,
		ProjectID: projectID,
		Payload: models.ImportSpec{
			FilePath:       path,
			SourceFile:     filepath.Base(path),
			SheetName:      req.SheetName,
			EntityType:     req.EntityType,
			ColumnMappings: mappings,
			ProfileID:      req.ProfileID,
		},
		CreatedBy: userID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":      job.ID,
		"project_id":  projectID,
		"entity_type": req.EntityType,
	}).Info("Import job queued")
	return job, nil
}

// GetReport returns the report of a finished import job. Cancelled jobs report the rows processed
// before the cancellation.
func (s *Service) GetReport(ctx context.Context, jobID string) (*models.ImportReport, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.GetReport")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Type != models.JobTypeImport {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Job is not an import job")
	}
	if !job.Status.IsTerminal() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "Import job is not yet complete")
	}

	report := &models.ImportReport{}
	if len(job.Result.Data) > 0 && string(job.Result.Data) != "null" {
		if err := json.Unmarshal(job.Result.Data, report); err != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read import report: %s", err.Error())
		}
	}

	report.JobID = job.ID
	report.Status = job.Status
	report.TotalRows = report.Success + report.Errors
	if report.ErrorDetails == nil {
		report.ErrorDetails = []models.RowError{}
	}
	if report.WarningDetails == nil {
		report.WarningDetails = []models.RowWarning{}
	}
	if report.SourceFile == "" {
		report.SourceFile = "unknown"
	}
	if report.SheetName == "" {
		report.SheetName = "Sheet1"
	}
	if report.EntityType == "" {
		report.EntityType = "unknown"
	}
	if job.StartedAt != nil {
		report.StartedAt = *job.StartedAt
	}
	if job.CompletedAt != nil {
		report.CompletedAt = job.CompletedAt
	}
	return report, nil
}

func (s *Service) CreateProfile(ctx context.Context, userID string, req models.CreateImportProfileRequest) (*models.ImportProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.CreateProfile")
	defer span.End()

	if !models.IsEntityType(req.EntityType) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported entity type: %s", req.EntityType)
	}

	profile := &models.ImportProfile{
		Name:           req.Name,
		EntityType:     req.EntityType,
		ColumnMappings: database.NewJSONB(req.ColumnMappings),
		CreatedBy:      userID,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) ListProfiles(ctx context.Context, entityType string) ([]models.ImportProfile, error) {
	return s.profiles.List(ctx, entityType)
}

func (s *Service) GetProfile(ctx context.Context, id string) (*models.ImportProfile, error) {
	return s.profiles.Get(ctx, id)
}

func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	return s.profiles.Delete(ctx, id)
}
