// Package importer turns rows of an uploaded file into validated catalog entities under an
// import job, producing a per-row report.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

var (
	// ErrCancelled is returned by Run when the job was cancelled between rows.
	ErrCancelled = errors.New("import cancelled")
	// ErrSuperseded is returned by Run when the job left this run for a newer attempt, as after a
	// cancel and retry.
	ErrSuperseded = errors.New("import superseded by a newer run")
)

// firstDataRow is the file row number of the first data row; row 1 is the header.
const firstDataRow = 2

// JobControl drives the job record through its lifecycle.
type JobControl interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Start(ctx context.Context, id string) (*models.Job, error)
	Progress(ctx context.Context, id string, progress int) (bool, error)
	StillRunning(ctx context.Context, run *models.Job) (models.JobStatus, bool, error)
	Complete(ctx context.Context, job *models.Job, result any) error
	Fail(ctx context.Context, job *models.Job, message string) error
	StoreResult(ctx context.Context, id string, result any) error
}

type Validator interface {
	ValidateEntity(ctx context.Context, vctx *validation.Context) []validation.Finding
	StoreResults(ctx context.Context, projectID, entityType, entityID string, findings []validation.Finding) error
}

type EntityCreator interface {
	Create(ctx context.Context, req models.CreateEntityRequest) (*models.Entity, error)
}

type GraphProjector interface {
	UpsertEntity(ctx context.Context, entity *models.Entity) error
}

type EventPublisher interface {
	EmitImportFinished(ctx context.Context, job *models.Job, report *models.ImportReport) error
}

// SourceResolver opens the row source for a job's import spec.
type SourceResolver func(spec models.ImportSpec) (RowSource, error)

type Pipeline struct {
	jobs      JobControl
	validator Validator
	entities  EntityCreator
	db        database.DB
	graph     GraphProjector
	events    EventPublisher
	sources   SourceResolver
	logger    ectologger.Logger
	now       func() time.Time
}

func NewPipeline(jobs JobControl, validator Validator, entities EntityCreator, logger ectologger.Logger) *Pipeline {
	return &Pipeline{
		jobs:      jobs,
		validator: validator,
		entities:  entities,
		sources:   SourceFor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithDB makes entity creation and warning storage for a row commit together.
func (p *Pipeline) WithDB(db database.DB) *Pipeline {
	p.db = db
	return p
}

func (p *Pipeline) WithGraph(graph GraphProjector) *Pipeline {
	p.graph = graph
	return p
}

func (p *Pipeline) WithEvents(events EventPublisher) *Pipeline {
	p.events = events
	return p
}

func (p *Pipeline) WithSources(sources SourceResolver) *Pipeline {
	p.sources = sources
	return p
}

// Handle runs the queued import job jobID. It returns an error only when the job could not be
// moved to a terminal state, so the queue redelivers it.
func (p *Pipeline) Handle(ctx context.Context, jobID string) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Pipeline.Handle")
	defer span.End()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusNotFound {
			p.logger.WithContext(ctx).WithField("job_id", jobID).Warn("Import job no longer exists")
			return nil
		}
		return err
	}

	switch job.Status {
	case models.JobStatusQueued:
	case models.JobStatusRunning:
		// a previous delivery died mid-run; the rows it wrote cannot be told apart from a fresh run
		return p.jobs.Fail(ctx, job, "Import was interrupted before completion")
	default:
		p.logger.WithContext(ctx).WithField("job_id", jobID).Infof("Skipping import job in status %s", job.Status)
		return nil
	}

	var spec models.ImportSpec
	if err := json.Unmarshal(job.Payload.Data, &spec); err != nil {
		return p.failQueued(ctx, job, fmt.Sprintf("Invalid import payload: %s", err.Error()))
	}

	source, err := p.sources(spec)
	if err != nil {
		return p.failQueued(ctx, job, err.Error())
	}

	_, err = p.Run(ctx, job.ID, job.CreatedBy, spec, source)
	switch {
	case err == nil, errors.Is(err, ErrCancelled), errors.Is(err, ErrSuperseded):
		return nil
	case httperror.GetStatusCode(err) == http.StatusConflict:
		p.logger.WithContext(ctx).WithError(err).WithField("job_id", jobID).Warn("Import job changed state underneath the worker")
		return nil
	default:
		return p.settled(ctx, jobID, err)
	}
}

func (p *Pipeline) failQueued(ctx context.Context, job *models.Job, message string) error {
	started, err := p.jobs.Start(ctx, job.ID)
	if err != nil {
		return err
	}
	return p.jobs.Fail(ctx, started, message)
}

// settled swallows a run error once the job reached a terminal state.
func (p *Pipeline) settled(ctx context.Context, jobID string, runErr error) error {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return runErr
	}
	if job.Status.IsTerminal() {
		return nil
	}
	return runErr
}

// Run executes an import against rows from source. The job must be Queued. Rows are processed
// strictly in order and the job's progress is written after each one.
func (p *Pipeline) Run(ctx context.Context, jobID, userID string, spec models.ImportSpec, source RowSource) (*models.ImportReport, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Pipeline.Run")
	defer span.End()

	start := time.Now()
	logger := p.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":      jobID,
		"entity_type": spec.EntityType,
	})

	job, err := p.jobs.Start(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logger.Infof("Starting import job %s for project %s", jobID, job.ProjectID)

	rows, numbers, err := readRows(ctx, source)
	if err != nil {
		return nil, p.fail(ctx, job, spec, err, start)
	}
	logger.Infof("Parsed %d rows from file", len(rows))

	report := p.newReport(job, spec, len(rows))
	for i, row := range rows {
		if status, running := p.stillRunning(ctx, job); !running {
			return p.stop(ctx, job, status, report, start)
		}

		p.processRow(ctx, job, spec, userID, numbers[i], row, report)

		progress := int(math.Round(float64(i+1) / float64(len(rows)) * 100))
		if _, err := p.jobs.Progress(ctx, jobID, progress); err != nil {
			logger.WithError(err).Warn("Failed to update import progress")
		}
	}

	completed := p.now()
	report.Status = models.JobStatusCompleted
	report.CompletedAt = &completed
	if err := p.jobs.Complete(ctx, job, report); err != nil {
		if httperror.GetStatusCode(err) == http.StatusConflict {
			if status, running := p.stillRunning(ctx, job); !running {
				return p.stop(ctx, job, status, report, start)
			}
		}
		return nil, err
	}

	logger.Infof("Import job %s completed: %d success, %d errors", jobID, report.Success, report.Errors)
	p.finish(ctx, job, report, start)
	return report, nil
}

func readRows(ctx context.Context, source RowSource) ([]Row, []int, error) {
	if numbered, ok := source.(NumberedSource); ok {
		return numbered.NumberedRows(ctx)
	}

	rows, err := source.Rows(ctx)
	if err != nil {
		return nil, nil, err
	}
	numbers := make([]int, len(rows))
	for i := range numbers {
		numbers[i] = firstDataRow + i
	}
	return rows, numbers, nil
}

func (p *Pipeline) newReport(job *models.Job, spec models.ImportSpec, total int) *models.ImportReport {
	started := p.now()
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	return &models.ImportReport{
		JobID:          job.ID,
		Status:         models.JobStatusRunning,
		TotalRows:      total,
		ErrorDetails:   []models.RowError{},
		WarningDetails: []models.RowWarning{},
		SourceFile:     sourceFile(spec),
		SheetName:      spec.SheetName,
		EntityType:     spec.EntityType,
		StartedAt:      started,
	}
}

// stillRunning reports whether job is still the current Running attempt. A failed read keeps the run
// going; the next row checks again.
func (p *Pipeline) stillRunning(ctx context.Context, job *models.Job) (models.JobStatus, bool) {
	status, running, err := p.jobs.StillRunning(ctx, job)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Warn("Failed to check import status")
		return models.JobStatusRunning, true
	}
	return status, running
}

// stop ends a run whose job moved on. Only a cancelled job gets the partial report; any other status
// belongs to a newer attempt and is left alone.
func (p *Pipeline) stop(ctx context.Context, job *models.Job, status models.JobStatus, report *models.ImportReport, start time.Time) (*models.ImportReport, error) {
	if status == models.JobStatusCancelled {
		return p.cancel(ctx, job, report, start)
	}

	p.logger.WithContext(ctx).WithField("job_id", job.ID).
		Warnf("Import run stopped after %d rows: job is now %s", report.Success+report.Errors, status)
	metrics.RecordImportJob(report.EntityType, "superseded", time.Since(start))
	return nil, ErrSuperseded
}

// cancel stores the partial report. The job keeps the Cancelled status it was given.
func (p *Pipeline) cancel(ctx context.Context, job *models.Job, report *models.ImportReport, start time.Time) (*models.ImportReport, error) {
	completed := p.now()
	report.Status = models.JobStatusCancelled
	report.TotalRows = report.Success + report.Errors
	report.CompletedAt = &completed
	if err := p.jobs.StoreResult(ctx, job.ID, report); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Warn("Failed to store partial import report")
	}

	p.logger.WithContext(ctx).WithField("job_id", job.ID).Infof("Import job cancelled after %d rows", report.TotalRows)
	job.Status = models.JobStatusCancelled
	p.finish(ctx, job, report, start)
	return report, ErrCancelled
}

func (p *Pipeline) fail(ctx context.Context, job *models.Job, spec models.ImportSpec, cause error, start time.Time) error {
	p.logger.WithContext(ctx).WithError(cause).WithField("job_id", job.ID).Error("Import job failed")
	tracing.RecordError(ctx, cause)
	metrics.RecordImportJob(spec.EntityType, string(models.JobStatusFailed), time.Since(start))

	if err := p.jobs.Fail(ctx, job, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (p *Pipeline) finish(ctx context.Context, job *models.Job, report *models.ImportReport, start time.Time) {
	metrics.RecordImportJob(report.EntityType, string(report.Status), time.Since(start))
	if p.events == nil {
		return
	}
	if err := p.events.EmitImportFinished(ctx, job, report); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Warn("Failed to emit import event")
	}
}

// processRow validates and stores one row, recording the outcome on report. A panic while
// handling the row becomes a row error.
func (p *Pipeline) processRow(ctx context.Context, job *models.Job, spec models.ImportSpec, userID string, rowNumber int, row Row, report *models.ImportReport) {
	defer func() {
		if r := recover(); r != nil {
			p.rowError(ctx, spec, report, models.RowError{Row: rowNumber, Error: fmt.Sprintf("%v", r), Data: row})
		}
	}()

	lineage := models.ImportLineage{
		SourceFile: report.SourceFile,
		SheetName:  spec.SheetName,
		RowNumber:  rowNumber,
		JobID:      job.ID,
	}
	fields := MapRow(row, spec.ColumnMappings)

	findings := p.validator.ValidateEntity(ctx, &validation.Context{
		ProjectID:  job.ProjectID,
		EntityType: spec.EntityType,
		Entity:     withMetadata(fields, job.ProjectID, userID, lineage),
	})

	if validation.HasErrors(findings) {
		errs := validation.BySeverity(findings, models.SeverityError)
		p.rowError(ctx, spec, report, models.RowError{
			Row:               rowNumber,
			Error:             "Validation failed: " + validation.Describe(errs),
			Data:              row,
			ValidationResults: errs,
		})
		return
	}

	entity, err := p.create(ctx, job.ProjectID, spec.EntityType, userID, fields, lineage, findings)
	if err != nil {
		p.rowError(ctx, spec, report, models.RowError{Row: rowNumber, Error: err.Error(), Data: row})
		return
	}

	if validation.HasWarnings(findings) {
		report.Warnings++
		report.WarningDetails = append(report.WarningDetails, models.RowWarning{
			Row: rowNumber,
			Warnings: ectolinq.Map(validation.BySeverity(findings, models.SeverityWarning), func(f validation.Finding) string {
				return f.RuleName + ": " + f.Message
			}),
			Data:     row,
			EntityID: entity.ID,
		})
		metrics.RecordImportRow(spec.EntityType, "warning")
	} else {
		metrics.RecordImportRow(spec.EntityType, "success")
	}
	report.Success++

	if p.graph != nil {
		if err := p.graph.UpsertEntity(ctx, entity); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("entity_id", entity.ID).Warn("Failed to project imported entity")
		}
	}
}

// create writes the entity and its failing findings in one transaction when a database is set.
func (p *Pipeline) create(ctx context.Context, projectID, entityType, userID string, fields models.Fields, lineage models.ImportLineage, findings []validation.Finding) (*models.Entity, error) {
	if !models.IsEntityType(entityType) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported entity type: %s", entityType)
	}

	var entity *models.Entity
	write := func(ctx context.Context) error {
		var err error
		entity, err = p.entities.Create(ctx, models.CreateEntityRequest{
			ProjectID:     projectID,
			EntityType:    entityType,
			Data:          fields,
			ImportLineage: &lineage,
			CreatedBy:     userID,
		})
		if err != nil {
			return err
		}
		if len(validation.Failed(findings)) == 0 {
			return nil
		}
		return p.validator.StoreResults(ctx, projectID, entityType, entity.ID, findings)
	}

	var err error
	if p.db == nil {
		err = write(ctx)
	} else {
		err = database.WithTx(ctx, p.db, write)
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (p *Pipeline) rowError(ctx context.Context, spec models.ImportSpec, report *models.ImportReport, rowErr models.RowError) {
	report.Errors++
	report.ErrorDetails = append(report.ErrorDetails, rowErr)
	metrics.RecordImportRow(spec.EntityType, "error")
	p.logger.WithContext(ctx).WithField("row", rowErr.Row).Warnf("Row %d rejected: %s", rowErr.Row, rowErr.Error)
}

func sourceFile(spec models.ImportSpec) string {
	if spec.SourceFile != "" {
		return spec.SourceFile
	}
	if spec.FilePath == "" {
		return ""
	}
	return filepath.Base(spec.FilePath)
}
