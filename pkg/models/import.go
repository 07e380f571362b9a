package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// ColumnMappings maps file column headers to entity field names.
type ColumnMappings map[string]string

// ImportSpec is the payload of an import job.
type ImportSpec struct {
	FilePath       string         `json:"file_path"`
	SourceFile     string         `json:"source_file"`
	SheetName      string         `json:"sheet_name"`
	EntityType     string         `json:"entity_type"`
	ColumnMappings ColumnMappings `json:"column_mappings"`
	ProfileID      string         `json:"profile_id,omitempty"`
}

type RowError struct {
	Row               int                 `json:"row"`
	Error             string              `json:"error"`
	Data              map[string]any      `json:"data"`
	ValidationResults []ValidationFinding `json:"validationResults,omitempty"`
}

type RowWarning struct {
	Row      int            `json:"row"`
	Warnings []string       `json:"warnings"`
	Data     map[string]any `json:"data"`
	EntityID string         `json:"entityId"`
}

// ValidationFinding is the in-memory result of one rule check. Passed findings are never stored.
type ValidationFinding struct {
	RuleName string   `json:"ruleName"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Passed   bool     `json:"passed"`
}

// ImportReport is the result stored on a completed import job.
type ImportReport struct {
	JobID          string       `json:"jobId"`
	Status         JobStatus    `json:"status"`
	TotalRows      int          `json:"totalRows"`
	Success        int          `json:"success"`
	Errors         int          `json:"errors"`
	Warnings       int          `json:"warnings"`
	ErrorDetails   []RowError   `json:"errorDetails"`
	WarningDetails []RowWarning `json:"warningDetails"`
	SourceFile     string       `json:"sourceFile"`
	SheetName      string       `json:"sheetName"`
	EntityType     string       `json:"entityType"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

type ImportProfile struct {
	ID             string                         `db:"id" json:"id"`
	Name           string                         `db:"name" json:"name"`
	EntityType     string                         `db:"entity_type" json:"entity_type"`
	ColumnMappings database.JSONB[ColumnMappings] `db:"column_mappings" json:"column_mappings"`
	CreatedAt      time.Time                      `db:"created_at" json:"created_at"`
	CreatedBy      string                         `db:"created_by" json:"created_by"`
}

type StartImportRequest struct {
	FilePath       string         `json:"file_path" validate:"required"`
	SheetName      string         `json:"sheet_name"`
	EntityType     string         `json:"entity_type" validate:"required"`
	ColumnMappings ColumnMappings `json:"column_mappings"`
	ProfileID      string         `json:"profile_id" validate:"omitempty,uuid"`
}

type CreateImportProfileRequest struct {
	Name           string         `json:"name" validate:"required"`
	EntityType     string         `json:"entity_type" validate:"required"`
	ColumnMappings ColumnMappings `json:"column_mappings" validate:"required,min=1"`
}
