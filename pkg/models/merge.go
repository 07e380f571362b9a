package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

type MergeStrategy string

const (
	MergeStrategySkip        MergeStrategy = "skip"
	MergeStrategyOverwrite   MergeStrategy = "overwrite"
	MergeStrategyMergeFields MergeStrategy = "merge_fields"
)

func (s MergeStrategy) IsValid() bool {
	switch s {
	case MergeStrategySkip, MergeStrategyOverwrite, MergeStrategyMergeFields:
		return true
	}
	return false
}

// Field selection values for MergeStrategyMergeFields.
const (
	SelectSource = "source"
	SelectTarget = "target"
)

type MergeRequest struct {
	EntityType      string            `json:"entity_type" validate:"required"`
	SourceEntityID  string            `json:"source_entity_id" validate:"required,uuid"`
	TargetEntityID  string            `json:"target_entity_id" validate:"required,uuid"`
	Strategy        MergeStrategy     `json:"strategy" validate:"required"`
	FieldSelections map[string]string `json:"field_selections,omitempty"`
}

type MergeResult struct {
	Success              bool   `json:"success"`
	MergedEntityID       string `json:"merged_entity_id,omitempty"`
	PreservedLinks       int    `json:"preserved_links"`
	PreservedAttachments int    `json:"preserved_attachments"`
	AuditLogID           string `json:"audit_log_id,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Link is a relationship row between two catalog entities.
type Link struct {
	ID               string    `db:"id" json:"id"`
	ProjectID        string    `db:"project_id" json:"project_id"`
	SourceEntityType string    `db:"source_entity_type" json:"source_entity_type"`
	SourceEntityID   string    `db:"source_entity_id" json:"source_entity_id"`
	TargetEntityType string    `db:"target_entity_type" json:"target_entity_type"`
	TargetEntityID   string    `db:"target_entity_id" json:"target_entity_id"`
	LinkType         string    `db:"link_type" json:"link_type"`
	Description      *string   `db:"description" json:"description,omitempty"`
	CreatedBy        *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Attachment struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	FileID      string    `db:"file_id" json:"file_id"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type AuditOperation string

const (
	AuditOperationCreate AuditOperation = "create"
	AuditOperationUpdate AuditOperation = "update"
	AuditOperationDelete AuditOperation = "delete"
	AuditOperationLink   AuditOperation = "link"
	AuditOperationUnlink AuditOperation = "unlink"
	AuditOperationMerge  AuditOperation = "merge"
)

type AuditLog struct {
	ID         string                 `db:"id" json:"id"`
	UserID     string                 `db:"user_id" json:"user_id"`
	Operation  AuditOperation         `db:"operation" json:"operation"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   string                 `db:"entity_id" json:"entity_id"`
	Changes    database.JSONB[Fields] `db:"changes" json:"changes"`
	Timestamp  time.Time              `db:"timestamp" json:"timestamp"`
}

type CreateAuditLogRequest struct {
	UserID     string
	Operation  AuditOperation
	EntityType string
	EntityID   string
	Changes    Fields
}
