package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Entity types stored in the catalog.
const (
	EntityTypeTag       = "tag"
	EntityTypeEquipment = "equipment"
	EntityTypeAlarm     = "alarm"
	EntityTypeDocument  = "document"
)

var EntityTypes = []string{EntityTypeTag, EntityTypeEquipment, EntityTypeAlarm, EntityTypeDocument}

func IsEntityType(entityType string) bool {
	for _, t := range EntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// ImportLineage records where an imported entity came from.
type ImportLineage struct {
	SourceFile string `json:"sourceFile"`
	SheetName  string `json:"sheetName"`
	RowNumber  int    `json:"rowNumber"`
	JobID      string `json:"jobId,omitempty"`
}

// Entity is a catalog row. Typed schemas live with the CRUD services; this subsystem only
// sees the property bag in Data.
type Entity struct {
	ID            string                          `db:"id" json:"id"`
	ProjectID     string                          `db:"project_id" json:"project_id"`
	EntityType    string                          `db:"entity_type" json:"entity_type"`
	Name          *string                         `db:"name" json:"name,omitempty"`
	Data          database.JSONB[Fields]          `db:"data" json:"data"`
	ImportLineage *database.JSONB[*ImportLineage] `db:"import_lineage" json:"import_lineage,omitempty"`
	CreatedBy     *string                         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                       `db:"updated_at" json:"updated_at"`
}

// Fields returns the entity's properties with the id included.
func (e *Entity) Fields() Fields {
	f := e.Data.Data.Clone()
	f["id"] = e.ID
	return f
}

type CreateEntityRequest struct {
	ProjectID     string
	EntityType    string
	Data          Fields
	ImportLineage *ImportLineage
	CreatedBy     string
}
