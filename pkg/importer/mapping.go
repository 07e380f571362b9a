package importer

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Row is one parsed data row keyed by column header.
type Row = map[string]any

// MapRow copies mapped columns into entity fields. Unmapped columns are ignored and columns
// without a value are skipped rather than written as empty strings.
func MapRow(row Row, mappings models.ColumnMappings) models.Fields {
	fields := models.Fields{}
	for column, field := range mappings {
		if field == "" {
			continue
		}
		value, ok := row[column]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		fields[field] = value
	}
	return fields
}

// withMetadata returns the payload rules see for a row: the mapped fields plus project, creator
// and lineage.
func withMetadata(fields models.Fields, projectID, userID string, lineage models.ImportLineage) models.Fields {
	payload := fields.Clone()
	payload["projectId"] = projectID
	if userID != "" {
		payload["createdBy"] = userID
	}
	payload["importLineage"] = map[string]any{
		"sourceFile": lineage.SourceFile,
		"sheetName":  lineage.SheetName,
		"rowNumber":  lineage.RowNumber,
	}
	return payload
}
