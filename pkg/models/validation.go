package models

import "time"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// ValidationResult is a persisted failing finding.
type ValidationResult struct {
	ID           string    `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"project_id"`
	EntityType   string    `db:"entity_type" json:"entity_type"`
	EntityID     string    `db:"entity_id" json:"entity_id"`
	RuleName     string    `db:"rule_name" json:"rule_name"`
	Severity     Severity  `db:"severity" json:"severity"`
	Message      string    `db:"message" json:"message"`
	Acknowledged bool      `db:"acknowledged" json:"acknowledged"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type ValidationSummary struct {
	Total        int            `json:"total"`
	Errors       int            `json:"errors"`
	Warnings     int            `json:"warnings"`
	Info         int            `json:"info"`
	Acknowledged int            `json:"acknowledged"`
	ByEntityType map[string]int `json:"by_entity_type"`
	ByRule       map[string]int `json:"by_rule"`
}
