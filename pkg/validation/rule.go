// Package validation runs data quality rules against catalog entities and keeps the failing
// findings for each entity.
package validation

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Finding = models.ValidationFinding

// Context is what a rule sees for one validation pass.
type Context struct {
	ProjectID  string
	EntityType string
	// EntityID is empty when validating before the entity exists.
	EntityID string
	Entity   models.Fields
	// AllEntities is only populated when duplicate checking was requested.
	AllEntities []models.Fields
}

// Rule is a named check. A rule whose EntityTypes is empty applies to every entity type.
type Rule interface {
	Name() string
	Description() string
	EntityTypes() []string
	Validate(ctx context.Context, vctx *Context) ([]Finding, error)
}

func Pass(rule, message string) Finding {
	return Finding{RuleName: rule, Severity: models.SeverityInfo, Message: message, Passed: true}
}

func Error(rule, message string) Finding {
	return Finding{RuleName: rule, Severity: models.SeverityError, Message: message}
}

func Warning(rule, message string) Finding {
	return Finding{RuleName: rule, Severity: models.SeverityWarning, Message: message}
}

func Info(rule, message string) Finding {
	return Finding{RuleName: rule, Severity: models.SeverityInfo, Message: message}
}
