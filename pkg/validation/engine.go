package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ResultStore replaces the stored findings of one entity. Implementations must delete and
// insert inside a single transaction.
type ResultStore interface {
	ReplaceForEntity(ctx context.Context, projectID, entityType, entityID string, results []models.ValidationResult) error
}

// EventPublisher is notified after findings are stored.
type EventPublisher interface {
	EmitValidationCompleted(ctx context.Context, projectID, entityType, entityID string, findings []Finding) error
}

type Engine struct {
	registry *Registry
	store    ResultStore
	events   EventPublisher
	logger   ectologger.Logger
	now      func() time.Time
}

func NewEngine(registry *Registry, store ResultStore, logger ectologger.Logger) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents attaches an event publisher. A nil publisher disables events.
func (e *Engine) WithEvents(events EventPublisher) *Engine {
	e.events = events
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// ValidateEntity runs every rule that applies to the entity type, in registration order.
// A rule that errors or panics contributes a single Error finding instead of its results.
func (e *Engine) ValidateEntity(ctx context.Context, vctx *Context) []Finding {
	ctx, span := tracing.StartSpan(ctx, "validation.Engine.ValidateEntity")
	defer span.End()

	return e.run(ctx, vctx, e.registry.ForEntityType(vctx.EntityType))
}

// ValidateWithRules runs only the named rules. Unknown names and rules that do not apply to
// the entity type are skipped.
func (e *Engine) ValidateWithRules(ctx context.Context, vctx *Context, names ...string) []Finding {
	ctx, span := tracing.StartSpan(ctx, "validation.Engine.ValidateWithRules")
	defer span.End()

	var rules []Rule
	for _, name := range names {
		rule, ok := e.registry.Get(name)
		if !ok {
			e.logger.WithContext(ctx).WithField("rule", name).Warn("Skipping unknown validation rule")
			continue
		}
		if !Applies(rule, vctx.EntityType) {
			continue
		}
		rules = append(rules, rule)
	}
	return e.run(ctx, vctx, rules)
}

func (e *Engine) run(ctx context.Context, vctx *Context, rules []Rule) []Finding {
	findings := []Finding{}
	for _, rule := range rules {
		findings = append(findings, e.runRule(ctx, rule, vctx)...)
	}

	for _, f := range findings {
		if !f.Passed {
			metrics.RecordFinding(vctx.EntityType, f.RuleName, string(f.Severity))
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id":  vctx.ProjectID,
		"entity_type": vctx.EntityType,
		"entity_id":   vctx.EntityID,
		"rules":       len(rules),
		"failed":      len(Failed(findings)),
	}).Debug("Validated entity")

	return findings
}

func (e *Engine) runRule(ctx context.Context, rule Rule, vctx *Context) (findings []Finding) {
	name := rule.Name()
	defer func() {
		if r := recover(); r != nil {
			findings = []Finding{e.ruleFault(ctx, name, fmt.Errorf("%v", r))}
		}
	}()

	out, err := rule.Validate(ctx, vctx)
	if err != nil {
		return []Finding{e.ruleFault(ctx, name, err)}
	}
	for i := range out {
		if out[i].RuleName == "" {
			out[i].RuleName = name
		}
	}
	return out
}

func (e *Engine) ruleFault(ctx context.Context, rule string, err error) Finding {
	e.logger.WithContext(ctx).WithError(err).WithField("rule", rule).Error("Validation rule execution failed")
	metrics.RecordRuleFault(rule)
	return Error(rule, "Validation rule execution failed: "+err.Error())
}

// ValidateAndStore validates and, when the context names a persisted entity, replaces that
// entity's stored results with the failing findings.
func (e *Engine) ValidateAndStore(ctx context.Context, vctx *Context) ([]Finding, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Engine.ValidateAndStore")
	defer span.End()

	findings := e.ValidateEntity(ctx, vctx)
	if vctx.EntityID == "" {
		return findings, nil
	}

	if err := e.StoreResults(ctx, vctx.ProjectID, vctx.EntityType, vctx.EntityID, findings); err != nil {
		return findings, err
	}
	return findings, nil
}

// StoreResults replaces the stored results for the entity with the failing subset of findings.
func (e *Engine) StoreResults(ctx context.Context, projectID, entityType, entityID string, findings []Finding) error {
	ctx, span := tracing.StartSpan(ctx, "validation.Engine.StoreResults")
	defer span.End()

	now := e.now()
	results := ectolinq.Map(Failed(findings), func(f Finding) models.ValidationResult {
		return models.ValidationResult{
			ID:         uuid.New().String(),
			ProjectID:  projectID,
			EntityType: entityType,
			EntityID:   entityID,
			RuleName:   f.RuleName,
			Severity:   f.Severity,
			Message:    f.Message,
			CreatedAt:  now,
		}
	})

	if err := e.store.ReplaceForEntity(ctx, projectID, entityType, entityID, results); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id":  projectID,
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Error("Failed to store validation results")
		return err
	}

	if e.events != nil {
		if err := e.events.EmitValidationCompleted(ctx, projectID, entityType, entityID, findings); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit validation event")
		}
	}
	return nil
}

// ClearResults removes every stored result for the entity.
func (e *Engine) ClearResults(ctx context.Context, projectID, entityType, entityID string) error {
	return e.store.ReplaceForEntity(ctx, projectID, entityType, entityID, nil)
}

func Failed(findings []Finding) []Finding {
	return ectolinq.Filter(findings, func(f Finding) bool { return !f.Passed })
}

func HasErrors(findings []Finding) bool {
	return len(BySeverity(findings, models.SeverityError)) > 0
}

func HasWarnings(findings []Finding) bool {
	return len(BySeverity(findings, models.SeverityWarning)) > 0
}

// BySeverity returns the failing findings with the given severity.
func BySeverity(findings []Finding, severity models.Severity) []Finding {
	return ectolinq.Filter(findings, func(f Finding) bool { return !f.Passed && f.Severity == severity })
}

// Describe joins findings as "rule: message; rule: message".
func Describe(findings []Finding) string {
	return strings.Join(ectolinq.Map(findings, func(f Finding) string {
		return f.RuleName + ": " + f.Message
	}), "; ")
}
