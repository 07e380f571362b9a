package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const AlarmCompletenessName = "Alarm Completeness"

const minRationalizationLength = 10

var alarmPriorities = []string{"Critical", "High", "Medium", "Low"}

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^tbd$`),
	regexp.MustCompile(`(?i)^to be determined$`),
	regexp.MustCompile(`(?i)^todo$`),
	regexp.MustCompile(`(?i)^n/a$`),
	regexp.MustCompile(`(?i)^na$`),
	regexp.MustCompile(`(?i)^none$`),
	regexp.MustCompile(`(?i)^xxx$`),
	regexp.MustCompile(`^\?\?+$`),
}

type rationalizationField struct {
	key   string
	label string
	brief string
}

var rationalizationFields = []rationalizationField{
	{"rationalization", "rationalization", "Alarm rationalization is too brief. Provide detailed justification."},
	{"consequence", "consequence", "Alarm consequence description is too brief. Provide detailed impact analysis."},
	{"operatorAction", "operator action", "Operator action description is too brief. Provide clear instructions."},
}

// AlarmCompleteness checks that alarms are fully rationalized.
type AlarmCompleteness struct{}

func NewAlarmCompleteness() *AlarmCompleteness {
	return &AlarmCompleteness{}
}

func (r *AlarmCompleteness) Name() string { return AlarmCompletenessName }

func (r *AlarmCompleteness) Description() string {
	return "Validates that alarms have all required rationalization fields"
}

func (r *AlarmCompleteness) EntityTypes() []string {
	return []string{models.EntityTypeAlarm}
}

func (r *AlarmCompleteness) Validate(_ context.Context, vctx *validation.Context) ([]validation.Finding, error) {
	findings := []validation.Finding{}
	alarm := vctx.Entity

	priority := alarm.StringValue("priority")
	if priority == "" {
		findings = append(findings, validation.Error(r.Name(), "Alarm priority is required"))
	} else if !ectolinq.Contains(alarmPriorities, priority) {
		findings = append(findings, validation.Error(r.Name(),
			fmt.Sprintf("Invalid alarm priority \"%s\". Must be one of: %s", priority, strings.Join(alarmPriorities, ", "))))
	}

	if _, present, ok := alarm.Number("setpoint"); !present {
		findings = append(findings, validation.Error(r.Name(), "Alarm setpoint is required"))
	} else if !ok {
		findings = append(findings, validation.Error(r.Name(), "Alarm setpoint must be a valid number"))
	}

	if alarm.StringValue("tagId") == "" {
		findings = append(findings, validation.Error(r.Name(), "Alarm must be linked to a tag"))
	}

	for _, f := range rationalizationFields {
		if alarm.IsBlank(f.key) {
			findings = append(findings, validation.Error(r.Name(),
				fmt.Sprintf("Alarm %s is required for proper alarm rationalization", f.label)))
		}
	}

	// whitespace-only values are both missing and too brief
	for _, f := range rationalizationFields {
		value := alarm.StringValue(f.key)
		if value != "" && utf8.RuneCountInString(strings.TrimSpace(value)) < minRationalizationLength {
			findings = append(findings, validation.Warning(r.Name(), f.brief))
		}
	}

	for _, f := range rationalizationFields {
		value := strings.TrimSpace(alarm.StringValue(f.key))
		if value == "" {
			continue
		}
		for _, p := range placeholderPatterns {
			if p.MatchString(value) {
				findings = append(findings, validation.Warning(r.Name(),
					fmt.Sprintf("Alarm %s contains placeholder text \"%s\". Replace with actual content.", f.label, value)))
				break
			}
		}
	}

	return findings, nil
}
