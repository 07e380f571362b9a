package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func completeAlarm() models.Fields {
	return models.Fields{
		"name":            "FT-101 High",
		"priority":        "High",
		"setpoint":        85.5,
		"tagId":           "7d1a5a2e-0d5c-4c36-9d0e-5f3c1c2a9b10",
		"rationalization": "Protects downstream separator from overfill",
		"consequence":     "Liquid carryover into the compressor suction",
		"operatorAction":  "Reduce feed rate and check level control valve LV-101",
	}
}

func TestAlarmCompleteness_Complete(t *testing.T) {
	assert.Empty(t, run(t, NewAlarmCompleteness(), "alarm", completeAlarm()))
}

func TestAlarmCompleteness_Empty(t *testing.T) {
	findings := run(t, NewAlarmCompleteness(), "alarm", models.Fields{})
	assert.Equal(t, []string{
		"Alarm priority is required",
		"Alarm setpoint is required",
		"Alarm must be linked to a tag",
		"Alarm rationalization is required for proper alarm rationalization",
		"Alarm consequence is required for proper alarm rationalization",
		"Alarm operator action is required for proper alarm rationalization",
	}, messages(findings))
	for _, f := range findings {
		assert.Equal(t, models.SeverityError, f.Severity)
	}
}

func TestAlarmCompleteness_InvalidValues(t *testing.T) {
	alarm := completeAlarm()
	alarm["priority"] = "Urgent"
	alarm["setpoint"] = "high"

	findings := run(t, NewAlarmCompleteness(), "alarm", alarm)
	assert.Equal(t, []string{
		`Invalid alarm priority "Urgent". Must be one of: Critical, High, Medium, Low`,
		"Alarm setpoint must be a valid number",
	}, messages(findings))
}

func TestAlarmCompleteness_Placeholder(t *testing.T) {
	alarm := completeAlarm()
	alarm["rationalization"] = "tbd"

	findings := run(t, NewAlarmCompleteness(), "alarm", alarm)
	require.Equal(t, []string{
		"Alarm rationalization is too brief. Provide detailed justification.",
		`Alarm rationalization contains placeholder text "tbd". Replace with actual content.`,
	}, messages(findings))
	assert.False(t, validation.HasErrors(findings))
	assert.True(t, validation.HasWarnings(findings))
}

func TestAlarmCompleteness_PlaceholderVariants(t *testing.T) {
	for _, value := range []string{"TBD", "To Be Determined", "todo", "N/A", "na", "None", "XXX", "???"} {
		t.Run(value, func(t *testing.T) {
			alarm := completeAlarm()
			alarm["operatorAction"] = value

			findings := run(t, NewAlarmCompleteness(), "alarm", alarm)
			require.NotEmpty(t, findings)
			last := findings[len(findings)-1]
			assert.Equal(t, `Alarm operator action contains placeholder text "`+value+`". Replace with actual content.`, last.Message)
		})
	}
}

func TestAlarmCompleteness_WhitespaceOnly(t *testing.T) {
	alarm := completeAlarm()
	alarm["consequence"] = "   "

	findings := run(t, NewAlarmCompleteness(), "alarm", alarm)
	assert.Equal(t, []string{
		"Alarm consequence is required for proper alarm rationalization",
		"Alarm consequence description is too brief. Provide detailed impact analysis.",
	}, messages(findings))
}

func TestBootstrap(t *testing.T) {
	registry := Bootstrap(testLogger())

	assert.Equal(t, 4, registry.Count())
	tagRules := registry.ForEntityType(models.EntityTypeTag)
	require.Len(t, tagRules, 3)
	assert.Equal(t, NamingConventionName, tagRules[0].Name())
	assert.Equal(t, ScalingUnitsName, tagRules[1].Name())
	assert.Equal(t, DuplicateDetectionName, tagRules[2].Name())

	alarmRules := registry.ForEntityType(models.EntityTypeAlarm)
	require.Len(t, alarmRules, 2)
	assert.Equal(t, AlarmCompletenessName, alarmRules[1].Name())

	assert.Len(t, registry.ForEntityType(models.EntityTypeDocument), 1)
}
