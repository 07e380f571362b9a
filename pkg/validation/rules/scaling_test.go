package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func TestScalingUnits(t *testing.T) {
	rule := NewScalingUnits()

	tests := []struct {
		name     string
		entity   models.Fields
		want     []string
		severity []models.Severity
	}{
		{
			name:   "digital tags are skipped",
			entity: models.Fields{"name": "DI-301", "type": "DI"},
		},
		{
			name:   "untyped tags are skipped",
			entity: models.Fields{"name": "FT-101"},
		},
		{
			name:   "well formed analog input",
			entity: models.Fields{"type": "AI", "engineeringUnits": "m3/h", "scaleLow": 0, "scaleHigh": 100},
		},
		{
			name:     "missing units",
			entity:   models.Fields{"name": "FT-101", "type": "AI", "scaleLow": 0.0, "scaleHigh": 100.0},
			want:     []string{"Tag type AI requires engineering units to be specified"},
			severity: []models.Severity{models.SeverityError},
		},
		{
			name:     "uncommon units",
			entity:   models.Fields{"type": "AO", "engineeringUnits": "furlongs", "scaleLow": 0, "scaleHigh": 10},
			want:     []string{`Engineering units "furlongs" are not in the common units list. Verify this is correct.`},
			severity: []models.Severity{models.SeverityInfo},
		},
		{
			name:     "missing scale",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": 0},
			want:     []string{"Tag type AI requires both scaleLow and scaleHigh to be specified"},
			severity: []models.Severity{models.SeverityError},
		},
		{
			name:     "non numeric scale",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": "low", "scaleHigh": 10},
			want:     []string{"Scale values must be valid numbers"},
			severity: []models.Severity{models.SeverityError},
		},
		{
			name:     "NaN scale",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": math.NaN(), "scaleHigh": 10},
			want:     []string{"Scale values must be valid numbers"},
			severity: []models.Severity{models.SeverityError},
		},
		{
			name:   "numeric strings are accepted",
			entity: models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": "0", "scaleHigh": "16"},
		},
		{
			name:   "equal bounds",
			entity: models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": 5, "scaleHigh": 5},
			want: []string{
				"scaleLow (5) must be less than scaleHigh (5)",
				"Scale range cannot be zero",
			},
			severity: []models.Severity{models.SeverityError, models.SeverityError},
		},
		{
			name:   "inverted bounds",
			entity: models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": 10, "scaleHigh": 0},
			want: []string{
				"scaleLow (10) must be less than scaleHigh (0)",
				"Scale range (-10) is very small. Verify this is correct.",
			},
			severity: []models.Severity{models.SeverityError, models.SeverityWarning},
		},
		{
			name:     "tiny range",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": 0, "scaleHigh": 0.0005},
			want:     []string{"Scale range (0.0005) is very small. Verify this is correct."},
			severity: []models.Severity{models.SeverityWarning},
		},
		{
			name:     "huge range",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "Pa", "scaleLow": 0, "scaleHigh": 2000000},
			want:     []string{"Scale range (2000000) is very large. Verify this is correct."},
			severity: []models.Severity{models.SeverityWarning},
		},
		{
			name:     "negative low with unsigned units",
			entity:   models.Fields{"type": "AI", "engineeringUnits": "bar", "scaleLow": -1, "scaleHigh": 10},
			want:     []string{`Negative scaleLow (-1) with units "bar". Verify this is correct.`},
			severity: []models.Severity{models.SeverityInfo},
		},
		{
			name:   "negative low with temperature units",
			entity: models.Fields{"type": "AI", "engineeringUnits": "degC", "scaleLow": -40, "scaleHigh": 120},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := run(t, rule, "tag", tt.entity)
			if len(tt.want) == 0 {
				assert.Empty(t, findings)
				return
			}
			require.Equal(t, tt.want, messages(findings))
			for i, f := range findings {
				assert.Equal(t, tt.severity[i], f.Severity, f.Message)
				assert.Equal(t, ScalingUnitsName, f.RuleName)
			}
		})
	}
}

func TestScalingUnits_FT101MissingUnitsBlocks(t *testing.T) {
	findings := run(t, NewScalingUnits(), "tag", models.Fields{"name": "FT-101", "type": "AI", "scaleLow": 0, "scaleHigh": 100})
	assert.True(t, validation.HasErrors(findings))
}
