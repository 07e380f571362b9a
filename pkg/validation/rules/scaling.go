package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const ScalingUnitsName = "Scaling and Units"

var scaledTagTypes = []string{"AI", "AO"}

var commonUnits = []string{
	// temperature
	"degC", "degF", "K",
	// pressure
	"bar", "psi", "kPa", "MPa", "Pa",
	// flow
	"m3/h", "L/min", "gpm", "kg/h", "t/h",
	// level
	"m", "mm", "%", "cm",
	"V", "mA", "Hz", "rpm", "kW", "MW", "pH",
}

// units where a negative lower bound is expected, matched as lowercase substrings
var signedUnits = []string{"k", "degc", "degf"}

const (
	minScaleRange = 0.001
	maxScaleRange = 1_000_000
)

// ScalingUnits checks that analog tags carry engineering units and a sane scale range.
type ScalingUnits struct{}

func NewScalingUnits() *ScalingUnits {
	return &ScalingUnits{}
}

func (r *ScalingUnits) Name() string { return ScalingUnitsName }

func (r *ScalingUnits) Description() string {
	return "Validates that tags have proper scaling and engineering units"
}

func (r *ScalingUnits) EntityTypes() []string {
	return []string{models.EntityTypeTag}
}

func (r *ScalingUnits) Validate(_ context.Context, vctx *validation.Context) ([]validation.Finding, error) {
	findings := []validation.Finding{}
	tag := vctx.Entity

	tagType := tag.StringValue("type")
	if tagType == "" || !ectolinq.Contains(scaledTagTypes, tagType) {
		return findings, nil
	}

	units := strings.TrimSpace(tag.StringValue("engineeringUnits"))
	if units == "" {
		findings = append(findings, validation.Error(r.Name(),
			fmt.Sprintf("Tag type %s requires engineering units to be specified", tagType)))
	} else if !ectolinq.Contains(commonUnits, units) {
		findings = append(findings, validation.Info(r.Name(),
			fmt.Sprintf("Engineering units \"%s\" are not in the common units list. Verify this is correct.", units)))
	}

	low, hasLow, lowOK := tag.Number("scaleLow")
	high, hasHigh, highOK := tag.Number("scaleHigh")
	if !hasLow || !hasHigh {
		return append(findings, validation.Error(r.Name(),
			fmt.Sprintf("Tag type %s requires both scaleLow and scaleHigh to be specified", tagType))), nil
	}
	if !lowOK || !highOK {
		return append(findings, validation.Error(r.Name(), "Scale values must be valid numbers")), nil
	}

	if low >= high {
		findings = append(findings, validation.Error(r.Name(),
			fmt.Sprintf("scaleLow (%s) must be less than scaleHigh (%s)", formatNumber(low), formatNumber(high))))
	}

	// an inverted range also falls under the small-range warning
	scaleRange := high - low
	switch {
	case scaleRange == 0:
		findings = append(findings, validation.Error(r.Name(), "Scale range cannot be zero"))
	case scaleRange < minScaleRange:
		findings = append(findings, validation.Warning(r.Name(),
			fmt.Sprintf("Scale range (%s) is very small. Verify this is correct.", formatNumber(scaleRange))))
	case scaleRange > maxScaleRange:
		findings = append(findings, validation.Warning(r.Name(),
			fmt.Sprintf("Scale range (%s) is very large. Verify this is correct.", formatNumber(scaleRange))))
	}

	rawUnits := tag.StringValue("engineeringUnits")
	if rawUnits != "" && low < 0 && !isSignedUnit(rawUnits) {
		findings = append(findings, validation.Info(r.Name(),
			fmt.Sprintf("Negative scaleLow (%s) with units \"%s\". Verify this is correct.", formatNumber(low), rawUnits)))
	}

	return findings, nil
}

func isSignedUnit(units string) bool {
	lower := strings.ToLower(units)
	for _, u := range signedUnits {
		if strings.Contains(lower, u) {
			return true
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
