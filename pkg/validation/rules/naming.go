package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const NamingConventionName = "Naming Convention"

const (
	minNameLength = 3
	maxNameLength = 50
)

// tag naming patterns by tag type, with the example shown when a name does not match
var tagPatterns = map[string]struct {
	pattern *regexp.Regexp
	example string
}{
	"AI":        {regexp.MustCompile(`(?i)^AI[-_]\d+[A-Z]?$`), "AI-101"},
	"AO":        {regexp.MustCompile(`(?i)^AO[-_]\d+[A-Z]?$`), "AO-201"},
	"DI":        {regexp.MustCompile(`(?i)^DI[-_]\d+[A-Z]?$`), "DI-301"},
	"DO":        {regexp.MustCompile(`(?i)^DO[-_]\d+[A-Z]?$`), "DO-401"},
	"PID":       {regexp.MustCompile(`(?i)^PID[-_]\d+[A-Z]?$`), "PID-501"},
	"Valve":     {regexp.MustCompile(`(?i)^[A-Z]{2,3}V[-_]\d+[A-Z]?$`), "FV-101"},
	"Drive":     {regexp.MustCompile(`(?i)^[A-Z]{2,3}D[-_]\d+[A-Z]?$`), "MD-101"},
	"Totaliser": {regexp.MustCompile(`(?i)^[A-Z]{2,3}T[-_]\d+[A-Z]?$`), "FT-101"},
	"Calc":      {regexp.MustCompile(`(?i)^CALC[-_]\d+[A-Z]?$`), "CALC-101"},
}

var (
	specialCharacters = regexp.MustCompile(`(?i)[^A-Z0-9_-]`)
	equipmentPattern  = regexp.MustCompile(`(?i)^[A-Z0-9][-_A-Z0-9]*$`)
	edgeSeparator     = regexp.MustCompile(`^[-_]|[-_]$`)
)

// NamingConvention checks tag and equipment names against plant naming standards.
type NamingConvention struct{}

func NewNamingConvention() *NamingConvention {
	return &NamingConvention{}
}

func (r *NamingConvention) Name() string { return NamingConventionName }

func (r *NamingConvention) Description() string {
	return "Validates that entity names follow standard naming patterns"
}

func (r *NamingConvention) EntityTypes() []string {
	return []string{models.EntityTypeTag, models.EntityTypeEquipment}
}

func (r *NamingConvention) Validate(_ context.Context, vctx *validation.Context) ([]validation.Finding, error) {
	findings := []validation.Finding{}

	raw := vctx.Entity.StringValue("name")
	if raw == "" {
		return append(findings, validation.Error(r.Name(), "Entity name is required")), nil
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return append(findings, validation.Error(r.Name(), "Entity name cannot be empty")), nil
	}

	length := utf8.RuneCountInString(name)
	if length < minNameLength {
		findings = append(findings, validation.Warning(r.Name(), "Entity name is too short (minimum 3 characters)"))
	}
	if length > maxNameLength {
		findings = append(findings, validation.Error(r.Name(), "Entity name is too long (maximum 50 characters)"))
	}

	switch vctx.EntityType {
	case models.EntityTypeTag:
		findings = append(findings, r.validateTagName(name, vctx.Entity.StringValue("type"))...)
	case models.EntityTypeEquipment:
		findings = append(findings, r.validateEquipmentName(name)...)
	}
	return findings, nil
}

func (r *NamingConvention) validateTagName(name, tagType string) []validation.Finding {
	if tagType == "" {
		return []validation.Finding{validation.Warning(r.Name(), "Tag type is not specified, cannot validate naming pattern")}
	}

	p, ok := tagPatterns[tagType]
	if !ok {
		return nil
	}

	var findings []validation.Finding
	if !p.pattern.MatchString(name) {
		findings = append(findings, validation.Warning(r.Name(),
			fmt.Sprintf("Tag name \"%s\" does not follow standard pattern for type %s. Expected format: %s", name, tagType, p.example)))
	}
	if specialCharacters.MatchString(name) {
		findings = append(findings, validation.Warning(r.Name(),
			"Tag name contains special characters. Use only letters, numbers, hyphens, and underscores"))
	}
	return findings
}

func (r *NamingConvention) validateEquipmentName(name string) []validation.Finding {
	var findings []validation.Finding
	if !equipmentPattern.MatchString(name) {
		findings = append(findings, validation.Warning(r.Name(),
			fmt.Sprintf("Equipment name \"%s\" should contain only letters, numbers, hyphens, and underscores", name)))
	}
	if edgeSeparator.MatchString(name) {
		findings = append(findings, validation.Warning(r.Name(),
			"Equipment name should not start or end with hyphens or underscores"))
	}
	return findings
}
