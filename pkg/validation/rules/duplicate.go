package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const DuplicateDetectionName = "Duplicate Detection"

const (
	maxListedDuplicates = 5
	shortNameLength     = 10
	nameSimilarity      = 0.8
)

var (
	nameSeparators = regexp.MustCompile(`[-_\s]`)
	copyPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*\(copy\)$`),
		regexp.MustCompile(`(?i)\s*\(duplicate\)$`),
		regexp.MustCompile(`(?i)\s*-\s*copy$`),
		regexp.MustCompile(`(?i)\s*_copy$`),
		regexp.MustCompile(`\s*\(\d+\)$`),
	}
)

// DuplicateDetection flags entities whose names collide with siblings in the same project,
// and names that look like copies.
type DuplicateDetection struct {
	scorer *similarity.Scorer
}

func NewDuplicateDetection(scorer *similarity.Scorer) *DuplicateDetection {
	if scorer == nil {
		scorer = similarity.NewScorer()
	}
	return &DuplicateDetection{scorer: scorer}
}

func (r *DuplicateDetection) Name() string { return DuplicateDetectionName }

func (r *DuplicateDetection) Description() string {
	return "Detects potential duplicate entities based on name matching"
}

// EntityTypes is empty: the rule applies to every entity type.
func (r *DuplicateDetection) EntityTypes() []string { return nil }

func (r *DuplicateDetection) Validate(_ context.Context, vctx *validation.Context) ([]validation.Finding, error) {
	findings := []validation.Finding{}
	entity := vctx.Entity

	name := entity.StringValue("name")
	if name == "" {
		return findings, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	selfID := entity.StringValue("id")

	var duplicates []string
	for _, other := range vctx.AllEntities {
		if selfID != "" && other.StringValue("id") == selfID {
			continue
		}
		otherName := other.StringValue("name")
		if otherName == "" {
			continue
		}
		otherNormalized := strings.ToLower(strings.TrimSpace(otherName))
		if normalized == otherNormalized || r.similar(normalized, otherNormalized) {
			duplicates = append(duplicates, otherName)
		}
	}

	if len(duplicates) > 0 {
		listed := duplicates
		more := ""
		if len(duplicates) > maxListedDuplicates {
			listed = duplicates[:maxListedDuplicates]
			more = fmt.Sprintf(" and %d more", len(duplicates)-maxListedDuplicates)
		}
		findings = append(findings, validation.Warning(r.Name(),
			fmt.Sprintf("Potential duplicate detected. Similar entities found: %s%s", strings.Join(listed, ", "), more)))
	}

	for _, p := range copyPatterns {
		if p.MatchString(name) {
			findings = append(findings, validation.Info(r.Name(),
				fmt.Sprintf("Entity name \"%s\" appears to be a copy. Consider using a unique name.", name)))
			break
		}
	}

	return findings, nil
}

// similar compares names with separators stripped. Containment either way counts; short
// names also match on edit similarity.
func (r *DuplicateDetection) similar(a, b string) bool {
	a = nameSeparators.ReplaceAllString(a, "")
	b = nameSeparators.ReplaceAllString(b, "")

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if utf8.RuneCountInString(a) <= shortNameLength && utf8.RuneCountInString(b) <= shortNameLength {
		return r.scorer.Similarity(a, b) > nameSimilarity
	}
	return false
}
