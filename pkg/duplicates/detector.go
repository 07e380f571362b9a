// Package duplicates finds likely duplicate entities by comparing configured fields.
package duplicates

import (
	"reflect"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// DefaultThreshold applies when a match rule leaves SimilarityThreshold at zero.
const DefaultThreshold = 0.8

type Detector struct {
	scorer *similarity.Scorer
}

func NewDetector(scorer *similarity.Scorer) *Detector {
	if scorer == nil {
		scorer = similarity.NewScorer()
	}
	return &Detector{scorer: scorer}
}

// Detect compares every candidate against every existing entity. The cost is
// existing x candidates x match fields, so callers scope both sets to one project and type.
func (d *Detector) Detect(existing, candidates []models.Fields, rule models.DuplicateMatchRule) []models.DuplicateCandidate {
	threshold := rule.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	out := []models.DuplicateCandidate{}
	for _, candidate := range candidates {
		for _, e := range existing {
			score, matched, ok := d.Compare(e, candidate, rule, threshold)
			if !ok || score < threshold {
				continue
			}
			out = append(out, models.DuplicateCandidate{
				ExistingEntity: e,
				NewEntity:      candidate,
				MatchScore:     score,
				MatchedFields:  matched,
			})
		}
	}
	return out
}

// Compare scores one pair. The score is the mean over fields present on both sides; ok is
// false when no field contributed.
func (d *Detector) Compare(a, b models.Fields, rule models.DuplicateMatchRule, threshold float64) (score float64, matched []string, ok bool) {
	matched = []string{}
	var total float64
	var contributing int

	for _, field := range rule.MatchFields {
		va, vb := a[field], b[field]
		if isEmpty(va) || isEmpty(vb) {
			continue
		}

		fieldScore := d.fieldScore(va, vb, rule)
		if fieldScore > threshold {
			matched = append(matched, field)
		}
		total += fieldScore
		contributing++
	}

	if contributing == 0 {
		return 0, matched, false
	}
	return total / float64(contributing), matched, true
}

func (d *Detector) fieldScore(a, b any, rule models.DuplicateMatchRule) float64 {
	sa, aIsString := a.(string)
	sb, bIsString := b.(string)
	if aIsString && bIsString {
		return d.scorer.Compare(sa, sb, rule.CaseSensitive, rule.ExactMatch)
	}
	if aIsString || bIsString {
		return 0
	}

	if na, ok := models.ToFloat(a); ok {
		if nb, ok := models.ToFloat(b); ok {
			return boolScore(na == nb)
		}
	}
	return boolScore(reflect.DeepEqual(a, b))
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
