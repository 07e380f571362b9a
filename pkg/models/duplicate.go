package models

// DuplicateMatchRule configures which fields are compared, and how, when looking for duplicates.
type DuplicateMatchRule struct {
	MatchFields         []string `json:"match_fields" validate:"required,min=1" yaml:"match_fields"`
	CaseSensitive       bool     `json:"case_sensitive" yaml:"case_sensitive"`
	ExactMatch          bool     `json:"exact_match" yaml:"exact_match"`
	SimilarityThreshold float64  `json:"similarity_threshold" validate:"gte=0,lte=1" yaml:"similarity_threshold"`
}

// DefaultMatchRule compares names case-insensitively with fuzzy matching at 0.8.
func DefaultMatchRule() DuplicateMatchRule {
	return DuplicateMatchRule{
		MatchFields:         []string{"name"},
		CaseSensitive:       false,
		ExactMatch:          false,
		SimilarityThreshold: 0.8,
	}
}

type DuplicateCandidate struct {
	ExistingEntity Fields   `json:"existing_entity"`
	NewEntity      Fields   `json:"new_entity"`
	MatchScore     float64  `json:"match_score"`
	MatchedFields  []string `json:"matched_fields"`
}
