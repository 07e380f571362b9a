// Package similarity scores how alike two values are.
package similarity

import (
	"strings"
)

// MaxInputLength caps the runes BoundedSimilarity compares. Levenshtein is quadratic, so free
// text fields are truncated before scoring.
const MaxInputLength = 4096

// Scorer provides string comparison algorithms
type Scorer struct {
	maxInputLength int
}

// NewScorer creates a new Scorer with the default input bound
func NewScorer() *Scorer {
	return &Scorer{maxInputLength: MaxInputLength}
}

// NewBoundedScorer creates a Scorer that truncates inputs to maxRunes. Zero or negative disables the bound.
func NewBoundedScorer(maxRunes int) *Scorer {
	return &Scorer{maxInputLength: maxRunes}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// Similarity returns 1 - distance/max(len) over runes. Two empty strings are identical.
func (s *Scorer) Similarity(a, b string) float64 {
	return similarity([]rune(a), []rune(b))
}

// BoundedSimilarity is Similarity over inputs truncated to the scorer's bound
func (s *Scorer) BoundedSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if s.maxInputLength > 0 {
		ra = truncate(ra, s.maxInputLength)
		rb = truncate(rb, s.maxInputLength)
	}
	return similarity(ra, rb)
}

// Compare scores a against b with optional case folding, as exact match or similarity.
func (s *Scorer) Compare(a, b string, caseSensitive, exact bool) float64 {
	if exact {
		return s.ExactMatch(a, b, caseSensitive)
	}
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return s.BoundedSimilarity(a, b)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	return distance([]rune(a), []rune(b))
}

func similarity(a, b []rune) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance(a, b))/float64(maxLen)
}

func distance(a, b []rune) int {
	if string(a) == string(b) {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

func truncate(r []rune, n int) []rune {
	if len(r) > n {
		return r[:n]
	}
	return r
}
