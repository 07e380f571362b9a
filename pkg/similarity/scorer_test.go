package similarity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"FT-101", "FT-101", 0},
		{"FT-101", "FT-102", 1},
		{"P-101", "P-101B", 1},
		{"flaw", "lawn", 2},
		{"µm", "um", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, s.LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshteinDistance_Properties(t *testing.T) {
	s := NewScorer()
	words := []string{"", "a", "pump", "pumps", "P-101", "P-101B", "valve", "AI-101", "ai_101"}

	for _, a := range words {
		for _, b := range words {
			assert.Equal(t, s.LevenshteinDistance(a, b), s.LevenshteinDistance(b, a), "symmetry %q %q", a, b)
			for _, c := range words {
				assert.LessOrEqual(t,
					s.LevenshteinDistance(a, c),
					s.LevenshteinDistance(a, b)+s.LevenshteinDistance(b, c),
					"triangle %q %q %q", a, b, c)
			}
		}
	}

	// insert-only extension costs the length difference
	assert.Equal(t, 4, s.LevenshteinDistance("P-1", "P-101B1"))
}

func TestSimilarity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Similarity("", ""))
	assert.Equal(t, 1.0, s.Similarity("FT-101", "FT-101"))
	assert.Equal(t, 0.0, s.Similarity("abc", ""))
	assert.InDelta(t, 1-1.0/6, s.Similarity("FT-101", "FT-102"), 1e-9)
	assert.Equal(t, s.Similarity("pump", "pumps"), s.Similarity("pumps", "pump"))
}

func TestExactMatch(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.ExactMatch("FT-101", "ft-101", false))
	assert.Equal(t, 0.0, s.ExactMatch("FT-101", "ft-101", true))
}

func TestCompare(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Compare("Pump", "pump", false, false))
	assert.Less(t, s.Compare("Pump", "pump", true, false), 1.0)
	assert.Equal(t, 0.0, s.Compare("Pump", "pumps", false, true))
}

func TestBoundedSimilarity(t *testing.T) {
	s := NewBoundedScorer(4)

	// only the first four runes are compared
	assert.Equal(t, 1.0, s.BoundedSimilarity("abcdXXXX", "abcdYYYY"))

	long := strings.Repeat("x", MaxInputLength+100)
	assert.Equal(t, 1.0, NewScorer().BoundedSimilarity(long, long+"tail"))
	assert.Less(t, NewBoundedScorer(0).BoundedSimilarity(long, long+"tail"), 1.0)
}
