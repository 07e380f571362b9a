package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func runWithSiblings(t *testing.T, entity models.Fields, siblings ...models.Fields) []validation.Finding {
	t.Helper()
	findings, err := NewDuplicateDetection(nil).Validate(context.Background(), &validation.Context{
		ProjectID:   "p1",
		EntityType:  "equipment",
		Entity:      entity,
		AllEntities: siblings,
	})
	require.NoError(t, err)
	return findings
}

func TestDuplicateDetection_Siblings(t *testing.T) {
	t.Run("no name", func(t *testing.T) {
		assert.Empty(t, runWithSiblings(t, models.Fields{}, models.Fields{"name": "P-101"}))
	})

	t.Run("exact match ignoring case and padding", func(t *testing.T) {
		findings := runWithSiblings(t, models.Fields{"name": " p-101 "}, models.Fields{"id": "x", "name": "P-101"})
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityWarning, findings[0].Severity)
		assert.Equal(t, "Potential duplicate detected. Similar entities found: P-101", findings[0].Message)
	})

	t.Run("separators are ignored", func(t *testing.T) {
		findings := runWithSiblings(t, models.Fields{"name": "P_101"}, models.Fields{"name": "P 101"})
		assert.Len(t, findings, 1)
	})

	t.Run("containment", func(t *testing.T) {
		findings := runWithSiblings(t, models.Fields{"name": "Feed Pump 101"}, models.Fields{"name": "Pump 101"})
		assert.Len(t, findings, 1)
	})

	t.Run("short similar names", func(t *testing.T) {
		// pump101a vs pump101b: 7/8 similar
		findings := runWithSiblings(t, models.Fields{"name": "PUMP-101A"}, models.Fields{"name": "PUMP-101B"})
		assert.Len(t, findings, 1)
	})

	t.Run("dissimilar names", func(t *testing.T) {
		assert.Empty(t, runWithSiblings(t, models.Fields{"name": "FT-101"}, models.Fields{"name": "TT-202"}))
	})

	t.Run("skips self", func(t *testing.T) {
		assert.Empty(t, runWithSiblings(t, models.Fields{"id": "e1", "name": "P-101"}, models.Fields{"id": "e1", "name": "P-101"}))
	})

	t.Run("lists at most five", func(t *testing.T) {
		var siblings []models.Fields
		for i := 1; i <= 7; i++ {
			siblings = append(siblings, models.Fields{"name": fmt.Sprintf("Pump-%d", i)})
		}
		findings := runWithSiblings(t, models.Fields{"name": "Pump"}, siblings...)
		require.Len(t, findings, 1)
		assert.Equal(t, "Potential duplicate detected. Similar entities found: Pump-1, Pump-2, Pump-3, Pump-4, Pump-5 and 2 more", findings[0].Message)
	})
}

func TestDuplicateDetection_CopyPatterns(t *testing.T) {
	for _, name := range []string{"P-101 (copy)", "P-101 (Duplicate)", "P-101 - Copy", "P-101_copy", "P-101 (2)"} {
		t.Run(name, func(t *testing.T) {
			findings := runWithSiblings(t, models.Fields{"name": name})
			require.Len(t, findings, 1)
			assert.Equal(t, models.SeverityInfo, findings[0].Severity)
			assert.Equal(t, fmt.Sprintf("Entity name \"%s\" appears to be a copy. Consider using a unique name.", name), findings[0].Message)
		})
	}

	assert.Empty(t, runWithSiblings(t, models.Fields{"name": "Copy Machine"}))
}
