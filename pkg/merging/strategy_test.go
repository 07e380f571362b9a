package merging

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestApplyStrategy(t *testing.T) {
	source := models.Fields{"id": "src", "name": "FIC-101A", "description": "Flow loop", "units": nil, "area": "North"}
	target := models.Fields{"id": "dst", "name": "FIC-101", "description": "Old", "units": "m3/h", "service": "Cooling"}

	tests := []struct {
		name       string
		strategy   models.MergeStrategy
		selections map[string]string
		want       models.Fields
	}{
		{
			name:     "skip keeps target",
			strategy: models.MergeStrategySkip,
			want:     models.Fields{"id": "dst", "name": "FIC-101", "description": "Old", "units": "m3/h", "service": "Cooling"},
		},
		{
			name:     "overwrite lets every source key win",
			strategy: models.MergeStrategyOverwrite,
			want:     models.Fields{"id": "dst", "name": "FIC-101A", "description": "Flow loop", "units": nil, "service": "Cooling", "area": "North"},
		},
		{
			name:     "merge fields without selections prefers non-null source values",
			strategy: models.MergeStrategyMergeFields,
			want:     models.Fields{"id": "dst", "name": "FIC-101A", "description": "Flow loop", "units": "m3/h", "service": "Cooling", "area": "North"},
		},
		{
			name:       "merge fields with selections",
			strategy:   models.MergeStrategyMergeFields,
			selections: map[string]string{"name": models.SelectSource, "description": models.SelectTarget, "missing": models.SelectSource},
			want:       models.Fields{"id": "dst", "name": "FIC-101A", "description": "Old", "units": "m3/h", "service": "Cooling"},
		},
		{
			name:       "a field selected from a source without it is dropped",
			strategy:   models.MergeStrategyMergeFields,
			selections: map[string]string{"service": models.SelectSource, "area": models.SelectSource},
			want:       models.Fields{"id": "dst", "name": "FIC-101", "description": "Old", "units": "m3/h", "area": "North"},
		},
		{
			name:       "merge fields with empty selections keeps target",
			strategy:   models.MergeStrategyMergeFields,
			selections: map[string]string{},
			want:       models.Fields{"id": "dst", "name": "FIC-101", "description": "Old", "units": "m3/h", "service": "Cooling"},
		},
		{
			name:       "selecting id from source still keeps target id",
			strategy:   models.MergeStrategyMergeFields,
			selections: map[string]string{"id": models.SelectSource},
			want:       models.Fields{"id": "dst", "name": "FIC-101", "description": "Old", "units": "m3/h", "service": "Cooling"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyStrategy(tt.strategy, source, target, tt.selections)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("inputs are not modified", func(t *testing.T) {
		_, err := ApplyStrategy(models.MergeStrategyOverwrite, source, target, nil)
		require.NoError(t, err)
		assert.Equal(t, "Old", target["description"])
		assert.Equal(t, "src", source["id"])
	})

	t.Run("source id never leaks into a bag without one", func(t *testing.T) {
		got, err := ApplyStrategy(models.MergeStrategyOverwrite, models.Fields{"id": "src", "name": "a"}, models.Fields{"name": "b"}, nil)
		require.NoError(t, err)
		assert.NotContains(t, got, "id")
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := ApplyStrategy("replace", source, target, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		assert.Contains(t, err.Error(), "Invalid merge strategy")
	})
}
