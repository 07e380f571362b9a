package merging

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ApplyStrategy computes the merged property bag. Neither input is modified and the id key,
// when present, is always the target's.
func ApplyStrategy(strategy models.MergeStrategy, source, target models.Fields, selections map[string]string) (models.Fields, error) {
	var merged models.Fields

	switch strategy {
	case models.MergeStrategySkip:
		merged = target.Clone()
	case models.MergeStrategyOverwrite:
		merged = target.Clone()
		for k, v := range source {
			merged[k] = v
		}
	case models.MergeStrategyMergeFields:
		merged = mergeFields(source, target, selections)
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Invalid merge strategy: %s", strategy)
	}

	if id, ok := target["id"]; ok {
		merged["id"] = id
	} else {
		delete(merged, "id")
	}
	return merged, nil
}

// mergeFields starts from target. With no selections every non-null source value wins;
// otherwise fields selected as "source" take the source value, and are dropped when source lacks them.
func mergeFields(source, target models.Fields, selections map[string]string) models.Fields {
	merged := target.Clone()

	if selections == nil {
		for k, v := range source {
			if v != nil {
				merged[k] = v
			}
		}
		return merged
	}

	for field, selection := range selections {
		if selection != models.SelectSource {
			continue
		}
		if v, ok := source[field]; ok {
			merged[field] = v
		} else {
			delete(merged, field)
		}
	}
	return merged
}
