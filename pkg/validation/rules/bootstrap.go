// Package rules holds the built-in data quality rules.
package rules

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Builtin returns the built-in rules in their evaluation order.
func Builtin(scorer *similarity.Scorer) []validation.Rule {
	return []validation.Rule{
		NewNamingConvention(),
		NewScalingUnits(),
		NewDuplicateDetection(scorer),
		NewAlarmCompleteness(),
	}
}

// Bootstrap creates a registry holding the built-in rules. It is called once at process start.
func Bootstrap(logger ectologger.Logger) *validation.Registry {
	registry := validation.NewRegistry(logger)
	registry.RegisterAll(Builtin(similarity.NewScorer())...)
	logger.WithField("rules", registry.Count()).Info("Validation rule registry initialized")
	return registry
}
