package duplicates

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EntityLister loads the existing entities of one type in a project.
type EntityLister interface {
	ListFields(ctx context.Context, projectID, entityType string) ([]models.Fields, error)
}

type Service struct {
	detector *Detector
	entities EntityLister
	logger   ectologger.Logger
}

func NewService(detector *Detector, entities EntityLister, logger ectologger.Logger) *Service {
	return &Service{
		detector: detector,
		entities: entities,
		logger:   logger,
	}
}

// DetectInProject compares incoming entities against the project's stored entities of the
// same type. A nil rule uses the default name match.
func (s *Service) DetectInProject(ctx context.Context, projectID, entityType string, incoming []models.Fields, rule *models.DuplicateMatchRule) ([]models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.DetectInProject")
	defer span.End()

	if !models.IsEntityType(entityType) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported entity type: %s", entityType)
	}

	matchRule := models.DefaultMatchRule()
	if rule != nil {
		if len(rule.MatchFields) == 0 {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "match rule must name at least one field")
		}
		matchRule = *rule
	}

	existing, err := s.entities.ListFields(ctx, projectID, entityType)
	if err != nil {
		return nil, err
	}

	candidates := s.detector.Detect(existing, incoming, matchRule)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id":  projectID,
		"entity_type": entityType,
		"existing":    len(existing),
		"incoming":    len(incoming),
		"candidates":  len(candidates),
	}).Debug("Detected duplicate candidates")

	return candidates, nil
}
