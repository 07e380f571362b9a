package graph

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LinkRelationship is the relationship type used for every catalog link. The catalog link type is
// kept in the link_type property.
const LinkRelationship = "LINKED_TO"

type Writer interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

type statement struct {
	cypher string
	params map[string]any
}

// Projector keeps the graph copy of the catalog in line with merges and imports.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

// RepointEntity moves every edge of fromID onto toID and removes the fromID node.
func (p *Projector) RepointEntity(ctx context.Context, projectID, entityType, fromID, toID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RepointEntity")
	defer span.End()

	if err := p.run(ctx, repointStatements(projectID, entityType, fromID, toID)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id":     projectID,
			"from_entity_id": fromID,
			"to_entity_id":   toID,
		}).Error("Failed to repoint entity in graph")
		return err
	}
	return nil
}

// UpsertEntity writes the entity node with its name.
func (p *Projector) UpsertEntity(ctx context.Context, e *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertEntity")
	defer span.End()

	return p.run(ctx, []statement{upsertEntityStatement(e)})
}

func (p *Projector) run(ctx context.Context, statements []statement) error {
	_, err := p.writer.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			result, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func repointStatements(projectID, entityType, fromID, toID string) []statement {
	label := sanitizeLabel(entityType)
	params := map[string]any{
		"project_id": projectID,
		"from_id":    fromID,
		"to_id":      toID,
	}

	outgoing := `
		MATCH (s:` + label + ` {id: $from_id, project_id: $project_id})-[r:` + LinkRelationship + `]->(o)
		MATCH (t:` + label + ` {id: $to_id, project_id: $project_id})
		MERGE (t)-[n:` + LinkRelationship + ` {id: r.id}]->(o)
		SET n += properties(r)
		DELETE r`
	incoming := `
		MATCH (o)-[r:` + LinkRelationship + `]->(s:` + label + ` {id: $from_id, project_id: $project_id})
		MATCH (t:` + label + ` {id: $to_id, project_id: $project_id})
		MERGE (o)-[n:` + LinkRelationship + ` {id: r.id}]->(t)
		SET n += properties(r)
		DELETE r`
	remove := `
		MATCH (s:` + label + ` {id: $from_id, project_id: $project_id})
		DETACH DELETE s`

	return []statement{
		{cypher: outgoing, params: params},
		{cypher: incoming, params: params},
		{cypher: remove, params: params},
	}
}

func upsertEntityStatement(e *models.Entity) statement {
	name := ""
	if e.Name != nil {
		name = *e.Name
	}
	return statement{
		cypher: `
		MERGE (n:` + sanitizeLabel(e.EntityType) + ` {id: $id, project_id: $project_id})
		SET n.name = $name, n.entity_type = $entity_type`,
		params: map[string]any{
			"id":          e.ID,
			"project_id":  e.ProjectID,
			"name":        name,
			"entity_type": e.EntityType,
		},
	}
}

// sanitizeLabel maps an entity type to a node label: alphanumerics and underscores only,
// first letter upper-cased.
func sanitizeLabel(entityType string) string {
	var b strings.Builder
	for _, c := range entityType {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	label := b.String()
	if label == "" {
		return "Entity"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
