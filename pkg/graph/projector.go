package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var kindLabels = map[models.EntityKind]string{
	models.EntityKindContact: "Contact",
	models.EntityKindCompany: "Company",
}

const linkIdentifierCypher = `
MERGE (e:Entity {id: $entity_id})
MERGE (i:Identifier {type: $type, value: $value})
MERGE (e)-[r:HAS_IDENTIFIER]->(i)
SET r.is_primary = $is_primary`

const createEntityCypher = `
MERGE (e:Entity {id: $id})
SET e:%s, e.kind = $kind, e.display_name = $display_name
WITH e
UNWIND $identifiers AS ident
MERGE (i:Identifier {type: ident.type, value: ident.value})
MERGE (e)-[r:HAS_IDENTIFIER]->(i)
SET r.is_primary = ident.is_primary`

const mergeContactCypher = `
MERGE (e:Entity {id: $target_id})
SET e:Contact
FOREACH (_ IN CASE WHEN $draft_id = '' THEN [] ELSE [1] END |
  MERGE (d:Draft {id: $draft_id})
  MERGE (d)-[:MERGED_INTO]->(e))
WITH e
UNWIND $facts AS fact
MERGE (i:Identifier {type: fact.type, value: fact.value})
MERGE (e)-[:HAS_IDENTIFIER]->(i)`

const identifiersOfCypher = `
MATCH (e:Entity {id: $entity_id})-[r:HAS_IDENTIFIER]->(i:Identifier)
RETURN i.type AS type, i.value AS value, coalesce(r.is_primary, false) AS is_primary
ORDER BY type, value`

// Projector mirrors executor mutations into the graph
type Projector struct {
	runner Runner
	logger ectologger.Logger
}

var _ linking.Listener = (*Projector)(nil)

func NewProjector(runner Runner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
	}
}

func (p *Projector) IdentifierLinked(ctx context.Context, entityID string, identifier models.Identifier) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.IdentifierLinked")
	defer span.End()

	return p.write(ctx, linkIdentifierCypher, map[string]any{
		"entity_id":  entityID,
		"type":       string(identifier.Type),
		"value":      identifier.Value,
		"is_primary": identifier.IsPrimary,
	})
}

func (p *Projector) EntityCreated(ctx context.Context, entity models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.EntityCreated")
	defer span.End()

	label, ok := kindLabels[entity.Kind]
	if !ok {
		label = "Entity"
	}

	identifiers := make([]map[string]any, len(entity.Identifiers))
	for i, identifier := range entity.Identifiers {
		identifiers[i] = map[string]any{
			"type":       string(identifier.Type),
			"value":      identifier.Value,
			"is_primary": identifier.IsPrimary,
		}
	}

	return p.write(ctx, fmt.Sprintf(createEntityCypher, label), map[string]any{
		"id":           entity.ID,
		"kind":         string(entity.Kind),
		"display_name": entity.Name(),
		"identifiers":  identifiers,
	})
}

func (p *Projector) ContactMerged(ctx context.Context, targetID, draftID string, linked []models.Fact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ContactMerged")
	defer span.End()

	facts := make([]map[string]any, len(linked))
	for i, fact := range linked {
		facts[i] = map[string]any{"type": string(fact.Type), "value": fact.Value}
	}

	return p.write(ctx, mergeContactCypher, map[string]any{
		"target_id": targetID,
		"draft_id":  draftID,
		"facts":     facts,
	})
}

// IdentifiersOf reads back the identifiers projected for an entity
func (p *Projector) IdentifiersOf(ctx context.Context, entityID string) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.IdentifiersOf")
	defer span.End()

	rows, err := p.runner.Read(ctx, identifiersOfCypher, map[string]any{"entity_id": entityID})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("failed to read identifiers from graph")
		return nil, err
	}

	identifiers := make([]models.Identifier, 0, len(rows))
	for _, row := range rows {
		identifierType, _ := row["type"].(string)
		value, _ := row["value"].(string)
		isPrimary, _ := row["is_primary"].(bool)
		identifiers = append(identifiers, models.Identifier{
			EntityID:  entityID,
			Type:      models.IdentifierType(identifierType),
			Value:     value,
			IsPrimary: isPrimary,
		})
	}
	return identifiers, nil
}

func (p *Projector) write(ctx context.Context, cypher string, params map[string]any) error {
	if err := p.runner.Write(ctx, cypher, params); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("failed to project to graph")
		return err
	}
	return nil
}
