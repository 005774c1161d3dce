// Package events publishes entity lifecycle changes made by the link executor
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EventTypeIdentifierLinked = "identifier.linked"
	EventTypeEntityCreated    = "entity.created"
	EventTypeContactMerged    = "contact.merged"
)

// Publisher sends entity events to the bus
type Publisher interface {
	PublishEntityEvent(ctx context.Context, event *kafka.EntityEvent) error
}

// Emitter turns executor notifications into entity events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

var _ linking.Listener = (*Emitter)(nil)

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) IdentifierLinked(ctx context.Context, entityID string, identifier models.Identifier) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.IdentifierLinked")
	defer span.End()

	return e.emit(ctx, &kafka.EntityEvent{
		EventType:  EventTypeIdentifierLinked,
		EntityID:   entityID,
		Identifier: &identifier,
	})
}

func (e *Emitter) EntityCreated(ctx context.Context, entity models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntityCreated")
	defer span.End()

	return e.emit(ctx, &kafka.EntityEvent{
		EventType:  EventTypeEntityCreated,
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Entity:     &entity,
	})
}

func (e *Emitter) ContactMerged(ctx context.Context, targetID, draftID string, linked []models.Fact) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ContactMerged")
	defer span.End()

	return e.emit(ctx, &kafka.EntityEvent{
		EventType:  EventTypeContactMerged,
		EntityID:   targetID,
		EntityKind: models.EntityKindContact,
		DraftID:    draftID,
		Facts:      linked,
	})
}

func (e *Emitter) emit(ctx context.Context, event *kafka.EntityEvent) error {
	if err := e.publisher.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.EventType)
		return err
	}
	return nil
}
