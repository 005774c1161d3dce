// Package linking attaches identifying facts to entities without ever letting one
// identifier belong to two entities
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultLockTTL bounds how long one identifier link may hold its lock
const DefaultLockTTL = 5 * time.Second

// Locker serializes work on a key across processes
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Listener is told about completed mutations. Listener errors are logged and never
// undo or fail the mutation.
type Listener interface {
	IdentifierLinked(ctx context.Context, entityID string, identifier models.Identifier) error
	EntityCreated(ctx context.Context, entity models.Entity) error
	ContactMerged(ctx context.Context, targetID, draftID string, linked []models.Fact) error
}

// LinkResult describes the outcome of a successful link
type LinkResult struct {
	EntityID      string            `json:"entity_id"`
	Identifier    models.Identifier `json:"identifier"`
	Created       bool              `json:"created"`
	AlreadyLinked bool              `json:"already_linked"`
}

// MergeRequest carries the facts of a pending draft contact that duplicates an existing one
type MergeRequest struct {
	DraftID     string        `json:"draft_id"`
	Identifiers []models.Fact `json:"identifiers" validate:"required,min=1,dive"`
	IssueIDs    []string      `json:"issue_ids"`
}

// MergeResult describes a merge where every fact was linked
type MergeResult struct {
	TargetID     string       `json:"target_id"`
	Links        []LinkResult `json:"links"`
	DraftDeleted bool         `json:"draft_deleted"`
}

// Config tunes the executor
type Config struct {
	LockTTL time.Duration
}

// Executor applies link, merge and create operations against the entity store
type Executor struct {
	log       ectologger.Logger
	store     store.EntityStore
	locker    Locker
	listeners []Listener
	cfg       Config
}

// Option configures an Executor
type Option func(*Executor)

// WithLocker serializes links of the same identifier through the locker
func WithLocker(locker Locker) Option {
	return func(e *Executor) {
		e.locker = locker
	}
}

// WithListeners registers listeners notified after mutations
func WithListeners(listeners ...Listener) Option {
	return func(e *Executor) {
		e.listeners = append(e.listeners, listeners...)
	}
}

// NewExecutor creates an executor over the store
func NewExecutor(log ectologger.Logger, entities store.EntityStore, cfg Config, opts ...Option) *Executor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	e := &Executor{log: log, store: entities, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LinkIdentifier attaches the fact to the entity. Linking a fact the entity already owns
// succeeds without writing. A fact owned by another entity fails with *models.ConflictError
// and nothing is written. The identifier becomes primary when the entity has none of its type.
// Issues are closed once the fact is on the entity.
func (e *Executor) LinkIdentifier(ctx context.Context, entityID string, fact models.Fact, issueIDs ...string) (*LinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Executor.LinkIdentifier")
	defer span.End()

	normalized, err := normalizers.NormalizeFact(fact)
	if err != nil {
		return nil, err
	}

	log := e.log.WithContext(ctx).WithFields(map[string]any{
		"entity_id":       entityID,
		"identifier_type": normalized.Type,
	})

	var result *LinkResult
	err = e.withLock(ctx, normalized, func() error {
		var linkErr error
		result, linkErr = e.link(ctx, entityID, normalized)
		return linkErr
	})
	if err != nil {
		tracing.Fail(span, err)
		log.WithError(err).Debug("Identifier not linked")
		return nil, err
	}

	e.resolveIssues(ctx, issueIDs)

	if result.Created {
		log.WithFields(map[string]any{"is_primary": result.Identifier.IsPrimary}).Info("Linked identifier")
		e.notify(ctx, "identifier_linked", func(l Listener) error {
			return l.IdentifierLinked(ctx, entityID, result.Identifier)
		})
	}

	return result, nil
}

// MergeDuplicateContact links every fact of a draft into the target contact. The draft is
// deleted and the issues closed only when every fact linked; otherwise the facts that did
// link stay linked and a *models.PartialMergeError lists both sides.
func (e *Executor) MergeDuplicateContact(ctx context.Context, req MergeRequest, targetID string) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Executor.MergeDuplicateContact")
	defer span.End()

	log := e.log.WithContext(ctx).WithFields(map[string]any{
		"target_id": targetID,
		"draft_id":  req.DraftID,
		"facts":     len(req.Identifiers),
	})

	if _, err := e.store.GetEntity(ctx, targetID); err != nil {
		return nil, err
	}

	result := &MergeResult{TargetID: targetID}
	var linked []models.Fact
	var failed []models.FactFailure
	for _, fact := range req.Identifiers {
		link, err := e.LinkIdentifier(ctx, targetID, fact)
		if err != nil {
			failed = append(failed, models.NewFactFailure(fact, err))
			continue
		}
		linked = append(linked, models.Fact{Type: link.Identifier.Type, Value: link.Identifier.Value})
		result.Links = append(result.Links, *link)
	}

	if len(failed) > 0 {
		log.WithFields(map[string]any{"linked": len(linked), "failed": len(failed)}).Warn("Merge partially applied")
		return nil, &models.PartialMergeError{TargetID: targetID, Linked: linked, Failed: failed}
	}

	if req.DraftID != "" {
		if err := e.store.DeleteDraft(ctx, req.DraftID); err != nil && !errors.Is(err, models.ErrNotFound) {
			log.WithError(err).Warn("Failed to delete merged draft")
		} else {
			result.DraftDeleted = err == nil
		}
	}
	e.resolveIssues(ctx, req.IssueIDs)

	log.Info("Merged duplicate contact")
	e.notify(ctx, "contact_merged", func(l Listener) error {
		return l.ContactMerged(ctx, targetID, req.DraftID, linked)
	})

	return result, nil
}

// CreateEntityFromFact creates a new entity carrying the seed facts. When any fact is
// already owned the call fails with *models.ConflictError before anything is created.
// The first fact of each type becomes primary. If a fact is claimed concurrently after
// the entity was created, the new id is returned with a *models.PartialMergeError.
func (e *Executor) CreateEntityFromFact(ctx context.Context, kind models.EntityKind, seed models.EntitySeed, issueIDs ...string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Executor.CreateEntityFromFact")
	defer span.End()

	if !kind.IsValid() {
		return "", fmt.Errorf("unsupported entity kind %q", kind)
	}

	facts, err := normalizeSeedFacts(seed.Facts)
	if err != nil {
		return "", err
	}

	for _, fact := range facts {
		owners, err := e.store.FindEntitiesByIdentifier(ctx, fact.Type, fact.Value)
		if err != nil {
			return "", err
		}
		if len(owners) > 0 {
			return "", &models.ConflictError{Type: fact.Type, Value: fact.Value, OwnerID: owners[0].ID}
		}
	}

	seed.Facts = facts
	if seed.DisplayName == "" {
		seed.DisplayName = strings.TrimSpace(seed.FirstName + " " + seed.LastName)
	}

	entityID, err := e.store.CreateEntity(ctx, kind, seed)
	if err != nil {
		return "", err
	}

	log := e.log.WithContext(ctx).WithFields(map[string]any{"entity_id": entityID, "kind": kind})

	var linked []models.Fact
	var failed []models.FactFailure
	for _, fact := range facts {
		if _, err := e.LinkIdentifier(ctx, entityID, fact); err != nil {
			failed = append(failed, models.NewFactFailure(fact, err))
			continue
		}
		linked = append(linked, fact)
	}

	e.resolveIssues(ctx, issueIDs)

	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		log.WithError(err).Warn("Failed to reload created entity")
		entity = &models.Entity{ID: entityID, Kind: kind, DisplayName: seed.DisplayName, FirstName: seed.FirstName, LastName: seed.LastName, Category: seed.Category}
	}
	log.Info("Created entity")
	e.notify(ctx, "entity_created", func(l Listener) error {
		return l.EntityCreated(ctx, *entity)
	})

	if len(failed) > 0 {
		return entityID, &models.PartialMergeError{TargetID: entityID, Linked: linked, Failed: failed}
	}
	return entityID, nil
}

func (e *Executor) link(ctx context.Context, entityID string, fact models.Fact) (*LinkResult, error) {
	if result, err := e.checkOwner(ctx, entityID, fact); result != nil || err != nil {
		return result, err
	}

	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	primary := len(entity.IdentifiersOf(fact.Type)) == 0

	identifier, err := e.store.InsertIdentifier(ctx, entityID, fact.Type, fact.Value, primary)
	if errors.Is(err, models.ErrPrimaryTaken) {
		// another writer took the primary slot first
		identifier, err = e.store.InsertIdentifier(ctx, entityID, fact.Type, fact.Value, false)
	}

	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		// lost a race on (type, value): whoever won decides the outcome
		result, recheckErr := e.checkOwner(ctx, entityID, fact)
		if recheckErr != nil || result != nil {
			return result, recheckErr
		}
		return nil, conflict
	}
	if err != nil {
		return nil, err
	}

	return &LinkResult{EntityID: entityID, Identifier: *identifier, Created: true}, nil
}

// checkOwner returns a no-op result when the entity already owns the fact, a conflict when
// another entity does, and nothing when the fact is free
func (e *Executor) checkOwner(ctx context.Context, entityID string, fact models.Fact) (*LinkResult, error) {
	owners, err := e.store.FindEntitiesByIdentifier(ctx, fact.Type, fact.Value)
	if err != nil {
		return nil, err
	}
	for _, owner := range owners {
		if owner.ID != entityID {
			return nil, &models.ConflictError{Type: fact.Type, Value: fact.Value, OwnerID: owner.ID}
		}
	}
	if len(owners) == 0 {
		return nil, nil
	}

	existing := models.Identifier{EntityID: entityID, Type: fact.Type, Value: fact.Value}
	for _, identifier := range owners[0].IdentifiersOf(fact.Type) {
		if identifier.Value == fact.Value {
			existing = identifier
			break
		}
	}
	return &LinkResult{EntityID: entityID, Identifier: existing, AlreadyLinked: true}, nil
}

func (e *Executor) withLock(ctx context.Context, fact models.Fact, fn func() error) error {
	if e.locker == nil {
		return fn()
	}
	return e.locker.WithLock(ctx, "identifier:"+string(fact.Type)+":"+fact.Value, e.cfg.LockTTL, fn)
}

func (e *Executor) resolveIssues(ctx context.Context, issueIDs []string) {
	for _, issueID := range issueIDs {
		if issueID == "" {
			continue
		}
		if err := e.store.MarkIssueResolved(ctx, issueID); err != nil {
			e.log.WithContext(ctx).WithError(err).WithFields(map[string]any{"issue_id": issueID}).Warn("Failed to resolve issue")
		}
	}
}

func (e *Executor) notify(ctx context.Context, event string, fn func(Listener) error) {
	for _, listener := range e.listeners {
		if err := fn(listener); err != nil {
			e.log.WithContext(ctx).WithError(err).WithFields(map[string]any{"event": event}).Warn("Listener failed")
		}
	}
}

func normalizeSeedFacts(facts []models.Fact) ([]models.Fact, error) {
	result := make([]models.Fact, 0, len(facts))
	seen := make(map[models.Fact]bool)
	for _, fact := range facts {
		normalized, err := normalizers.NormalizeFact(fact)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}
	return result, nil
}
