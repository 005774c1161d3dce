package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	entitiesTable    = "entities"
	identifiersTable = "identifiers"
	linksTable       = "contact_companies"
	draftsTable      = "drafts"

	valueConstraint   = "identifiers_type_value_key"
	primaryConstraint = "identifiers_primary_idx"
)

var entityColumns = []string{"e.id", "e.kind", "e.display_name", "e.first_name", "e.last_name", "e.category", "e.created_at", "e.updated_at"}

// IssueResolver closes integrity issues on behalf of the entity store
type IssueResolver interface {
	MarkIssueResolved(ctx context.Context, issueID string) error
}

// Repository is the postgres EntityStore
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	issues IssueResolver
}

var _ store.EntityStore = (*Repository)(nil)

func NewRepository(db database.DB, logger ectologger.Logger, issues IssueResolver) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		issues: issues,
	}
}

func newEntitySelect() *database.SelectBuilder {
	sb := database.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From(entitiesTable + " e")
	return sb
}

// GetEntity returns the entity with its identifiers
func (r *Repository) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.GetEntity")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(sb.Equal("e.id", id))
	query, args := sb.Build()

	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) || database.InvalidInput(err) {
			return nil, models.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get entity")
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	withIdentifiers, err := r.attachIdentifiers(ctx, []models.Entity{entity})
	if err != nil {
		return nil, err
	}
	return &withIdentifiers[0], nil
}

func (r *Repository) FindEntitiesByIdentifier(ctx context.Context, identifierType models.IdentifierType, value string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindEntitiesByIdentifier")
	defer span.End()

	sb := newEntitySelect()
	sb.Join(identifiersTable+" i", "i.entity_id = e.id")
	sb.Where(sb.Equal("i.type", string(identifierType)), sb.Equal("i.value", value))
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find entities by identifier")
}

func (r *Repository) FindEntitiesByName(ctx context.Context, first, last string, mode store.NameMatchMode) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindEntitiesByName")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(
		sb.Equal("e.kind", string(models.EntityKindContact)),
		sb.ILikeEquals("e.last_name", last),
	)
	if first != "" {
		if mode == store.NameMatchPrefix {
			sb.Where(fmt.Sprintf("e.first_name ILIKE %s", sb.Var(database.EscapeLike(first)+"%")))
		} else {
			sb.Where(sb.ILikeEquals("e.first_name", first))
		}
	}
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find entities by name")
}

func (r *Repository) FindEntitiesByNameSubstring(ctx context.Context, text string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindEntitiesByNameSubstring")
	defer span.End()

	text = strings.TrimSpace(text)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	sb := newEntitySelect()
	either := func(value string) string {
		return sb.Or(sb.ILikeContains("e.first_name", value), sb.ILikeContains("e.last_name", value))
	}

	conditions := []string{either(text)}
	switch {
	case len(words) == 2:
		conditions = append(conditions,
			sb.And(sb.ILikeContains("e.first_name", words[0]), sb.ILikeContains("e.last_name", words[1])),
			sb.And(sb.ILikeContains("e.first_name", words[1]), sb.ILikeContains("e.last_name", words[0])),
		)
	case len(words) > 2:
		for _, word := range words {
			conditions = append(conditions, either(word))
		}
	}

	sb.Where(sb.Equal("e.kind", string(models.EntityKindContact)), sb.Or(conditions...))
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.ManualSearchLimit)

	return r.selectEntities(ctx, sb, "find entities by name substring")
}

func (r *Repository) FindCompaniesByNameSubstring(ctx context.Context, text string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindCompaniesByNameSubstring")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(sb.Equal("e.kind", string(models.EntityKindCompany)), sb.ILikeContains("e.display_name", text))
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find companies by name substring")
}

func (r *Repository) FindCompaniesByNameExact(ctx context.Context, text string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindCompaniesByNameExact")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(sb.Equal("e.kind", string(models.EntityKindCompany)), sb.ILikeEquals("e.display_name", text))
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find companies by exact name")
}

func (r *Repository) FindCompaniesByDomainSubstring(ctx context.Context, text string, limit int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindCompaniesByDomainSubstring")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(
		sb.Equal("e.kind", string(models.EntityKindCompany)),
		fmt.Sprintf("EXISTS (SELECT 1 FROM %s i WHERE i.entity_id = e.id AND i.type = %s AND i.value LIKE %s)",
			identifiersTable, sb.Var(string(models.IdentifierTypeDomain)), sb.Var("%"+database.EscapeLike(strings.ToLower(text))+"%")),
	)
	sb.OrderBy("e.created_at", "e.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectEntities(ctx, sb, "find companies by domain substring")
}

func (r *Repository) FindCompaniesOfContact(ctx context.Context, contactID string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindCompaniesOfContact")
	defer span.End()

	if _, err := uuid.Parse(contactID); err != nil {
		return nil, nil
	}

	sb := newEntitySelect()
	sb.Join(linksTable+" cc", "cc.company_id = e.id")
	sb.Where(sb.Equal("cc.contact_id", contactID))
	sb.OrderBy("cc.created_at", "e.id")

	return r.selectEntities(ctx, sb, "find companies of contact")
}

func (r *Repository) FindEntitiesByIdentifierDomain(ctx context.Context, identifierType models.IdentifierType, domain string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindEntitiesByIdentifierDomain")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(fmt.Sprintf("EXISTS (SELECT 1 FROM %s i WHERE i.entity_id = e.id AND i.type = %s AND i.value LIKE %s)",
		identifiersTable, sb.Var(string(identifierType)), sb.Var("%@"+database.EscapeLike(strings.ToLower(domain)))))
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find entities by identifier domain")
}

func (r *Repository) FindContactsByFirstNameAndEmailDomain(ctx context.Context, firstName, domain string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.FindContactsByFirstNameAndEmailDomain")
	defer span.End()

	sb := newEntitySelect()
	sb.Where(
		sb.Equal("e.kind", string(models.EntityKindContact)),
		sb.ILikeEquals("e.first_name", firstName),
		fmt.Sprintf("EXISTS (SELECT 1 FROM %s i WHERE i.entity_id = e.id AND i.type = %s AND i.value LIKE %s)",
			identifiersTable, sb.Var(string(models.IdentifierTypeEmail)), sb.Var("%@"+database.EscapeLike(strings.ToLower(domain)))),
	)
	sb.OrderBy("e.created_at", "e.id")
	sb.Limit(store.DefaultQueryLimit)

	return r.selectEntities(ctx, sb, "find contacts by first name and email domain")
}

// InsertIdentifier attaches an identifier inside a transaction that locks the entity row.
// Unique violations are mapped to ConflictError and ErrPrimaryTaken.
func (r *Repository) InsertIdentifier(ctx context.Context, entityID string, identifierType models.IdentifierType, value string, isPrimary bool) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.InsertIdentifier")
	defer span.End()

	identifier := models.Identifier{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Type:      identifierType,
		Value:     value,
		IsPrimary: isPrimary,
		CreatedAt: time.Now().UTC(),
	}

	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		var lockedID string
		err := tx.GetContext(ctx, &lockedID, "SELECT id FROM entities WHERE id = $1 FOR UPDATE", entityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || database.InvalidInput(err) {
				return models.ErrNotFound
			}
			return err
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(identifiersTable)
		ib.Cols("id", "entity_id", "type", "value", "is_primary", "created_at")
		ib.Values(identifier.ID, entityID, string(identifierType), value, isPrimary, identifier.CreatedAt)
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		ub := database.NewUpdateBuilder()
		ub.Update(entitiesTable)
		ub.Set(ub.Assign("updated_at", identifier.CreatedAt))
		ub.Where(ub.Equal("id", entityID))
		query, args = ub.Build()
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err == nil {
		return &identifier, nil
	}

	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case primaryConstraint:
			return nil, models.ErrPrimaryTaken
		case valueConstraint:
			conflict := &models.ConflictError{Type: identifierType, Value: value}
			if owners, ownerErr := r.FindEntitiesByIdentifier(ctx, identifierType, value); ownerErr == nil && len(owners) > 0 {
				conflict.OwnerID = owners[0].ID
			}
			return nil, conflict
		}
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"entity_id": entityID,
		"type":      identifierType,
	}).Error("failed to insert identifier")
	return nil, fmt.Errorf("failed to insert identifier: %w", err)
}

func (r *Repository) CreateEntity(ctx context.Context, kind models.EntityKind, seed models.EntitySeed) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.CreateEntity")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto(entitiesTable)
	ib.Cols("id", "kind", "display_name", "first_name", "last_name", "category", "created_at", "updated_at")
	ib.Values(id, string(kind), seed.DisplayName, seed.FirstName, seed.LastName, seed.Category, now, now)
	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create entity")
		return "", fmt.Errorf("failed to create entity: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   id,
		"kind": kind,
	}).Info("created entity")

	return id, nil
}

// LinkContactCompany records that a contact works at a company
func (r *Repository) LinkContactCompany(ctx context.Context, contactID, companyID string) error {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.LinkContactCompany")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(linksTable)
	ib.Cols("contact_id", "company_id")
	ib.Values(contactID, companyID)
	ib.OnConflictDoNothing("contact_id", "company_id")
	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to link contact to company")
		return fmt.Errorf("failed to link contact to company: %w", err)
	}
	return nil
}

func (r *Repository) MarkIssueResolved(ctx context.Context, issueID string) error {
	return r.issues.MarkIssueResolved(ctx, issueID)
}

// CreateDraft stores a pending draft and returns its id
func (r *Repository) CreateDraft(ctx context.Context, kind models.EntityKind, payload map[string]any) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.CreateDraft")
	defer span.End()

	id := uuid.New().String()
	ib := database.NewInsertBuilder()
	ib.InsertInto(draftsTable)
	ib.Cols("id", "kind", "payload")
	ib.Values(id, string(kind), database.NewJSONB(payload))
	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create draft")
		return "", fmt.Errorf("failed to create draft: %w", err)
	}
	return id, nil
}

func (r *Repository) DeleteDraft(ctx context.Context, draftID string) error {
	ctx, span := tracing.StartSpan(ctx, "EntityRepository.DeleteDraft")
	defer span.End()

	if _, err := uuid.Parse(draftID); err != nil {
		return models.ErrNotFound
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(draftsTable)
	del.Where(del.Equal("id", draftID))
	query, args := del.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete draft")
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) selectEntities(ctx context.Context, sb *database.SelectBuilder, action string) ([]models.Entity, error) {
	query, args := sb.Build()

	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		if database.InvalidInput(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to %s", action)
		return nil, fmt.Errorf("failed to %s: %w", action, err)
	}
	return r.attachIdentifiers(ctx, entities)
}

func (r *Repository) attachIdentifiers(ctx context.Context, entities []models.Entity) ([]models.Entity, error) {
	if len(entities) == 0 {
		return entities, nil
	}

	ids := make([]any, len(entities))
	for i, entity := range entities {
		ids[i] = entity.ID
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_id", "type", "value", "is_primary", "created_at")
	sb.From(identifiersTable)
	sb.Where(sb.In("entity_id", ids...))
	sb.OrderBy("created_at", "id")
	query, args := sb.Build()

	var rows []models.Identifier
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load identifiers")
		return nil, fmt.Errorf("failed to load identifiers: %w", err)
	}

	byEntity := make(map[string][]models.Identifier, len(entities))
	for _, row := range rows {
		byEntity[row.EntityID] = append(byEntity[row.EntityID], row)
	}
	for i := range entities {
		entities[i].Identifiers = byEntity[entities[i].ID]
	}
	return entities, nil
}
