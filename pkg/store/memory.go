package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Memory is an in-process EntityStore and IssueStore. It backs tests and the
// STORE_DRIVER=memory mode.
type Memory struct {
	mu          sync.RWMutex
	entities    map[string]*models.Entity
	order       []string
	identifiers map[string]string // "type|value" -> entity id
	links       map[string][]string
	issues      map[string]*models.Issue
	issueOrder  []string
	drafts      map[string]bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		entities:    make(map[string]*models.Entity),
		identifiers: make(map[string]string),
		links:       make(map[string][]string),
		issues:      make(map[string]*models.Issue),
		drafts:      make(map[string]bool),
	}
}

func identifierKey(identifierType models.IdentifierType, value string) string {
	return string(identifierType) + "|" + value
}

// AddEntity stores an entity as-is, including its identifiers. Missing ids are generated.
func (m *Memory) AddEntity(entity models.Entity) models.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entity.CreatedAt, entity.UpdatedAt = now, now
	for i := range entity.Identifiers {
		if entity.Identifiers[i].ID == "" {
			entity.Identifiers[i].ID = uuid.New().String()
		}
		entity.Identifiers[i].EntityID = entity.ID
		m.identifiers[identifierKey(entity.Identifiers[i].Type, entity.Identifiers[i].Value)] = entity.ID
	}

	stored := cloneEntity(entity)
	m.entities[entity.ID] = &stored
	m.order = append(m.order, entity.ID)
	return cloneEntity(stored)
}

// LinkContactCompany records that a contact works at a company
func (m *Memory) LinkContactCompany(contactID, companyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[contactID] = append(m.links[contactID], companyID)
}

// AddDraft registers a pending draft id
func (m *Memory) AddDraft(draftID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draftID] = true
}

// HasDraft reports whether a draft still exists
func (m *Memory) HasDraft(draftID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drafts[draftID]
}

// Issue returns a copy of an issue
func (m *Memory) Issue(id string) (models.Issue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.issues[id]
	if !ok {
		return models.Issue{}, false
	}
	return *issue, true
}

func (m *Memory) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := cloneEntity(*entity)
	return &clone, nil
}

func (m *Memory) FindEntitiesByIdentifier(_ context.Context, identifierType models.IdentifierType, value string) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identifiers[identifierKey(identifierType, value)]
	if !ok {
		return nil, nil
	}
	return []models.Entity{cloneEntity(*m.entities[id])}, nil
}

func (m *Memory) FindEntitiesByName(_ context.Context, first, last string, mode NameMatchMode) ([]models.Entity, error) {
	first, last = strings.ToLower(first), strings.ToLower(last)
	return m.filter(DefaultQueryLimit, func(e *models.Entity) bool {
		if e.Kind != models.EntityKindContact || strings.ToLower(e.LastName) != last {
			return false
		}
		if first == "" {
			return true
		}
		if mode == NameMatchPrefix {
			return strings.HasPrefix(strings.ToLower(e.FirstName), first)
		}
		return strings.ToLower(e.FirstName) == first
	}), nil
}

func (m *Memory) FindEntitiesByNameSubstring(_ context.Context, text string) ([]models.Entity, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	return m.filter(ManualSearchLimit, func(e *models.Entity) bool {
		if e.Kind != models.EntityKindContact {
			return false
		}
		firstName, lastName := strings.ToLower(e.FirstName), strings.ToLower(e.LastName)
		if strings.Contains(firstName, text) || strings.Contains(lastName, text) {
			return true
		}
		switch len(words) {
		case 1:
			return false
		case 2:
			a, b := words[0], words[1]
			return (strings.Contains(firstName, a) && strings.Contains(lastName, b)) ||
				(strings.Contains(firstName, b) && strings.Contains(lastName, a))
		default:
			for _, word := range words {
				if strings.Contains(firstName, word) || strings.Contains(lastName, word) {
					return true
				}
			}
			return false
		}
	}), nil
}

func (m *Memory) FindCompaniesByNameSubstring(_ context.Context, text string) ([]models.Entity, error) {
	text = strings.ToLower(text)
	return m.filter(DefaultQueryLimit, func(e *models.Entity) bool {
		return e.Kind == models.EntityKindCompany && strings.Contains(strings.ToLower(e.DisplayName), text)
	}), nil
}

func (m *Memory) FindCompaniesByNameExact(_ context.Context, text string) ([]models.Entity, error) {
	return m.filter(DefaultQueryLimit, func(e *models.Entity) bool {
		return e.Kind == models.EntityKindCompany && strings.EqualFold(e.DisplayName, text)
	}), nil
}

func (m *Memory) FindCompaniesByDomainSubstring(_ context.Context, text string, limit int) ([]models.Entity, error) {
	text = strings.ToLower(text)
	return m.filter(limit, func(e *models.Entity) bool {
		if e.Kind != models.EntityKindCompany {
			return false
		}
		for _, identifier := range e.IdentifiersOf(models.IdentifierTypeDomain) {
			if strings.Contains(identifier.Value, text) {
				return true
			}
		}
		return false
	}), nil
}

func (m *Memory) FindCompaniesOfContact(_ context.Context, contactID string) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Entity
	for _, companyID := range m.links[contactID] {
		if company, ok := m.entities[companyID]; ok {
			result = append(result, cloneEntity(*company))
		}
	}
	return result, nil
}

func (m *Memory) FindEntitiesByIdentifierDomain(_ context.Context, identifierType models.IdentifierType, domain string) ([]models.Entity, error) {
	suffix := "@" + strings.ToLower(domain)
	return m.filter(DefaultQueryLimit, func(e *models.Entity) bool {
		for _, identifier := range e.IdentifiersOf(identifierType) {
			if strings.HasSuffix(identifier.Value, suffix) {
				return true
			}
		}
		return false
	}), nil
}

func (m *Memory) FindContactsByFirstNameAndEmailDomain(_ context.Context, firstName, domain string) ([]models.Entity, error) {
	suffix := "@" + strings.ToLower(domain)
	return m.filter(DefaultQueryLimit, func(e *models.Entity) bool {
		if e.Kind != models.EntityKindContact || !strings.EqualFold(e.FirstName, firstName) {
			return false
		}
		for _, identifier := range e.IdentifiersOf(models.IdentifierTypeEmail) {
			if strings.HasSuffix(identifier.Value, suffix) {
				return true
			}
		}
		return false
	}), nil
}

func (m *Memory) InsertIdentifier(_ context.Context, entityID string, identifierType models.IdentifierType, value string, isPrimary bool) (*models.Identifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entity, ok := m.entities[entityID]
	if !ok {
		return nil, models.ErrNotFound
	}

	key := identifierKey(identifierType, value)
	if owner, exists := m.identifiers[key]; exists {
		return nil, &models.ConflictError{Type: identifierType, Value: value, OwnerID: owner}
	}

	if isPrimary {
		for _, existing := range entity.IdentifiersOf(identifierType) {
			if existing.IsPrimary {
				return nil, models.ErrPrimaryTaken
			}
		}
	}

	identifier := models.Identifier{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Type:      identifierType,
		Value:     value,
		IsPrimary: isPrimary,
		CreatedAt: time.Now().UTC(),
	}
	entity.Identifiers = append(entity.Identifiers, identifier)
	entity.UpdatedAt = identifier.CreatedAt
	m.identifiers[key] = entityID

	return &identifier, nil
}

func (m *Memory) CreateEntity(_ context.Context, kind models.EntityKind, seed models.EntitySeed) (string, error) {
	entity := m.AddEntity(models.Entity{
		Kind:        kind,
		DisplayName: seed.DisplayName,
		FirstName:   seed.FirstName,
		LastName:    seed.LastName,
		Category:    seed.Category,
	})
	return entity.ID, nil
}

func (m *Memory) CreateIssue(_ context.Context, issue *models.Issue) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *issue
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = models.IssueStatusOpen
	}
	stored.CreatedAt = time.Now().UTC()
	m.issues[stored.ID] = &stored
	m.issueOrder = append(m.issueOrder, stored.ID)

	result := stored
	return &result, nil
}

func (m *Memory) ListOpenIssues(_ context.Context, limit int) ([]models.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Issue
	for _, id := range m.issueOrder {
		issue := m.issues[id]
		if issue.Status != models.IssueStatusOpen {
			continue
		}
		result = append(result, *issue)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) MarkIssueResolved(_ context.Context, issueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[issueID]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now().UTC()
	issue.Status = models.IssueStatusResolved
	issue.ResolvedAt = &now
	return nil
}

func (m *Memory) DeleteDraft(_ context.Context, draftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.drafts[draftID] {
		return models.ErrNotFound
	}
	delete(m.drafts, draftID)
	return nil
}

func (m *Memory) filter(limit int, match func(e *models.Entity) bool) []models.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Entity
	for _, id := range m.order {
		entity := m.entities[id]
		if !match(entity) {
			continue
		}
		result = append(result, cloneEntity(*entity))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func cloneEntity(entity models.Entity) models.Entity {
	entity.Identifiers = append([]models.Identifier(nil), entity.Identifiers...)
	return entity
}
