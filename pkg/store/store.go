// Package store defines the Entity Store port used by resolution and linking
package store

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// NameMatchMode selects how FindEntitiesByName compares the first name
type NameMatchMode string

const (
	// NameMatchExact compares first and last name case-insensitively
	NameMatchExact NameMatchMode = "exact"
	// NameMatchPrefix compares the last name exactly and the first name as a prefix
	NameMatchPrefix NameMatchMode = "prefix"
)

const (
	// DefaultQueryLimit bounds every lookup made by a resolution strategy
	DefaultQueryLimit = 25
	// ManualSearchLimit bounds user-typed searches
	ManualSearchLimit = 15
)

// SkipCategory marks companies that must never be suggested
const SkipCategory = "Skip"

// EntityStore is the query and mutation surface the resolution core depends on.
// Every call may fail or time out; no transaction spans two calls.
type EntityStore interface {
	// GetEntity returns the entity with its identifiers, models.ErrNotFound if absent
	GetEntity(ctx context.Context, id string) (*models.Entity, error)

	// FindEntitiesByIdentifier finds owners of an exact, normalized (type, value)
	FindEntitiesByIdentifier(ctx context.Context, identifierType models.IdentifierType, value string) ([]models.Entity, error)

	// FindEntitiesByName finds contacts by name. An empty first name matches any first name.
	FindEntitiesByName(ctx context.Context, first, last string, mode NameMatchMode) ([]models.Entity, error)

	// FindEntitiesByNameSubstring finds contacts whose first or last name contains the text.
	// Two-word text also matches the words as first and last name in either order; longer
	// text also matches any single word.
	FindEntitiesByNameSubstring(ctx context.Context, text string) ([]models.Entity, error)

	// FindCompaniesByNameSubstring finds companies whose name contains the text
	FindCompaniesByNameSubstring(ctx context.Context, text string) ([]models.Entity, error)

	// FindCompaniesByNameExact finds companies whose name equals the text, ignoring case
	FindCompaniesByNameExact(ctx context.Context, text string) ([]models.Entity, error)

	// FindCompaniesByDomainSubstring finds companies holding a domain identifier containing the text
	FindCompaniesByDomainSubstring(ctx context.Context, text string, limit int) ([]models.Entity, error)

	// FindCompaniesOfContact returns the companies a contact is linked to
	FindCompaniesOfContact(ctx context.Context, contactID string) ([]models.Entity, error)

	// FindEntitiesByIdentifierDomain finds entities holding an identifier of the type
	// whose domain part is exactly the given domain
	FindEntitiesByIdentifierDomain(ctx context.Context, identifierType models.IdentifierType, domain string) ([]models.Entity, error)

	// FindContactsByFirstNameAndEmailDomain finds contacts whose first name equals firstName,
	// ignoring case, and who hold an email on exactly the given domain
	FindContactsByFirstNameAndEmailDomain(ctx context.Context, firstName, domain string) ([]models.Entity, error)

	// InsertIdentifier attaches a normalized identifier. It fails with *models.ConflictError
	// when (type, value) is owned by anyone, and models.ErrPrimaryTaken when the primary
	// slot of that type is already used on the entity.
	InsertIdentifier(ctx context.Context, entityID string, identifierType models.IdentifierType, value string, isPrimary bool) (*models.Identifier, error)

	// CreateEntity creates an entity from the seed fields and returns its id. Seed facts
	// are not attached.
	CreateEntity(ctx context.Context, kind models.EntityKind, seed models.EntitySeed) (string, error)

	// MarkIssueResolved closes a data-integrity issue
	MarkIssueResolved(ctx context.Context, issueID string) error

	// DeleteDraft removes a pending draft record
	DeleteDraft(ctx context.Context, draftID string) error
}

// IssueStore persists data-integrity issues raised by ingestion
type IssueStore interface {
	CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error)
	ListOpenIssues(ctx context.Context, limit int) ([]models.Issue, error)
	MarkIssueResolved(ctx context.Context, issueID string) error
}
