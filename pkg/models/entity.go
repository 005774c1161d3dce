package models

import (
	"strings"
	"time"
)

// EntityKind distinguishes the two kinds of CRM records that can be resolved
type EntityKind string

const (
	EntityKindContact EntityKind = "contact"
	EntityKindCompany EntityKind = "company"
)

// IsValid reports whether the kind is one the store knows about
func (k EntityKind) IsValid() bool {
	return k == EntityKindContact || k == EntityKindCompany
}

// IdentifierType is the type of an identifying value attached to an entity
type IdentifierType string

const (
	IdentifierTypeEmail    IdentifierType = "email"
	IdentifierTypePhone    IdentifierType = "phone"
	IdentifierTypeDomain   IdentifierType = "domain"
	IdentifierTypeLinkedin IdentifierType = "linkedin_url"
)

// IsValid reports whether the identifier type is supported
func (t IdentifierType) IsValid() bool {
	switch t {
	case IdentifierTypeEmail, IdentifierTypePhone, IdentifierTypeDomain, IdentifierTypeLinkedin:
		return true
	}
	return false
}

// Entity is a persisted contact or company
type Entity struct {
	ID          string       `json:"id" db:"id"`
	Kind        EntityKind   `json:"kind" db:"kind"`
	DisplayName string       `json:"display_name" db:"display_name"`
	FirstName   string       `json:"first_name,omitempty" db:"first_name"`
	LastName    string       `json:"last_name,omitempty" db:"last_name"`
	Category    string       `json:"category,omitempty" db:"category"`
	Identifiers []Identifier `json:"identifiers,omitempty" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// Name returns the display name, falling back to first and last name
func (e *Entity) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// IdentifiersOf returns the identifiers of the given type
func (e *Entity) IdentifiersOf(identifierType IdentifierType) []Identifier {
	var result []Identifier
	for _, identifier := range e.Identifiers {
		if identifier.Type == identifierType {
			result = append(result, identifier)
		}
	}
	return result
}

// HasIdentifier reports whether the entity holds the exact (type, value) pair
func (e *Entity) HasIdentifier(identifierType IdentifierType, value string) bool {
	for _, identifier := range e.Identifiers {
		if identifier.Type == identifierType && identifier.Value == value {
			return true
		}
	}
	return false
}

// Identifier is a typed identifying value attached to exactly one entity.
// Within a type, at most one identifier per entity is primary.
type Identifier struct {
	ID        string         `json:"id" db:"id"`
	EntityID  string         `json:"entity_id" db:"entity_id"`
	Type      IdentifierType `json:"type" db:"type"`
	Value     string         `json:"value" db:"value"`
	IsPrimary bool           `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Fact is an identifying value that is not yet attached to an entity
type Fact struct {
	Type  IdentifierType `json:"type" validate:"required,oneof=email phone domain linkedin_url"`
	Value string         `json:"value" validate:"required"`
}

// EntitySeed holds the fields used to create a new entity
type EntitySeed struct {
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Category    string `json:"category"`
	Facts       []Fact `json:"facts"`
}
