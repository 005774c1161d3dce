package models

import "time"

// RawFact is the partial identity a caller wants resolved
type RawFact struct {
	Kind         EntityKind `json:"kind" validate:"required,oneof=contact company"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	DisplayName  string     `json:"display_name,omitempty"`
	LinkedinURL  string     `json:"linkedin_url,omitempty"`
	SampleEmails []string   `json:"sample_emails,omitempty"`
	IssueIDs     []string   `json:"issue_ids,omitempty"`
	DraftID      string     `json:"draft_id,omitempty"`
}

// Facts returns the identifying values carried by the raw fact, unnormalized
func (f *RawFact) Facts() []Fact {
	var facts []Fact
	if f.Email != "" {
		facts = append(facts, Fact{Type: IdentifierTypeEmail, Value: f.Email})
	}
	if f.Phone != "" {
		facts = append(facts, Fact{Type: IdentifierTypePhone, Value: f.Phone})
	}
	if f.Domain != "" {
		facts = append(facts, Fact{Type: IdentifierTypeDomain, Value: f.Domain})
	}
	if f.LinkedinURL != "" {
		facts = append(facts, Fact{Type: IdentifierTypeLinkedin, Value: f.LinkedinURL})
	}
	return facts
}

// IssueStatus is the lifecycle state of a data-integrity issue
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
)

// Issue is an item in the data-integrity inbox, raised when ingestion sees an
// identity it cannot attach to a known entity
type Issue struct {
	ID         string      `json:"id" db:"id"`
	IssueType  string      `json:"issue_type" db:"issue_type"`
	Status     IssueStatus `json:"status" db:"status"`
	Source     string      `json:"source,omitempty" db:"source"`
	Fact       RawFact     `json:"fact" db:"-"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}
