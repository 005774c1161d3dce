// Package matching implements the resolution strategies that turn a normalized partial
// identity into scored match candidates
package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Query is the normalized form of a raw fact. Fields that failed normalization are empty.
type Query struct {
	Kind           models.EntityKind
	Email          string
	Domain         string
	Phone          string
	LinkedinURL    string
	DisplayName    string
	SampleEmails   []string
	NameCandidates []models.NameCandidate
}

// NewQuery normalizes a raw fact. Fragments that normalize to nothing are dropped and
// reported as *models.NormalizationError so the caller can log them.
func NewQuery(raw models.RawFact) (Query, []error) {
	var problems []error
	normalize := func(identifierType models.IdentifierType, value string) string {
		if strings.TrimSpace(value) == "" {
			return ""
		}
		normalized, err := normalizers.NormalizeIdentifier(identifierType, value)
		if err != nil {
			problems = append(problems, err)
			return ""
		}
		return normalized
	}

	q := Query{
		Kind:        raw.Kind,
		Email:       normalize(models.IdentifierTypeEmail, raw.Email),
		Domain:      normalize(models.IdentifierTypeDomain, raw.Domain),
		Phone:       normalize(models.IdentifierTypePhone, raw.Phone),
		LinkedinURL: normalize(models.IdentifierTypeLinkedin, raw.LinkedinURL),
		DisplayName: strings.TrimSpace(raw.DisplayName),
	}

	if q.Domain == "" && q.Email != "" {
		if domain, ok := normalizers.ExtractDomain(q.Email); ok {
			q.Domain = domain
		}
	}

	for _, sample := range raw.SampleEmails {
		if email := normalizers.NormalizeEmail(sample); email != "" {
			q.SampleEmails = append(q.SampleEmails, email)
		}
	}

	q.NameCandidates = NameCandidates(q.DisplayName, q.Email)
	return q, problems
}

// NameCandidates guesses (first, last) pairs from a display name and the local part of
// an email address. A dotted local part yields both orderings. Duplicates are removed.
func NameCandidates(displayName, email string) []models.NameCandidate {
	var candidates []models.NameCandidate
	add := func(first, last string, source models.NameSource) {
		candidate := models.NameCandidate{
			FirstName: normalizers.CapitalizeName(first),
			LastName:  normalizers.CapitalizeName(last),
			Source:    source,
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing.FirstName, candidate.FirstName) && strings.EqualFold(existing.LastName, candidate.LastName) {
				return
			}
		}
		candidates = append(candidates, candidate)
	}

	// a display name that is itself an address carries no name
	if displayName != "" && !strings.Contains(displayName, "@") {
		parts := strings.Fields(displayName)
		switch {
		case len(parts) >= 2:
			add(parts[0], parts[len(parts)-1], models.NameSourceDisplayName)
		case len(parts) == 1:
			add("", parts[0], models.NameSourceDisplayName)
		}
	}

	if local := normalizers.LocalPart(email); local != "" {
		parts := strings.Split(strings.ToLower(local), ".")
		if len(parts) >= 2 && parts[0] != "" && parts[len(parts)-1] != "" {
			add(parts[0], parts[len(parts)-1], models.NameSourceEmailLocalPart)
			add(parts[len(parts)-1], parts[0], models.NameSourceEmailLocalPartReverse)
		}
	}

	return candidates
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
