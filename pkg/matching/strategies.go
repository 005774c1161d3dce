package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/store"
)

// domainMatchLimit bounds the contacts suggested only because they share the email domain
const domainMatchLimit = 10

// Strategy is one independent way of finding entities that match a query
type Strategy interface {
	// Name identifies the strategy in logs and metrics
	Name() string
	// Applies reports whether the query carries what the strategy needs
	Applies(q Query) bool
	Run(ctx context.Context, q Query) ([]models.MatchCandidate, error)
}

// ForKind returns the strategies that resolve queries of the given kind
func ForKind(kind models.EntityKind, entities store.EntityStore, matcher *domainmatch.Matcher) []Strategy {
	if kind == models.EntityKindCompany {
		return CompanyStrategies(entities, matcher)
	}
	return ContactStrategies(entities)
}

// ContactStrategies returns the strategies used to resolve contacts
func ContactStrategies(entities store.EntityStore) []Strategy {
	return []Strategy{
		&ExactEmail{store: entities},
		&ExactIdentifier{store: entities},
		&FullName{store: entities},
		&SurnameInitial{store: entities},
		&Surname{store: entities},
		&FirstNameDomain{store: entities},
		&ContactDomain{store: entities},
	}
}

// CompanyStrategies returns the strategies used to resolve companies
func CompanyStrategies(entities store.EntityStore, matcher *domainmatch.Matcher) []Strategy {
	return []Strategy{
		&ExactDomain{store: entities},
		&ExactIdentifier{store: entities},
		&LinkedContact{matcher: matcher},
		&FuzzyName{matcher: matcher},
		&CompanyDomain{matcher: matcher},
	}
}

func candidates(entities []models.Entity, matchType models.MatchType, reason string) []models.MatchCandidate {
	result := make([]models.MatchCandidate, 0, len(entities))
	for _, entity := range entities {
		result = append(result, models.NewMatchCandidate(entity, matchType, reason))
	}
	return result
}

func ofKind(entities []models.Entity, kind models.EntityKind) []models.Entity {
	return ectolinq.Filter(entities, func(e models.Entity) bool { return e.Kind == kind })
}

// employerDomain returns the query domain when it can identify an employer
func employerDomain(q Query) (string, bool) {
	if q.Email == "" || q.Domain == "" || IsPublicProvider(q.Domain) {
		return "", false
	}
	return q.Domain, true
}

// ExactEmail finds contacts that already own the query email
type ExactEmail struct {
	store store.EntityStore
}

func (s *ExactEmail) Name() string { return string(models.MatchTypeExactEmail) }

func (s *ExactEmail) Applies(q Query) bool { return q.Email != "" }

func (s *ExactEmail) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	owners, err := s.store.FindEntitiesByIdentifier(ctx, models.IdentifierTypeEmail, q.Email)
	if err != nil {
		return nil, err
	}
	return candidates(ofKind(owners, models.EntityKindContact), models.MatchTypeExactEmail, "Exact email: "+q.Email), nil
}

// ExactDomain finds companies that already own the query domain
type ExactDomain struct {
	store store.EntityStore
}

func (s *ExactDomain) Name() string { return string(models.MatchTypeExactDomain) }

func (s *ExactDomain) Applies(q Query) bool { return q.Domain != "" }

func (s *ExactDomain) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	owners, err := s.store.FindEntitiesByIdentifier(ctx, models.IdentifierTypeDomain, q.Domain)
	if err != nil {
		return nil, err
	}
	return candidates(ofKind(owners, models.EntityKindCompany), models.MatchTypeExactDomain, "Exact domain: "+q.Domain), nil
}

// ExactIdentifier finds entities of the query kind owning the query phone or LinkedIn URL
type ExactIdentifier struct {
	store store.EntityStore
}

func (s *ExactIdentifier) Name() string { return string(models.MatchTypeExactIdentifier) }

func (s *ExactIdentifier) Applies(q Query) bool { return q.Phone != "" || q.LinkedinURL != "" }

func (s *ExactIdentifier) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	var result []models.MatchCandidate
	lookups := []struct {
		identifierType models.IdentifierType
		value          string
		label          string
	}{
		{models.IdentifierTypePhone, q.Phone, "Exact phone: "},
		{models.IdentifierTypeLinkedin, q.LinkedinURL, "Exact LinkedIn: "},
	}
	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		owners, err := s.store.FindEntitiesByIdentifier(ctx, lookup.identifierType, lookup.value)
		if err != nil {
			return nil, err
		}
		result = append(result, candidates(ofKind(owners, q.Kind), models.MatchTypeExactIdentifier, lookup.label+lookup.value)...)
	}
	return result, nil
}

// FullName finds contacts whose first and last name equal a name candidate
type FullName struct {
	store store.EntityStore
}

func (s *FullName) Name() string { return string(models.MatchTypeFullName) }

func (s *FullName) Applies(q Query) bool { return len(s.eligible(q)) > 0 }

func (s *FullName) eligible(q Query) []models.NameCandidate {
	return ectolinq.Filter(q.NameCandidates, func(c models.NameCandidate) bool {
		return runeLen(c.FirstName) >= 2 && runeLen(c.LastName) >= 2
	})
}

func (s *FullName) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	var result []models.MatchCandidate
	for _, candidate := range s.eligible(q) {
		found, err := s.store.FindEntitiesByName(ctx, candidate.FirstName, candidate.LastName, store.NameMatchExact)
		if err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("Full name: %s %s", candidate.FirstName, candidate.LastName)
		result = append(result, candidates(found, models.MatchTypeFullName, reason)...)
	}
	return result, nil
}

// SurnameInitial finds contacts with the candidate's last name whose first name starts
// with the candidate's first initial
type SurnameInitial struct {
	store store.EntityStore
}

func (s *SurnameInitial) Name() string { return string(models.MatchTypeSurnameInitial) }

func (s *SurnameInitial) Applies(q Query) bool { return len(s.eligible(q)) > 0 }

func (s *SurnameInitial) eligible(q Query) []models.NameCandidate {
	return ectolinq.Filter(q.NameCandidates, func(c models.NameCandidate) bool {
		return c.FirstName != "" && runeLen(c.LastName) >= 2
	})
}

func (s *SurnameInitial) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	var result []models.MatchCandidate
	for _, candidate := range s.eligible(q) {
		initial := string([]rune(candidate.FirstName)[:1])
		found, err := s.store.FindEntitiesByName(ctx, initial, candidate.LastName, store.NameMatchPrefix)
		if err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("%s. %s", initial, candidate.LastName)
		result = append(result, candidates(found, models.MatchTypeSurnameInitial, reason)...)
	}
	return result, nil
}

// Surname finds contacts sharing the candidate's last name
type Surname struct {
	store store.EntityStore
}

func (s *Surname) Name() string { return string(models.MatchTypeSurname) }

func (s *Surname) Applies(q Query) bool { return len(s.eligible(q)) > 0 }

func (s *Surname) eligible(q Query) []models.NameCandidate {
	return ectolinq.Filter(q.NameCandidates, func(c models.NameCandidate) bool {
		return runeLen(c.LastName) >= 3
	})
}

func (s *Surname) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	var result []models.MatchCandidate
	for _, candidate := range s.eligible(q) {
		found, err := s.store.FindEntitiesByName(ctx, "", candidate.LastName, store.NameMatchExact)
		if err != nil {
			return nil, err
		}
		result = append(result, candidates(found, models.MatchTypeSurname, "Same surname: "+candidate.LastName)...)
	}
	return result, nil
}

// FirstNameDomain finds contacts with the candidate's first name and an email on the
// query's employer domain
type FirstNameDomain struct {
	store store.EntityStore
}

func (s *FirstNameDomain) Name() string { return string(models.MatchTypeFirstNameDomain) }

func (s *FirstNameDomain) Applies(q Query) bool {
	_, ok := employerDomain(q)
	return ok && len(s.eligible(q)) > 0
}

func (s *FirstNameDomain) eligible(q Query) []models.NameCandidate {
	return ectolinq.Filter(q.NameCandidates, func(c models.NameCandidate) bool {
		return runeLen(c.FirstName) >= 3
	})
}

func (s *FirstNameDomain) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	domain, ok := employerDomain(q)
	if !ok {
		return nil, nil
	}

	var result []models.MatchCandidate
	for _, candidate := range s.eligible(q) {
		found, err := s.store.FindContactsByFirstNameAndEmailDomain(ctx, candidate.FirstName, domain)
		if err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("%s at @%s", candidate.FirstName, domain)
		result = append(result, candidates(found, models.MatchTypeFirstNameDomain, reason)...)
	}
	return result, nil
}

// ContactDomain finds contacts holding any email on the query's employer domain
type ContactDomain struct {
	store store.EntityStore
}

func (s *ContactDomain) Name() string { return string(models.MatchTypeDomain) }

func (s *ContactDomain) Applies(q Query) bool {
	_, ok := employerDomain(q)
	return ok
}

func (s *ContactDomain) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	domain, ok := employerDomain(q)
	if !ok {
		return nil, nil
	}

	found, err := s.store.FindEntitiesByIdentifierDomain(ctx, models.IdentifierTypeEmail, domain)
	if err != nil {
		return nil, err
	}
	found = ofKind(found, models.EntityKindContact)
	if len(found) > domainMatchLimit {
		found = found[:domainMatchLimit]
	}
	return candidates(found, models.MatchTypeDomain, "Same domain: @"+domain), nil
}

// LinkedContact finds companies linked to the contact owning the first sample email
type LinkedContact struct {
	matcher *domainmatch.Matcher
}

func (s *LinkedContact) Name() string { return string(models.MatchTypeLinkedContact) }

func (s *LinkedContact) Applies(q Query) bool { return len(q.SampleEmails) > 0 }

func (s *LinkedContact) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	found, err := s.matcher.ByContact(ctx, q.SampleEmails[0])
	if err != nil {
		return nil, err
	}
	return candidates(found, models.MatchTypeLinkedContact, "Works with "+q.SampleEmails[0]), nil
}

// FuzzyName finds companies whose name resembles the query domain
type FuzzyName struct {
	matcher *domainmatch.Matcher
}

func (s *FuzzyName) Name() string { return string(models.MatchTypeFuzzyName) }

func (s *FuzzyName) Applies(q Query) bool { return q.Domain != "" }

func (s *FuzzyName) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	found, err := s.matcher.ByName(ctx, q.Domain)
	if err != nil {
		return nil, err
	}

	base := domainmatch.Base(q.Domain)
	result := make([]models.MatchCandidate, 0, len(found))
	for _, company := range found {
		reasons := []string{"Name matches domain " + q.Domain}
		if normalizers.CompanyNamesSimilar(company.Name(), q.Domain) {
			reasons = append(reasons, "Name similar to "+base)
		}
		result = append(result, models.NewMatchCandidate(company, models.MatchTypeFuzzyName, reasons...))
	}
	return result, nil
}

// CompanyDomain finds companies holding a domain similar to the query domain
type CompanyDomain struct {
	matcher *domainmatch.Matcher
}

func (s *CompanyDomain) Name() string { return string(models.MatchTypeDomain) }

func (s *CompanyDomain) Applies(q Query) bool { return q.Domain != "" }

func (s *CompanyDomain) Run(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	found, err := s.matcher.ByDomain(ctx, q.Domain, nil)
	if err != nil {
		return nil, err
	}
	return candidates(found, models.MatchTypeDomain, "Similar domain to "+q.Domain), nil
}
