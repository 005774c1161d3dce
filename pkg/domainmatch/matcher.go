// Package domainmatch finds companies plausibly owning an unfamiliar email domain by
// comparing the domain's base token with company names in both directions
package domainmatch

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultMaxReverseSubstrings caps the substrings looked up by the reverse search
	DefaultMaxReverseSubstrings = 15
	// DefaultWorkers bounds the concurrent name lookups of one FindAllMatches call
	DefaultWorkers = 4

	minReverseBaseLength = 4
	minSubstringLength   = 3
	maxSubstringLength   = 20
	maxByName            = 5
	domainLookupPrefix   = 6
	domainLookupLimit    = 3
	maxByDomain          = 2
	maxByContact         = 2

	// splitMarker tags companies that were split into several records and must not be suggested
	splitMarker  = "[SPLIT]"
	skipCategory = "Skip"
)

var domainSuffixPattern = regexp.MustCompile(`(?i)\.(com|it|net|org|co|io|uk|de|fr|es|eu)$`)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// keywords are city and industry words that are searched on their own when the base contains them
var keywords = []string{"torino", "milano", "roma", "palestre", "fitness", "sport", "tech", "group", "studio", "lab", "media", "digital"}

// CompanyFinder is the part of the entity store the matcher reads
type CompanyFinder interface {
	FindCompaniesByNameSubstring(ctx context.Context, text string) ([]models.Entity, error)
	FindCompaniesByNameExact(ctx context.Context, text string) ([]models.Entity, error)
	FindCompaniesByDomainSubstring(ctx context.Context, text string, limit int) ([]models.Entity, error)
	FindEntitiesByIdentifier(ctx context.Context, identifierType models.IdentifierType, value string) ([]models.Entity, error)
	FindCompaniesOfContact(ctx context.Context, contactID string) ([]models.Entity, error)
}

// Config tunes the matcher
type Config struct {
	MaxReverseSubstrings int
	Workers              int
}

// DefaultConfig returns the standard matcher configuration
func DefaultConfig() Config {
	return Config{
		MaxReverseSubstrings: DefaultMaxReverseSubstrings,
		Workers:              DefaultWorkers,
	}
}

// Matches groups the companies found for a domain by the evidence that found them
type Matches struct {
	ByName    []models.Entity `json:"by_name"`
	ByDomain  []models.Entity `json:"by_domain"`
	ByContact []models.Entity `json:"by_contact"`
}

// Matcher is the domain to company-name fuzzy matcher
type Matcher struct {
	log    ectologger.Logger
	finder CompanyFinder
	cfg    Config
}

// NewMatcher creates a matcher over the given store
func NewMatcher(log ectologger.Logger, finder CompanyFinder, cfg Config) *Matcher {
	if cfg.MaxReverseSubstrings <= 0 {
		cfg.MaxReverseSubstrings = DefaultMaxReverseSubstrings
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Matcher{log: log, finder: finder, cfg: cfg}
}

// Base strips one known suffix from the domain and lowercases it: "gopillar.com" becomes "gopillar"
func Base(domain string) string {
	return strings.ToLower(domainSuffixPattern.ReplaceAllString(strings.TrimSpace(domain), ""))
}

// SearchTerms returns the base followed by every keyword it contains
func SearchTerms(base string) []string {
	terms := []string{base}
	for _, word := range keywords {
		if strings.Contains(base, word) && !ectolinq.Contains(terms, word) {
			terms = append(terms, word)
		}
	}
	return terms
}

// ReverseSubstrings enumerates the contiguous substrings of base with length 3..20,
// without base itself, longest first, capped at max. Bases shorter than 4 yield nothing.
func ReverseSubstrings(base string, max int) []string {
	runes := []rune(base)
	if len(runes) < minReverseBaseLength {
		return nil
	}

	seen := make(map[string]bool)
	var substrings []string
	for start := 0; start < len(runes)-2; start++ {
		for length := minSubstringLength; length <= len(runes)-start && length <= maxSubstringLength; length++ {
			sub := string(runes[start : start+length])
			if sub == base || seen[sub] {
				continue
			}
			seen[sub] = true
			substrings = append(substrings, sub)
		}
	}

	sort.SliceStable(substrings, func(i, j int) bool {
		return utf8.RuneCountInString(substrings[i]) > utf8.RuneCountInString(substrings[j])
	})
	if max > 0 && len(substrings) > max {
		substrings = substrings[:max]
	}
	return substrings
}

// FindAllMatches runs the three lookups for a domain. sampleEmail may be empty.
func (m *Matcher) FindAllMatches(ctx context.Context, domain, sampleEmail string) (*Matches, error) {
	ctx, span := tracing.StartSpan(ctx, "domainmatch.Matcher.FindAllMatches")
	defer span.End()

	byName, err := m.ByName(ctx, domain)
	if err != nil {
		return nil, err
	}
	byDomain, err := m.ByDomain(ctx, domain, byName)
	if err != nil {
		return nil, err
	}
	byContact, err := m.ByContact(ctx, sampleEmail)
	if err != nil {
		return nil, err
	}

	return &Matches{ByName: byName, ByDomain: byDomain, ByContact: byContact}, nil
}

// ByName returns up to five companies whose name shares a search term with the domain
// base or is itself contained in the base. A failed lookup is logged and skipped.
func (m *Matcher) ByName(ctx context.Context, domain string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "domainmatch.Matcher.ByName")
	defer span.End()

	base := Base(domain)
	if base == "" {
		return nil, nil
	}

	fields := map[string]any{"domain": domain, "base": base}

	terms := SearchTerms(base)
	substrings := ReverseSubstrings(base, m.cfg.MaxReverseSubstrings)

	// one result slot per lookup keeps the merge order deterministic
	results := make([][]models.Entity, len(terms)+len(substrings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, term := range terms {
		g.Go(func() error {
			found, err := m.finder.FindCompaniesByNameSubstring(gctx, term)
			if err != nil {
				m.log.WithContext(ctx).WithFields(fields).WithError(err).WithField("term", term).Warn("Company name lookup failed")
				return nil
			}
			results[i] = found
			return nil
		})
	}
	for i, sub := range substrings {
		g.Go(func() error {
			found, err := m.finder.FindCompaniesByNameExact(gctx, sub)
			if err != nil {
				m.log.WithContext(ctx).WithFields(fields).WithError(err).WithField("substring", sub).Warn("Company exact name lookup failed")
				return nil
			}
			results[len(terms)+i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []models.Entity
	seen := make(map[string]bool)
	for _, found := range results {
		for _, company := range found {
			if seen[company.ID] || !suggestable(company) {
				continue
			}
			seen[company.ID] = true
			merged = append(merged, company)
		}
	}

	rankByName(merged, base, terms)
	if len(merged) > maxByName {
		merged = merged[:maxByName]
	}

	m.log.WithContext(ctx).WithFields(fields).WithField("match_count", len(merged)).Debug("Found companies by name")
	return merged, nil
}

// ByDomain returns up to two companies holding a domain similar to this one,
// excluding companies already found by name
func (m *Matcher) ByDomain(ctx context.Context, domain string, exclude []models.Entity) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "domainmatch.Matcher.ByDomain")
	defer span.End()

	base := Base(domain)
	if base == "" {
		return nil, nil
	}
	prefix := base
	if len(prefix) > domainLookupPrefix {
		prefix = prefix[:domainLookupPrefix]
	}

	found, err := m.finder.FindCompaniesByDomainSubstring(ctx, prefix, domainLookupLimit)
	if err != nil {
		return nil, err
	}

	excluded := ectolinq.Map(exclude, func(e models.Entity) string { return e.ID })
	result := ectolinq.Filter(found, func(e models.Entity) bool {
		return suggestable(e) && !ectolinq.Contains(excluded, e.ID)
	})
	if len(result) > maxByDomain {
		result = result[:maxByDomain]
	}
	return result, nil
}

// ByContact returns up to two companies linked to the contact owning the sample email
func (m *Matcher) ByContact(ctx context.Context, sampleEmail string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "domainmatch.Matcher.ByContact")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(sampleEmail))
	if email == "" {
		return nil, nil
	}

	owners, err := m.finder.FindEntitiesByIdentifier(ctx, models.IdentifierTypeEmail, email)
	if err != nil {
		return nil, err
	}
	owner := ectolinq.Find(owners, func(e models.Entity) bool { return e.Kind == models.EntityKindContact })
	if owner.ID == "" {
		return nil, nil
	}

	companies, err := m.finder.FindCompaniesOfContact(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	result := ectolinq.Filter(companies, suggestable)
	if len(result) > maxByContact {
		result = result[:maxByContact]
	}
	return result, nil
}

// NameContainedInBase reports whether the company name, stripped to lowercase
// alphanumerics, appears inside base
func NameContainedInBase(name, base string) bool {
	compact := nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "")
	return compact != "" && strings.Contains(base, compact)
}

func rankByName(companies []models.Entity, base string, terms []string) {
	type rank struct {
		inBase  bool
		matched int
	}
	ranks := make(map[string]rank, len(companies))
	for _, company := range companies {
		name := strings.ToLower(company.Name())
		matched := 0
		for _, term := range terms {
			if strings.Contains(name, term) {
				matched++
			}
		}
		ranks[company.ID] = rank{inBase: NameContainedInBase(name, base), matched: matched}
	}

	sort.SliceStable(companies, func(i, j int) bool {
		a, b := ranks[companies[i].ID], ranks[companies[j].ID]
		if a.inBase != b.inBase {
			return a.inBase
		}
		return a.matched > b.matched
	})
}

func suggestable(company models.Entity) bool {
	return company.Category != skipCategory && !strings.Contains(strings.ToUpper(company.Name()), splitMarker)
}
