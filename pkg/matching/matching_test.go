package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/ranking"
	"github.com/Ramsey-B/clover/pkg/store"
)

func testMatcher(mem *store.Memory) *domainmatch.Matcher {
	return domainmatch.NewMatcher(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), mem, domainmatch.DefaultConfig())
}

func runAll(t *testing.T, strategies []Strategy, q Query) [][]models.MatchCandidate {
	t.Helper()
	var lists [][]models.MatchCandidate
	for _, strategy := range strategies {
		if !strategy.Applies(q) {
			continue
		}
		found, err := strategy.Run(context.Background(), q)
		require.NoError(t, err, strategy.Name())
		lists = append(lists, found)
	}
	return lists
}

func contactWithEmail(first, last, email string) models.Entity {
	return models.Entity{
		Kind:        models.EntityKindContact,
		FirstName:   first,
		LastName:    last,
		Identifiers: []models.Identifier{{Type: models.IdentifierTypeEmail, Value: email, IsPrimary: true}},
	}
}

func TestNewQuery(t *testing.T) {
	t.Run("normalizes and derives the domain", func(t *testing.T) {
		q, problems := NewQuery(models.RawFact{
			Kind:         models.EntityKindContact,
			Email:        "  John.Smith@ACME.com ",
			Phone:        "0039 333 123",
			SampleEmails: []string{"not-an-email", "A@acme.com"},
		})
		assert.Empty(t, problems)
		assert.Equal(t, "john.smith@acme.com", q.Email)
		assert.Equal(t, "acme.com", q.Domain)
		assert.Equal(t, "+39333123", q.Phone)
		assert.Equal(t, []string{"a@acme.com"}, q.SampleEmails)
	})

	t.Run("malformed fragments are dropped", func(t *testing.T) {
		q, problems := NewQuery(models.RawFact{Kind: models.EntityKindContact, Email: "no-at-sign", DisplayName: "Mario Rossi"})
		require.Len(t, problems, 1)
		var normalization *models.NormalizationError
		assert.ErrorAs(t, problems[0], &normalization)
		assert.Empty(t, q.Email)
		assert.Empty(t, q.Domain)
		assert.Len(t, q.NameCandidates, 1)
	})
}

func TestNameCandidates(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		email       string
		want        []models.NameCandidate
	}{
		{
			name:        "display name and dotted local part",
			displayName: "mario DE rossi",
			email:       "rossi.mario@example.it",
			want: []models.NameCandidate{
				{FirstName: "Mario", LastName: "Rossi", Source: models.NameSourceDisplayName},
				{FirstName: "Rossi", LastName: "Mario", Source: models.NameSourceEmailLocalPart},
			},
		},
		{
			name:        "single token is a last name",
			displayName: "Cher",
			want:        []models.NameCandidate{{FirstName: "", LastName: "Cher", Source: models.NameSourceDisplayName}},
		},
		{
			name:        "display name that is an address is ignored",
			displayName: "john@acme.com",
			email:       "john@acme.com",
			want:        nil,
		},
		{
			name:  "both orderings of the local part",
			email: "john.smith@acme.com",
			want: []models.NameCandidate{
				{FirstName: "John", LastName: "Smith", Source: models.NameSourceEmailLocalPart},
				{FirstName: "Smith", LastName: "John", Source: models.NameSourceEmailLocalPartReverse},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NameCandidates(tt.displayName, tt.email))
		})
	}
}

func TestIsPublicProvider(t *testing.T) {
	assert.True(t, IsPublicProvider("gmail.com"))
	assert.True(t, IsPublicProvider("Libero.IT"))
	assert.False(t, IsPublicProvider("acme.com"))
}

func TestExactEmailIgnoresCase(t *testing.T) {
	mem := store.NewMemory()
	owner := mem.AddEntity(contactWithEmail("Ada", "Byron", "a@b.com"))

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, Email: "A@B.com"})
	found, err := (&ExactEmail{store: mem}).Run(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, owner.ID, found[0].Entity.ID)
	assert.Equal(t, 100, found[0].ConfidenceScore)
}

func TestContactScenarioFullNameWinsOnce(t *testing.T) {
	mem := store.NewMemory()
	john := mem.AddEntity(contactWithEmail("John", "Smith", "j.smith@acme.com"))

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, Email: "john.smith@acme.com", DisplayName: "John Smith"})
	lists := runAll(t, ContactStrategies(mem), q)

	result := ranking.Aggregate(ranking.DefaultAutoLimit, lists...)
	require.Len(t, result, 1)
	assert.Equal(t, john.ID, result[0].Entity.ID)
	assert.Equal(t, models.MatchTypeFullName, result[0].MatchType)
	assert.Equal(t, 90, result[0].ConfidenceScore)
	assert.Contains(t, result[0].MatchReasons, "Same domain: @acme.com")
}

func TestPublicProviderDomainIsIgnored(t *testing.T) {
	mem := store.NewMemory()
	mem.AddEntity(contactWithEmail("Luca", "Bianchi", "luca.b@gmail.com"))

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, Email: "luca@gmail.com"})
	assert.False(t, (&ContactDomain{store: mem}).Applies(q))
	assert.False(t, (&FirstNameDomain{store: mem}).Applies(q))
	assert.Empty(t, ranking.Aggregate(0, runAll(t, ContactStrategies(mem), q)...))
}

func TestFirstNameDomainBeyondColleagueCap(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < store.DefaultQueryLimit+5; i++ {
		mem.AddEntity(contactWithEmail(fmt.Sprintf("Colleague%d", i), "Staff", fmt.Sprintf("c%d@acme.com", i)))
	}
	zed := mem.AddEntity(contactWithEmail("Zed", "Jones", "zed.jones@acme.com"))

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, Email: "zed@acme.com", DisplayName: "Zed Brown"})
	found, err := (&FirstNameDomain{store: mem}).Run(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, zed.ID, found[0].Entity.ID)

	result := ranking.Aggregate(ranking.DefaultAutoLimit, runAll(t, ContactStrategies(mem), q)...)
	require.NotEmpty(t, result)
	assert.Equal(t, zed.ID, result[0].Entity.ID)
	assert.Equal(t, models.MatchTypeFirstNameDomain, result[0].MatchType)
}

func TestSurnameStrategies(t *testing.T) {
	mem := store.NewMemory()
	jane := mem.AddEntity(models.Entity{Kind: models.EntityKindContact, FirstName: "Jane", LastName: "Smith"})
	paul := mem.AddEntity(models.Entity{Kind: models.EntityKindContact, FirstName: "Paul", LastName: "Smith"})

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, DisplayName: "Jack Smith"})
	result := ranking.Aggregate(0, runAll(t, ContactStrategies(mem), q)...)

	require.Len(t, result, 2)
	assert.Equal(t, jane.ID, result[0].Entity.ID)
	assert.Equal(t, models.MatchTypeSurnameInitial, result[0].MatchType)
	assert.Equal(t, paul.ID, result[1].Entity.ID)
	assert.Equal(t, models.MatchTypeSurname, result[1].MatchType)
}

func TestExactIdentifier(t *testing.T) {
	mem := store.NewMemory()
	owner := mem.AddEntity(models.Entity{
		Kind:        models.EntityKindContact,
		FirstName:   "Ada",
		Identifiers: []models.Identifier{{Type: models.IdentifierTypePhone, Value: "+393331234567"}},
	})

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindContact, Phone: "0039 333 1234567"})
	found, err := (&ExactIdentifier{store: mem}).Run(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, owner.ID, found[0].Entity.ID)
	assert.Equal(t, models.MatchTypeExactIdentifier, found[0].MatchType)
}

func TestCompanyStrategies(t *testing.T) {
	mem := store.NewMemory()
	owner := mem.AddEntity(models.Entity{
		Kind:        models.EntityKindCompany,
		DisplayName: "Acme Corp",
		Identifiers: []models.Identifier{{Type: models.IdentifierTypeDomain, Value: "acme.com"}},
	})
	robotics := mem.AddEntity(models.Entity{Kind: models.EntityKindCompany, DisplayName: "Acme Robotics"})

	q, _ := NewQuery(models.RawFact{Kind: models.EntityKindCompany, Domain: "https://www.acme.com/about"})
	require.Equal(t, "acme.com", q.Domain)

	result := ranking.Aggregate(0, runAll(t, CompanyStrategies(mem, testMatcher(mem)), q)...)
	require.Len(t, result, 2)
	assert.Equal(t, owner.ID, result[0].Entity.ID)
	assert.Equal(t, models.MatchTypeExactDomain, result[0].MatchType)
	assert.Equal(t, robotics.ID, result[1].Entity.ID)
	assert.Equal(t, models.MatchTypeFuzzyName, result[1].MatchType)
}

func TestManualSearch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.AddEntity(models.Entity{Kind: models.EntityKindContact, FirstName: "Mario", LastName: "Rossi"})
	mem.AddEntity(models.Entity{Kind: models.EntityKindCompany, DisplayName: "Rossi Srl"})
	mem.AddEntity(models.Entity{Kind: models.EntityKindCompany, DisplayName: "Rossi Old", Category: "Skip"})

	t.Run("too short", func(t *testing.T) {
		found, err := ManualSearch(ctx, mem, models.EntityKindContact, "r")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("contacts", func(t *testing.T) {
		found, err := ManualSearch(ctx, mem, models.EntityKindContact, "rossi mario")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, models.MatchTypeManualSearch, found[0].MatchType)
		assert.Equal(t, 70, found[0].ConfidenceScore)
	})

	t.Run("companies skip the Skip category", func(t *testing.T) {
		found, err := ManualSearch(ctx, mem, models.EntityKindCompany, "rossi")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Rossi Srl", found[0].Entity.DisplayName)
	})
}
