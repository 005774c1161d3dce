package domainmatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func company(name string, domains ...string) models.Entity {
	entity := models.Entity{Kind: models.EntityKindCompany, DisplayName: name}
	for _, domain := range domains {
		entity.Identifiers = append(entity.Identifiers, models.Identifier{Type: models.IdentifierTypeDomain, Value: domain})
	}
	return entity
}

func names(entities []models.Entity) []string {
	result := make([]string, 0, len(entities))
	for _, e := range entities {
		result = append(result, e.DisplayName)
	}
	return result
}

func TestBase(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"gopillar.com", "gopillar"},
		{"Acme.IT", "acme"},
		{"studio-rossi.co.uk", "studio-rossi.co"},
		{"example.travel", "example.travel"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, Base(tt.domain))
		})
	}
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"fitnessmilano", "milano", "fitness"}, SearchTerms("fitnessmilano"))
	assert.Equal(t, []string{"acme"}, SearchTerms("acme"))
}

func TestReverseSubstrings(t *testing.T) {
	t.Run("short base yields nothing", func(t *testing.T) {
		assert.Empty(t, ReverseSubstrings("abc", 15))
	})

	t.Run("longest first, base excluded, capped", func(t *testing.T) {
		subs := ReverseSubstrings("gopillar", 15)
		require.Len(t, subs, 15)
		assert.Equal(t, []string{"gopilla", "opillar"}, subs[:2])
		assert.NotContains(t, subs, "gopillar")
		assert.Contains(t, subs, "pillar")
		for i := 1; i < len(subs); i++ {
			assert.GreaterOrEqual(t, len(subs[i-1]), len(subs[i]))
		}
	})

	t.Run("deduplicated", func(t *testing.T) {
		subs := ReverseSubstrings("aaaaa", 0)
		assert.Equal(t, []string{"aaaa", "aaa"}, subs)
	})

	t.Run("splits on runes", func(t *testing.T) {
		subs := ReverseSubstrings("café", 0)
		assert.Equal(t, []string{"caf", "afé"}, subs)
		for _, sub := range subs {
			assert.True(t, utf8.ValidString(sub), sub)
		}
		assert.Empty(t, ReverseSubstrings("éèà", 0))
	})
}

func TestByName(t *testing.T) {
	ctx := context.Background()

	t.Run("reverse search finds a company contained in the domain", func(t *testing.T) {
		mem := store.NewMemory()
		mem.AddEntity(company("Pillar"))
		mem.AddEntity(company("Unrelated Ltd"))

		matcher := NewMatcher(testLogger(), mem, DefaultConfig())
		found, err := matcher.ByName(ctx, "gopillar.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"Pillar"}, names(found))
	})

	t.Run("forward search keeps every company sharing the base", func(t *testing.T) {
		mem := store.NewMemory()
		mem.AddEntity(company("Acme Corp"))
		mem.AddEntity(company("Acme Robotics"))
		mem.AddEntity(company("Acme"))

		matcher := NewMatcher(testLogger(), mem, DefaultConfig())
		found, err := matcher.ByName(ctx, "acme.com")
		require.NoError(t, err)
		// "Acme" is fully contained in the base and ranks first; the others keep store order
		assert.Equal(t, []string{"Acme", "Acme Corp", "Acme Robotics"}, names(found))
	})

	t.Run("matched term count breaks ties", func(t *testing.T) {
		mem := store.NewMemory()
		mem.AddEntity(company("Milano Club"))
		mem.AddEntity(company("Fitness Milano Center"))

		matcher := NewMatcher(testLogger(), mem, DefaultConfig())
		found, err := matcher.ByName(ctx, "fitnessmilano.it")
		require.NoError(t, err)
		assert.Equal(t, []string{"Fitness Milano Center", "Milano Club"}, names(found))
	})

	t.Run("skipped and split companies are never returned", func(t *testing.T) {
		mem := store.NewMemory()
		skipped := company("Pillar")
		skipped.Category = "Skip"
		mem.AddEntity(skipped)
		mem.AddEntity(company("Pillar [SPLIT]"))

		matcher := NewMatcher(testLogger(), mem, DefaultConfig())
		found, err := matcher.ByName(ctx, "gopillar.com")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("at most five results", func(t *testing.T) {
		mem := store.NewMemory()
		for _, name := range []string{"Media One", "Media Two", "Media Three", "Media Four", "Media Five", "Media Six"} {
			mem.AddEntity(company(name))
		}

		matcher := NewMatcher(testLogger(), mem, DefaultConfig())
		found, err := matcher.ByName(ctx, "media.com")
		require.NoError(t, err)
		assert.Len(t, found, 5)
	})

	t.Run("a failing lookup is skipped", func(t *testing.T) {
		mem := store.NewMemory()
		mem.AddEntity(company("Gopillar Srl"))
		mem.AddEntity(company("Pillar"))

		matcher := NewMatcher(testLogger(), &failingExact{Memory: mem}, DefaultConfig())
		found, err := matcher.ByName(ctx, "gopillar.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"Gopillar Srl"}, names(found))
	})
}

func TestFindAllMatches(t *testing.T) {
	mem := store.NewMemory()
	pillar := mem.AddEntity(company("Pillar", "gopillar.com"))
	other := mem.AddEntity(company("GP Holdings", "gopillarventures.com"))
	employer := mem.AddEntity(company("Employer Inc"))
	contact := mem.AddEntity(models.Entity{
		Kind:        models.EntityKindContact,
		FirstName:   "Jane",
		LastName:    "Doe",
		Identifiers: []models.Identifier{{Type: models.IdentifierTypeEmail, Value: "jane@gopillar.com"}},
	})
	mem.LinkContactCompany(contact.ID, employer.ID)

	matcher := NewMatcher(testLogger(), mem, DefaultConfig())
	matches, err := matcher.FindAllMatches(context.Background(), "gopillar.com", "Jane@gopillar.com")
	require.NoError(t, err)

	require.Len(t, matches.ByName, 1)
	assert.Equal(t, pillar.ID, matches.ByName[0].ID)

	require.Len(t, matches.ByDomain, 1)
	assert.Equal(t, other.ID, matches.ByDomain[0].ID)

	require.Len(t, matches.ByContact, 1)
	assert.Equal(t, employer.ID, matches.ByContact[0].ID)
}

func TestByContactWithoutOwner(t *testing.T) {
	matcher := NewMatcher(testLogger(), store.NewMemory(), DefaultConfig())
	found, err := matcher.ByContact(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, found)
}

type capturedLogs struct {
	mu       sync.Mutex
	messages []ectologger.EctoLogMessage
}

func (c *capturedLogs) logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.messages = append(c.messages, msg)
	})
}

func (c *capturedLogs) withMessage(text string) []ectologger.EctoLogMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []ectologger.EctoLogMessage
	for _, msg := range c.messages {
		if msg.Message == text {
			result = append(result, msg)
		}
	}
	return result
}

func TestByNameLogsEachFailedLookupOnItsOwn(t *testing.T) {
	mem := store.NewMemory()
	mem.AddEntity(company("Gopillar Srl"))

	logs := &capturedLogs{}
	matcher := NewMatcher(logs.logger(), &failingExact{Memory: mem}, DefaultConfig())
	_, err := matcher.ByName(context.Background(), "gopillar.com")
	require.NoError(t, err)

	warnings := logs.withMessage("Company exact name lookup failed")
	require.Len(t, warnings, 15)
	seen := make(map[any]bool)
	for _, msg := range warnings {
		require.Error(t, msg.Err)
		assert.Equal(t, "gopillar", msg.Fields["base"])
		assert.NotContains(t, msg.Fields, "term")
		seen[msg.Fields["substring"]] = true
	}
	assert.Len(t, seen, 15)

	done := logs.withMessage("Found companies by name")
	require.Len(t, done, 1)
	assert.NoError(t, done[0].Err)
	assert.NotContains(t, done[0].Fields, "substring")
	assert.Equal(t, 1, done[0].Fields["match_count"])
}

type failingExact struct {
	*store.Memory
}

func (f *failingExact) FindCompaniesByNameExact(context.Context, string) ([]models.Entity, error) {
	return nil, errors.New("connection refused")
}
