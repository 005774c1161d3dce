package linking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recordingListener struct {
	mu      sync.Mutex
	linked  []models.Identifier
	created []models.Entity
	merged  []string
	err     error
}

func (r *recordingListener) IdentifierLinked(_ context.Context, _ string, identifier models.Identifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linked = append(r.linked, identifier)
	return r.err
}

func (r *recordingListener) EntityCreated(_ context.Context, entity models.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, entity)
	return r.err
}

func (r *recordingListener) ContactMerged(_ context.Context, targetID, _ string, _ []models.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merged = append(r.merged, targetID)
	return r.err
}

type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) WithLock(_ context.Context, key string, _ time.Duration, fn func() error) error {
	l.keys = append(l.keys, key)
	return fn()
}

func email(value string) models.Fact {
	return models.Fact{Type: models.IdentifierTypeEmail, Value: value}
}

func newContact(mem *store.Memory, first, last string, emails ...string) models.Entity {
	entity := models.Entity{Kind: models.EntityKindContact, FirstName: first, LastName: last}
	for i, value := range emails {
		entity.Identifiers = append(entity.Identifiers, models.Identifier{Type: models.IdentifierTypeEmail, Value: value, IsPrimary: i == 0})
	}
	return mem.AddEntity(entity)
}

func identifierCount(t *testing.T, mem *store.Memory, id string) int {
	t.Helper()
	entity, err := mem.GetEntity(context.Background(), id)
	require.NoError(t, err)
	return len(entity.Identifiers)
}

func TestLinkIdentifierTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	listener := &recordingListener{}
	executor := NewExecutor(testLogger(), mem, Config{}, WithListeners(listener))
	contact := newContact(mem, "Xavier", "Young")

	first, err := executor.LinkIdentifier(ctx, contact.ID, email("x@y.com"))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Identifier.IsPrimary)

	second, err := executor.LinkIdentifier(ctx, contact.ID, email("X@Y.com"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.AlreadyLinked)
	assert.Equal(t, first.Identifier.ID, second.Identifier.ID)

	assert.Equal(t, 1, identifierCount(t, mem, contact.ID))
	assert.Len(t, listener.linked, 1)
}

func TestLinkIdentifierConflictDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	listener := &recordingListener{}
	executor := NewExecutor(testLogger(), mem, Config{}, WithListeners(listener))
	owner := newContact(mem, "Owner", "One", "shared@acme.com")
	other := newContact(mem, "Other", "Two")

	_, err := executor.LinkIdentifier(ctx, other.ID, email("shared@acme.com"), "issue-1")

	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, owner.ID, conflict.OwnerID)
	assert.Equal(t, 0, identifierCount(t, mem, other.ID))
	assert.Equal(t, 1, identifierCount(t, mem, owner.ID))
	assert.Empty(t, listener.linked)
}

func TestLinkIdentifierPrimary(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	executor := NewExecutor(testLogger(), mem, Config{})
	contact := newContact(mem, "Ada", "Byron", "ada@byron.uk")

	second, err := executor.LinkIdentifier(ctx, contact.ID, email("ada@work.uk"))
	require.NoError(t, err)
	assert.False(t, second.Identifier.IsPrimary)

	phone, err := executor.LinkIdentifier(ctx, contact.ID, models.Fact{Type: models.IdentifierTypePhone, Value: "+39 333 000"})
	require.NoError(t, err)
	assert.True(t, phone.Identifier.IsPrimary)
	assert.Equal(t, "+39333000", phone.Identifier.Value)
}

func TestLinkIdentifierRejectsUnnormalizable(t *testing.T) {
	mem := store.NewMemory()
	executor := NewExecutor(testLogger(), mem, Config{})
	contact := newContact(mem, "Ada", "Byron")

	_, err := executor.LinkIdentifier(context.Background(), contact.ID, email("not-an-email"))
	var normalization *models.NormalizationError
	assert.ErrorAs(t, err, &normalization)
}

func TestLinkIdentifierUnknownEntity(t *testing.T) {
	executor := NewExecutor(testLogger(), store.NewMemory(), Config{})
	_, err := executor.LinkIdentifier(context.Background(), "missing", email("a@b.com"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// staleStore hides identifiers from reads, as a replica lagging behind a concurrent writer would
type staleStore struct {
	*store.Memory
	staleLookups int
	hideOnGet    bool
}

func (s *staleStore) FindEntitiesByIdentifier(ctx context.Context, identifierType models.IdentifierType, value string) ([]models.Entity, error) {
	if s.staleLookups > 0 {
		s.staleLookups--
		return nil, nil
	}
	return s.Memory.FindEntitiesByIdentifier(ctx, identifierType, value)
}

func (s *staleStore) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	entity, err := s.Memory.GetEntity(ctx, id)
	if err == nil && s.hideOnGet {
		entity.Identifiers = nil
	}
	return entity, err
}

func TestLinkIdentifierRaces(t *testing.T) {
	ctx := context.Background()

	t.Run("lost primary slot retries as non-primary", func(t *testing.T) {
		mem := store.NewMemory()
		contact := newContact(mem, "Ada", "Byron", "ada@byron.uk")
		executor := NewExecutor(testLogger(), &staleStore{Memory: mem, hideOnGet: true}, Config{})

		result, err := executor.LinkIdentifier(ctx, contact.ID, email("ada@work.uk"))
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.False(t, result.Identifier.IsPrimary)
	})

	t.Run("unique violation by another entity is a conflict", func(t *testing.T) {
		mem := store.NewMemory()
		winner := newContact(mem, "Win", "Ner", "race@acme.com")
		loser := newContact(mem, "Lo", "Ser")
		executor := NewExecutor(testLogger(), &staleStore{Memory: mem, staleLookups: 1}, Config{})

		_, err := executor.LinkIdentifier(ctx, loser.ID, email("race@acme.com"))
		var conflict *models.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, winner.ID, conflict.OwnerID)
		assert.Equal(t, 0, identifierCount(t, mem, loser.ID))
	})

	t.Run("unique violation by the same entity is a no-op", func(t *testing.T) {
		mem := store.NewMemory()
		contact := newContact(mem, "Same", "Owner", "mine@acme.com")
		executor := NewExecutor(testLogger(), &staleStore{Memory: mem, staleLookups: 1}, Config{})

		result, err := executor.LinkIdentifier(ctx, contact.ID, email("mine@acme.com"))
		require.NoError(t, err)
		assert.True(t, result.AlreadyLinked)
		assert.Equal(t, 1, identifierCount(t, mem, contact.ID))
	})
}

func TestLinkIdentifierConcurrent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	executor := NewExecutor(testLogger(), mem, Config{})
	a := newContact(mem, "A", "A")
	b := newContact(mem, "B", "B")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = executor.LinkIdentifier(ctx, id, email("contested@acme.com"))
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *models.ConflictError
		assert.True(t, errors.As(err, &conflict))
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, identifierCount(t, mem, a.ID)+identifierCount(t, mem, b.ID))
}

func TestLinkIdentifierResolvesIssuesAndUsesLock(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	locker := &recordingLocker{}
	listener := &recordingListener{err: errors.New("broker down")}
	executor := NewExecutor(testLogger(), mem, Config{}, WithLocker(locker), WithListeners(listener))
	contact := newContact(mem, "Ada", "Byron")
	issue, err := mem.CreateIssue(ctx, &models.Issue{IssueType: "unknown_email"})
	require.NoError(t, err)

	_, err = executor.LinkIdentifier(ctx, contact.ID, email("ada@byron.uk"), issue.ID, "missing-issue")
	require.NoError(t, err)

	stored, ok := mem.Issue(issue.ID)
	require.True(t, ok)
	assert.Equal(t, models.IssueStatusResolved, stored.Status)
	assert.Equal(t, []string{"identifier:email:ada@byron.uk"}, locker.keys)
	assert.Len(t, listener.linked, 1)
}

func TestMergeDuplicateContact(t *testing.T) {
	ctx := context.Background()

	t.Run("all facts linked deletes the draft", func(t *testing.T) {
		mem := store.NewMemory()
		listener := &recordingListener{}
		executor := NewExecutor(testLogger(), mem, Config{}, WithListeners(listener))
		target := newContact(mem, "Ada", "Byron", "ada@byron.uk")
		mem.AddDraft("draft-1")
		issue, err := mem.CreateIssue(ctx, &models.Issue{IssueType: "duplicate"})
		require.NoError(t, err)

		result, err := executor.MergeDuplicateContact(ctx, MergeRequest{
			DraftID:     "draft-1",
			Identifiers: []models.Fact{email("ada@byron.uk"), email("ada@work.uk"), {Type: models.IdentifierTypePhone, Value: "+44 20 0000"}},
			IssueIDs:    []string{issue.ID},
		}, target.ID)
		require.NoError(t, err)

		assert.True(t, result.DraftDeleted)
		assert.False(t, mem.HasDraft("draft-1"))
		assert.Len(t, result.Links, 3)
		assert.True(t, result.Links[0].AlreadyLinked)
		assert.Equal(t, 3, identifierCount(t, mem, target.ID))
		assert.Equal(t, []string{target.ID}, listener.merged)

		stored, _ := mem.Issue(issue.ID)
		assert.Equal(t, models.IssueStatusResolved, stored.Status)
	})

	t.Run("a conflicting fact keeps the draft and the applied facts", func(t *testing.T) {
		mem := store.NewMemory()
		executor := NewExecutor(testLogger(), mem, Config{})
		target := newContact(mem, "Ada", "Byron")
		other := newContact(mem, "Someone", "Else", "taken@acme.com")
		mem.AddDraft("draft-2")

		result, err := executor.MergeDuplicateContact(ctx, MergeRequest{
			DraftID:     "draft-2",
			Identifiers: []models.Fact{email("ada@byron.uk"), email("taken@acme.com")},
		}, target.ID)
		assert.Nil(t, result)

		var partial *models.PartialMergeError
		require.True(t, errors.As(err, &partial))
		assert.Equal(t, []models.Fact{email("ada@byron.uk")}, partial.Linked)
		require.Len(t, partial.Failed, 1)

		var conflict *models.ConflictError
		require.True(t, errors.As(partial.Failed[0].Err, &conflict))
		assert.Equal(t, other.ID, conflict.OwnerID)

		assert.True(t, mem.HasDraft("draft-2"))
		assert.Equal(t, 1, identifierCount(t, mem, target.ID))
	})

	t.Run("unknown target", func(t *testing.T) {
		executor := NewExecutor(testLogger(), store.NewMemory(), Config{})
		_, err := executor.MergeDuplicateContact(ctx, MergeRequest{Identifiers: []models.Fact{email("a@b.com")}}, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestCreateEntityFromFact(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with the first fact of each type primary", func(t *testing.T) {
		mem := store.NewMemory()
		listener := &recordingListener{}
		executor := NewExecutor(testLogger(), mem, Config{}, WithListeners(listener))

		id, err := executor.CreateEntityFromFact(ctx, models.EntityKindContact, models.EntitySeed{
			FirstName: "Grace",
			LastName:  "Hopper",
			Facts:     []models.Fact{email("Grace@Navy.mil"), email("grace@yale.edu"), email("grace@navy.mil")},
		})
		require.NoError(t, err)

		entity, err := mem.GetEntity(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Grace Hopper", entity.DisplayName)
		require.Len(t, entity.Identifiers, 2)
		assert.True(t, entity.Identifiers[0].IsPrimary)
		assert.Equal(t, "grace@navy.mil", entity.Identifiers[0].Value)
		assert.False(t, entity.Identifiers[1].IsPrimary)

		require.Len(t, listener.created, 1)
		assert.Equal(t, id, listener.created[0].ID)
	})

	t.Run("conflict creates nothing", func(t *testing.T) {
		mem := store.NewMemory()
		executor := NewExecutor(testLogger(), mem, Config{})
		owner := newContact(mem, "Owner", "Person", "owned@acme.com")

		id, err := executor.CreateEntityFromFact(ctx, models.EntityKindContact, models.EntitySeed{
			FirstName: "New",
			LastName:  "Hopeful",
			Facts:     []models.Fact{email("fresh@acme.com"), email("owned@acme.com")},
		})
		assert.Empty(t, id)

		var conflict *models.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, owner.ID, conflict.OwnerID)

		found, err := mem.FindEntitiesByName(ctx, "", "Hopeful", store.NameMatchExact)
		require.NoError(t, err)
		assert.Empty(t, found)

		fresh, err := mem.FindEntitiesByIdentifier(ctx, models.IdentifierTypeEmail, "fresh@acme.com")
		require.NoError(t, err)
		assert.Empty(t, fresh)
	})

	t.Run("invalid kind", func(t *testing.T) {
		executor := NewExecutor(testLogger(), store.NewMemory(), Config{})
		_, err := executor.CreateEntityFromFact(ctx, models.EntityKind("deal"), models.EntitySeed{})
		assert.Error(t, err)
	})
}
