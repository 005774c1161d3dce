package entity

import (
	"context"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/issue"
	"github.com/Ramsey-B/clover/internal/repositories/repotest"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
)

func newTestRepository(t *testing.T) *Repository {
	db := repotest.Connect(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(db, logger, issue.NewRepository(db, logger))
}

func createContact(t *testing.T, repo *Repository, first, last string, emails ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := repo.CreateEntity(ctx, models.EntityKindContact, models.EntitySeed{
		DisplayName: first + " " + last,
		FirstName:   first,
		LastName:    last,
	})
	require.NoError(t, err)
	for i, email := range emails {
		_, err := repo.InsertIdentifier(ctx, id, models.IdentifierTypeEmail, email, i == 0)
		require.NoError(t, err)
	}
	return id
}

func createCompany(t *testing.T, repo *Repository, name, category string, domains ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := repo.CreateEntity(ctx, models.EntityKindCompany, models.EntitySeed{DisplayName: name, Category: category})
	require.NoError(t, err)
	for i, domain := range domains {
		_, err := repo.InsertIdentifier(ctx, id, models.IdentifierTypeDomain, domain, i == 0)
		require.NoError(t, err)
	}
	return id
}

func ids(entities []models.Entity) []string {
	result := make([]string, len(entities))
	for i, entity := range entities {
		result[i] = entity.ID
	}
	return result
}

func TestInsertIdentifier(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	john := createContact(t, repo, "John", "Smith", "john@acme.com")
	jane := createContact(t, repo, "Jane", "Doe")

	entity, err := repo.GetEntity(ctx, john)
	require.NoError(t, err)
	require.Len(t, entity.Identifiers, 1)
	assert.True(t, entity.Identifiers[0].IsPrimary)

	_, err = repo.InsertIdentifier(ctx, jane, models.IdentifierTypeEmail, "john@acme.com", true)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, john, conflict.OwnerID)

	_, err = repo.InsertIdentifier(ctx, john, models.IdentifierTypeEmail, "j.smith@acme.com", true)
	assert.ErrorIs(t, err, models.ErrPrimaryTaken)

	identifier, err := repo.InsertIdentifier(ctx, john, models.IdentifierTypeEmail, "j.smith@acme.com", false)
	require.NoError(t, err)
	assert.False(t, identifier.IsPrimary)

	_, err = repo.InsertIdentifier(ctx, "00000000-0000-0000-0000-000000000000", models.IdentifierTypeEmail, "x@y.com", false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetEntity(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInsertIdentifierConcurrent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := createContact(t, repo, "Ann", "One")
	b := createContact(t, repo, "Bob", "Two")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a, b} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = repo.InsertIdentifier(ctx, id, models.IdentifierTypePhone, "+393331234567", false)
		}(i, id)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *models.ConflictError
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, successes)

	owners, err := repo.FindEntitiesByIdentifier(ctx, models.IdentifierTypePhone, "+393331234567")
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestFindContacts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	john := createContact(t, repo, "John", "Smith", "john@acme.com")
	jonathan := createContact(t, repo, "Jonathan", "Smith", "jon@other.org")
	mary := createContact(t, repo, "Mary", "Johnson")

	found, err := repo.FindEntitiesByName(ctx, "john", "SMITH", store.NameMatchExact)
	require.NoError(t, err)
	assert.Equal(t, []string{john}, ids(found))

	found, err = repo.FindEntitiesByName(ctx, "Jo", "Smith", store.NameMatchPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{john, jonathan}, ids(found))

	found, err = repo.FindEntitiesByName(ctx, "", "smith", store.NameMatchExact)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = repo.FindEntitiesByNameSubstring(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, []string{john, mary}, ids(found))

	found, err = repo.FindEntitiesByNameSubstring(ctx, "smith jonathan")
	require.NoError(t, err)
	assert.Equal(t, []string{jonathan}, ids(found))

	found, err = repo.FindEntitiesByIdentifierDomain(ctx, models.IdentifierTypeEmail, "ACME.com")
	require.NoError(t, err)
	assert.Equal(t, []string{john}, ids(found))

	found, err = repo.FindContactsByFirstNameAndEmailDomain(ctx, "JOHN", "acme.com")
	require.NoError(t, err)
	assert.Equal(t, []string{john}, ids(found))

	found, err = repo.FindContactsByFirstNameAndEmailDomain(ctx, "Jonathan", "acme.com")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindCompanies(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	acme := createCompany(t, repo, "Acme Corp", "", "acme.com")
	robotics := createCompany(t, repo, "Acme Robotics", "", "acmerobotics.io")
	createCompany(t, repo, "Acme Holdings", "Skip")

	found, err := repo.FindCompaniesByNameSubstring(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, found, 3)

	found, err = repo.FindCompaniesByNameExact(ctx, "acme corp")
	require.NoError(t, err)
	assert.Equal(t, []string{acme}, ids(found))

	found, err = repo.FindCompaniesByDomainSubstring(ctx, "acmero", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{robotics}, ids(found))

	contact := createContact(t, repo, "John", "Smith", "john@acme.com")
	require.NoError(t, repo.LinkContactCompany(ctx, contact, acme))
	require.NoError(t, repo.LinkContactCompany(ctx, contact, acme))

	found, err = repo.FindCompaniesOfContact(ctx, contact)
	require.NoError(t, err)
	assert.Equal(t, []string{acme}, ids(found))
}

func TestDeleteDraft(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	draftID, err := repo.CreateDraft(ctx, models.EntityKindContact, map[string]any{"email": "new@acme.com"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteDraft(ctx, draftID))
	assert.ErrorIs(t, repo.DeleteDraft(ctx, draftID), models.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteDraft(ctx, "draft-1"), models.ErrNotFound)
}
