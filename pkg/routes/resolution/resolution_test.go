package resolution

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/services"
	"github.com/Ramsey-B/clover/pkg/session"
	"github.com/Ramsey-B/clover/pkg/store"
)

type testAPI struct {
	t   *testing.T
	e   *echo.Echo
	mem *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	mem := store.NewMemory()
	matcher := domainmatch.NewMatcher(log, mem, domainmatch.DefaultConfig())
	executor := linking.NewExecutor(log, mem, linking.Config{})
	resolver := session.NewResolver(log, mem, matcher, executor, session.DefaultConfig(),
		session.WithSnapshotStore(session.NewMemorySnapshotStore()))

	containerID := "resolution-test-" + uuid.NewString()
	_, err := services.NewContainer(containerID, services.Services{
		Logger:   log,
		Entities: mem,
		Resolver: resolver,
		Executor: executor,
		Matcher:  matcher,
	})
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(log)
	e.Use(middleware.Services(containerID))
	Register(e.Group("/api/v1/resolutions"))

	return &testAPI{t: t, e: e, mem: mem}
}

func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (a *testAPI) resolve(fact models.RawFact) session.Snapshot {
	a.t.Helper()
	var snapshot session.Snapshot
	code := a.do(http.MethodPost, "/api/v1/resolutions", fact, &snapshot)
	require.Equal(a.t, http.StatusCreated, code)
	return snapshot
}

func (a *testAPI) contact(first, last, email string) models.Entity {
	return a.mem.AddEntity(models.Entity{
		Kind:        models.EntityKindContact,
		DisplayName: first + " " + last,
		FirstName:   first,
		LastName:    last,
		Identifiers: []models.Identifier{{Type: models.IdentifierTypeEmail, Value: email, IsPrimary: true}},
	})
}

func TestResolveAndGet(t *testing.T) {
	api := newTestAPI(t)
	ada := api.contact("Ada", "Lovelace", "ada@analytical.io")

	snapshot := api.resolve(models.RawFact{Kind: models.EntityKindContact, Email: "Ada@Analytical.io"})
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, session.StateReady, snapshot.State)
	require.NotEmpty(t, snapshot.Suggestions)
	assert.Equal(t, ada.ID, snapshot.Suggestions[0].Entity.ID)
	assert.Equal(t, models.MatchTypeExactEmail, snapshot.Suggestions[0].MatchType)

	var restored session.Snapshot
	code := api.do(http.MethodGet, "/api/v1/resolutions/"+snapshot.ID, nil, &restored)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, snapshot.ID, restored.ID)
	assert.Len(t, restored.Displayed, len(snapshot.Displayed))
}

func TestResolveErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
	}{
		{
			name:     "missing kind",
			method:   http.MethodPost,
			path:     "/api/v1/resolutions",
			body:     map[string]any{"email": "ada@analytical.io"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported kind",
			method:   http.MethodPost,
			path:     "/api/v1/resolutions",
			body:     map[string]any{"kind": "deal"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     "/api/v1/resolutions/missing",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "search unknown session",
			method:   http.MethodPost,
			path:     "/api/v1/resolutions/missing/search",
			body:     SearchRequest{Query: "ada"},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp middleware.ErrorResponse
			code := api.do(tt.method, tt.path, tt.body, &resp)
			assert.Equal(t, tt.wantCode, code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestSearchAddsManualResults(t *testing.T) {
	api := newTestAPI(t)
	ada := api.contact("Ada", "Lovelace", "ada@analytical.io")
	charles := api.contact("Charles", "Babbage", "charles@engine.io")

	snapshot := api.resolve(models.RawFact{Kind: models.EntityKindContact, Email: "ada@analytical.io"})

	var resp SearchResponse
	code := api.do(http.MethodPost, "/api/v1/resolutions/"+snapshot.ID+"/search", SearchRequest{Query: "babb"}, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Failed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, charles.ID, resp.Results[0].Entity.ID)
	assert.Equal(t, models.MatchTypeManualSearch, resp.Results[0].MatchType)

	require.Len(t, resp.Displayed, 2)
	assert.Equal(t, ada.ID, resp.Displayed[0].Entity.ID)
	assert.Equal(t, charles.ID, resp.Displayed[1].Entity.ID)

	var restored session.Snapshot
	api.do(http.MethodGet, "/api/v1/resolutions/"+snapshot.ID, nil, &restored)
	assert.Equal(t, session.SearchSearched, restored.SearchState)
	assert.Len(t, restored.Displayed, 2)

	code = api.do(http.MethodPost, "/api/v1/resolutions/"+snapshot.ID+"/search", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLink(t *testing.T) {
	api := newTestAPI(t)
	ada := api.contact("Ada", "Lovelace", "ada@analytical.io")
	charles := api.contact("Charles", "Babbage", "charles@engine.io")
	issue, err := api.mem.CreateIssue(context.Background(), &models.Issue{IssueType: "unknown_contact"})
	require.NoError(t, err)

	snapshot := api.resolve(models.RawFact{
		Kind:        models.EntityKindContact,
		Email:       "ada.l@newmail.io",
		DisplayName: "Ada Lovelace",
		IssueIDs:    []string{issue.ID},
	})
	require.NotEmpty(t, snapshot.Suggestions)
	assert.Equal(t, ada.ID, snapshot.Suggestions[0].Entity.ID)
	path := "/api/v1/resolutions/" + snapshot.ID + "/link"

	t.Run("not displayed", func(t *testing.T) {
		code := api.do(http.MethodPost, path, LinkRequest{EntityID: charles.ID}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("primary fact", func(t *testing.T) {
		var result linking.LinkResult
		code := api.do(http.MethodPost, path, LinkRequest{EntityID: ada.ID}, &result)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, result.Created)
		assert.Equal(t, ada.ID, result.EntityID)
		assert.Equal(t, "ada.l@newmail.io", result.Identifier.Value)
		assert.False(t, result.Identifier.IsPrimary)

		resolved, ok := api.mem.Issue(issue.ID)
		require.True(t, ok)
		assert.Equal(t, models.IssueStatusResolved, resolved.Status)
	})

	t.Run("again is a no-op", func(t *testing.T) {
		var result linking.LinkResult
		code := api.do(http.MethodPost, path, LinkRequest{EntityID: ada.ID}, &result)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, result.AlreadyLinked)
		assert.False(t, result.Created)
	})

	t.Run("owned elsewhere", func(t *testing.T) {
		var resp middleware.ErrorResponse
		body := LinkRequest{EntityID: ada.ID, Type: models.IdentifierTypeEmail, Value: "charles@engine.io"}
		code := api.do(http.MethodPost, path, body, &resp)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, charles.ID, resp.Meta["owner_id"])
	})

	t.Run("type without value", func(t *testing.T) {
		code := api.do(http.MethodPost, path, LinkRequest{EntityID: ada.ID, Type: models.IdentifierTypePhone}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestCreate(t *testing.T) {
	api := newTestAPI(t)

	snapshot := api.resolve(models.RawFact{
		Kind:        models.EntityKindContact,
		Email:       "grace@cobol.dev",
		DisplayName: "Grace Hopper",
	})
	assert.Empty(t, snapshot.Suggestions)

	var created CreateResponse
	code := api.do(http.MethodPost, "/api/v1/resolutions/"+snapshot.ID+"/create",
		CreateRequest{FirstName: "Grace", LastName: "Hopper", DisplayName: "Grace Hopper"}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, created.EntityID)

	owners, err := api.mem.FindEntitiesByIdentifier(context.Background(), models.IdentifierTypeEmail, "grace@cobol.dev")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, created.EntityID, owners[0].ID)
	assert.Equal(t, models.EntityKindContact, owners[0].Kind)

	var resp middleware.ErrorResponse
	code = api.do(http.MethodPost, "/api/v1/resolutions/"+snapshot.ID+"/create", CreateRequest{FirstName: "Grace"}, &resp)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, created.EntityID, resp.Meta["owner_id"])
}
