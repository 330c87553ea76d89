package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/config"
	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/repository/mocks"
	"forgetful-backend/internal/retrieval"
	entitysvc "forgetful-backend/internal/service/entity"
	graphsvc "forgetful-backend/internal/service/graph"
	memorysvc "forgetful-backend/internal/service/memory"
	"forgetful-backend/internal/tokenizer"
	"forgetful-backend/internal/tools"
)

type headerResolver struct{}

// ResolveUser reads the bearer token as a literal user ID.
func (headerResolver) ResolveUser(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if len(h) < 8 {
		return "", fmt.Errorf("missing token")
	}
	return h[7:], nil
}

func newTestServer(t *testing.T) (http.Handler, *mocks.MockRepository) {
	t.Helper()
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(64))
	pipeline := retrieval.NewPipeline(repo, zap.NewNop())
	bus := events.NewBus(100, zap.NewNop())
	// Auto-linking stays off so link assertions see exactly the links the
	// requests under test created.
	memSvc := memorysvc.NewService(repo, pipeline, tokenizer.NewHeuristicCounter(), bus,
		memorysvc.Config{AutoLinkCount: 0}, zap.NewNop())

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, tools.Services{
		Memory: memSvc,
		Graph:  graphsvc.NewService(repo, zap.NewNop()),
		Entity: entitysvc.NewService(repo, bus, zap.NewNop()),
		Users:  repo,
	})

	cfg := config.Default()
	cfg.HTTP.WriteTimeout = 5 * time.Second

	router := NewRouter(Deps{
		Config:     cfg,
		Logger:     zap.NewNop(),
		Resolver:   headerResolver{},
		Store:      repo,
		Memories:   memSvc,
		Graph:      graphsvc.NewService(repo, zap.NewNop()),
		Entities:   entitysvc.NewService(repo, bus, zap.NewNop()),
		Dispatcher: tools.NewDispatcher(reg, "*", zap.NewNop()),
		Bus:        bus,
	})
	return router, repo
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/memories", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemoryCRUDOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
		"title":      "Postgres tuning",
		"content":    "Increase shared_buffers on the primary",
		"tags":       []string{"postgres", "ops"},
		"importance": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	decode(t, rec, &created)
	require.NotZero(t, created.ID)
	assert.Equal(t, "Postgres tuning", created.Title)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/memories/%d", created.ID), "u1",
		map[string]interface{}{"importance": 9})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Memory
	decode(t, rec, &updated)
	assert.Equal(t, 9, updated.Importance)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/memories/%d", created.ID), "u1",
		map[string]interface{}{"reason": "superseded"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Obsolete memories stay readable by ID.
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched domain.Memory
	decode(t, rec, &fetched)
	assert.True(t, fetched.IsObsolete)
}

func TestMemoryUserIsolation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
		"title": "private", "content": "only for u1", "importance": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &created)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListValidation(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"limit zero", "/api/v1/memories?limit=0"},
		{"limit over max", "/api/v1/memories?limit=101"},
		{"limit not a number", "/api/v1/memories?limit=abc"},
		{"negative offset", "/api/v1/memories?offset=-1"},
		{"unknown sort_by", "/api/v1/memories?sort_by=color"},
		{"unknown sort_order", "/api/v1/memories?sort_order=sideways"},
		{"bad importance_min", "/api/v1/memories?importance_min=eleven"},
		{"bad include_obsolete", "/api/v1/memories?include_obsolete=perhaps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodGet, tt.path, "u1", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListPagingAndTotal(t *testing.T) {
	h, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
			"title": fmt.Sprintf("note %d", i), "content": "body", "importance": 5,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/memories?limit=2&offset=0", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memories []domain.Memory `json:"memories"`
		Total    int             `json:"total"`
		Limit    int             `json:"limit"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Memories, 2)
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 2, body.Limit)
}

func TestSearchEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
		"title": "Redis eviction", "content": "allkeys-lru policy for the cache tier", "importance": 6,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/memories/search", "u1", map[string]interface{}{
		"query": "Redis eviction policy", "k": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		PrimaryMemories []domain.Memory `json:"primary_memories"`
		TotalCount      int             `json:"total_count"`
	}
	decode(t, rec, &result)
	require.NotEmpty(t, result.PrimaryMemories)
	assert.Equal(t, "Redis eviction", result.PrimaryMemories[0].Title)

	// Blank query is a validation error.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/memories/search", "u1", map[string]interface{}{
		"query": "  ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	var ids []int64
	for _, title := range []string{"first", "second", "third"} {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
			"title": title, "content": title + " body", "importance": 5,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var created struct {
			ID int64 `json:"id"`
		}
		decode(t, rec, &created)
		ids = append(ids, created.ID)
	}

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/memories/%d/links", ids[0]), "u1",
		map[string]interface{}{"related_ids": []int64{ids[1], ids[2], ids[0]}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var linkResp struct {
		LinkedIDs []int64 `json:"linked_ids"`
	}
	decode(t, rec, &linkResp)
	// The self-link is skipped silently.
	assert.ElementsMatch(t, []int64{ids[1], ids[2]}, linkResp.LinkedIDs)

	// Re-linking the same targets skips the existing pairs silently.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/memories/%d/links", ids[0]), "u1",
		map[string]interface{}{"related_ids": []int64{ids[1], ids[2]}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	linkResp.LinkedIDs = nil
	decode(t, rec, &linkResp)
	assert.Empty(t, linkResp.LinkedIDs)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d/links", ids[0]), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var linksBody struct {
		MemoryID       int64           `json:"memory_id"`
		LinkedMemories []domain.Memory `json:"linked_memories"`
	}
	decode(t, rec, &linksBody)
	assert.Equal(t, ids[0], linksBody.MemoryID)
	assert.Len(t, linksBody.LinkedMemories, 2)

	rec = doJSON(t, h, http.MethodDelete,
		fmt.Sprintf("/api/v1/memories/%d/links/%d", ids[0], ids[1]), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleting the same link again is 404.
	rec = doJSON(t, h, http.MethodDelete,
		fmt.Sprintf("/api/v1/memories/%d/links/%d", ids[0], ids[1]), "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
		"title": "center", "content": "center body", "importance": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &created)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/graph", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		Nodes []json.RawMessage `json:"nodes"`
		Meta  struct {
			TotalNodes int `json:"total_nodes"`
		} `json:"meta"`
	}
	decode(t, rec, &overview)
	assert.Equal(t, 1, overview.Meta.TotalNodes)

	rec = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/v1/graph/subgraph?node_id=memory_%d&depth=1", created.ID), "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Malformed center and unknown node type are validation errors.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/graph/subgraph?node_id=banana_7", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/graph?node_types=memory,alien", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown center node of a valid type is 404.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/graph/subgraph?node_id=memory_999999&depth=1", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects", "u1", map[string]interface{}{
		"name": "migration", "description": "postgres move",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var p domain.Project
	decode(t, rec, &p)
	require.NotZero(t, p.ID)

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d", p.ID), "u1",
		map[string]interface{}{"description": "postgres 16 move"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Project
	decode(t, rec, &updated)
	assert.Equal(t, "postgres 16 move", updated.Description)
	assert.Equal(t, "migration", updated.Name)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/projects", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", p.ID), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", p.ID), "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tools/discover", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var disc struct {
		Total int `json:"total"`
	}
	decode(t, rec, &disc)
	assert.Greater(t, disc.Total, 0)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/tools/how_to_use", "u1",
		map[string]string{"tool_name": "create_memory"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/tools/execute", "u1", map[string]interface{}{
		"tool_name": "create_memory",
		"arguments": map[string]interface{}{
			"title": "via tool", "content": "tool body", "importance": 5,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Scope narrowing through the session header.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/execute",
		bytes.NewBufferString(`{"tool_name":"create_memory","arguments":{"title":"t","content":"c","importance":5}}`))
	req.Header.Set("Authorization", "Bearer u1")
	req.Header.Set("X-Session-Scope", "read:memories")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusForbidden, rec2.Code)

	var terr struct {
		Code          string `json:"code"`
		RequiredScope string `json:"required_scope"`
	}
	decode2 := json.Unmarshal(rec2.Body.Bytes(), &terr)
	require.NoError(t, decode2)
	assert.Equal(t, "PERMISSION_DENIED", terr.Code)
	assert.Equal(t, "write:memories", terr.RequiredScope)

	// Unknown tool is NOT_FOUND.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/tools/execute", "u1", map[string]interface{}{
		"tool_name": "no_such_tool",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivityFeed(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/memories", "u1", map[string]interface{}{
		"title": "tracked", "content": "body", "importance": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/activity", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Events []events.Event `json:"events"`
	}
	decode(t, rec, &feed)
	require.NotEmpty(t, feed.Events)
	assert.Equal(t, events.ActionCreate, feed.Events[0].Action)

	// Another user's feed is empty.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/activity", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var other struct {
		Events []events.Event `json:"events"`
	}
	decode(t, rec, &other)
	assert.Empty(t, other.Events)
}
