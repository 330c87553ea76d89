package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/mocks"
	"forgetful-backend/internal/retrieval"
	entitysvc "forgetful-backend/internal/service/entity"
	graphsvc "forgetful-backend/internal/service/graph"
	memorysvc "forgetful-backend/internal/service/memory"
	"forgetful-backend/internal/tokenizer"
)

func newDispatcher(t *testing.T, instanceScope string) (*Dispatcher, *mocks.MockRepository) {
	t.Helper()
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(64))
	pipeline := retrieval.NewPipeline(repo, zap.NewNop())
	memSvc := memorysvc.NewService(repo, pipeline, tokenizer.NewHeuristicCounter(), nil,
		memorysvc.Config{AutoLinkCount: 3}, zap.NewNop())

	reg := NewRegistry()
	RegisterBuiltins(reg, Services{
		Memory: memSvc,
		Graph:  graphsvc.NewService(repo, zap.NewNop()),
		Entity: entitysvc.NewService(repo, nil, zap.NewNop()),
		Users:  repo,
	})
	return NewDispatcher(reg, instanceScope, zap.NewNop()), repo
}

func seedMemory(t *testing.T, repo *mocks.MockRepository, userID, title string) *domain.Memory {
	t.Helper()
	m, err := repo.CreateMemory(context.Background(), userID, repository.CreateMemoryInput{
		Title:      title,
		Content:    title + " content",
		Importance: 5,
	})
	require.NoError(t, err)
	return m
}

func TestDiscoverRespectsScope(t *testing.T) {
	d, _ := newDispatcher(t, "*")
	ctx := context.Background()

	all, terr := d.Discover(ctx, "", "")
	require.Nil(t, terr)
	assert.Equal(t, d.reg.Len(), all.Total)

	readOnly, terr := d.Discover(ctx, "read", "")
	require.Nil(t, terr)
	assert.Less(t, readOnly.Total, all.Total)
	for _, tools := range readOnly.Categories {
		for _, tl := range tools {
			assert.False(t, tl.Mutates, "tool %s should not be mutating", tl.Name)
		}
	}

	memOnly, terr := d.Discover(ctx, "", string(CategoryMemories))
	require.Nil(t, terr)
	require.Len(t, memOnly.Categories, 1)
	assert.NotEmpty(t, memOnly.Categories[CategoryMemories])

	_, terr = d.Discover(ctx, "", "gadgets")
	require.NotNil(t, terr)
	assert.Equal(t, CodeValidation, terr.Code)
}

func TestHowToUseHidesUnpermittedTools(t *testing.T) {
	d, _ := newDispatcher(t, "*")
	ctx := context.Background()

	tl, terr := d.HowToUse(ctx, "", "create_memory")
	require.Nil(t, terr)
	assert.Equal(t, "create_memory", tl.Name)
	assert.NotNil(t, tl.Schema)
	assert.Equal(t, "write:memories", tl.RequiredScope())

	// Unknown and unpermitted look identical to the caller.
	_, terr = d.HowToUse(ctx, "", "no_such_tool")
	require.NotNil(t, terr)
	assert.Equal(t, CodeNotFound, terr.Code)

	_, terr = d.HowToUse(ctx, "read:projects", "create_memory")
	require.NotNil(t, terr)
	assert.Equal(t, CodeNotFound, terr.Code)
}

func TestExecuteScopeEnforcement(t *testing.T) {
	d, repo := newDispatcher(t, "*")
	ctx := context.Background()
	seedMemory(t, repo, "u1", "deploy checklist")

	// A read-only session cannot reach a mutating tool, and learns which
	// scope it lacks.
	_, terr := d.Execute(ctx, "u1", "read:memories", "create_memory", map[string]interface{}{
		"title": "t", "content": "c", "importance": float64(5),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodePermissionDenied, terr.Code)
	assert.Equal(t, "write:memories", terr.RequiredScope)

	// The same session can query.
	out, terr := d.Execute(ctx, "u1", "read:memories", "query_memory", map[string]interface{}{
		"query": "deploy checklist",
	})
	require.Nil(t, terr)
	res, ok := out.(*memorysvc.QueryResult)
	require.True(t, ok)
	assert.NotEmpty(t, res.PrimaryMemories)
}

func TestExecuteInstanceBoundWins(t *testing.T) {
	d, _ := newDispatcher(t, "read:memories")
	ctx := context.Background()

	// A wide session scope cannot escape a narrow instance scope.
	_, terr := d.Execute(ctx, "u1", "*", "create_memory", map[string]interface{}{
		"title": "t", "content": "c", "importance": float64(5),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodePermissionDenied, terr.Code)
}

func TestExecuteCreateAndFetchRoundTrip(t *testing.T) {
	d, _ := newDispatcher(t, "*")
	ctx := context.Background()

	out, terr := d.Execute(ctx, "u1", "", "create_memory", map[string]interface{}{
		"title":      "pg tuning",
		"content":    "set shared_buffers to 25% of RAM",
		"importance": float64(7),
		"tags":       "postgres,ops",
	})
	require.Nil(t, terr)
	created, ok := out.(*memorysvc.CreateMemoryResult)
	require.True(t, ok)
	assert.Equal(t, []string{"postgres", "ops"}, created.Memory.Tags)

	out, terr = d.Execute(ctx, "u1", "", "get_memory", map[string]interface{}{
		"memory_id": float64(created.Memory.ID),
	})
	require.Nil(t, terr)
	fetched, ok := out.(*domain.Memory)
	require.True(t, ok)
	assert.Equal(t, "pg tuning", fetched.Title)
}

func TestExecuteErrorTranslation(t *testing.T) {
	d, repo := newDispatcher(t, "*")
	ctx := context.Background()

	// Unknown tool.
	_, terr := d.Execute(ctx, "u1", "", "no_such_tool", nil)
	require.NotNil(t, terr)
	assert.Equal(t, CodeNotFound, terr.Code)

	// Handler validation error.
	_, terr = d.Execute(ctx, "u1", "", "create_memory", map[string]interface{}{
		"title": "t", "content": "c", "importance": float64(0),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodeValidation, terr.Code)

	// Missing entity.
	_, terr = d.Execute(ctx, "u1", "", "get_memory", map[string]interface{}{
		"memory_id": float64(99999),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodeNotFound, terr.Code)

	// Repo failure surfaces as a generic internal error, cause withheld.
	repo.SetError("GetMemoryByID", assert.AnError)
	_, terr = d.Execute(ctx, "u1", "", "get_memory", map[string]interface{}{
		"memory_id": float64(1),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodeInternal, terr.Code)
	assert.Equal(t, "internal error", terr.Message)

	// Bad session scope string is the caller's error.
	_, terr = d.Execute(ctx, "u1", "admin", "get_memory", nil)
	require.NotNil(t, terr)
	assert.Equal(t, CodeValidation, terr.Code)
}

func TestExecuteLinkingTools(t *testing.T) {
	d, repo := newDispatcher(t, "*")
	ctx := context.Background()
	a := seedMemory(t, repo, "u1", "alpha topic")
	b := seedMemory(t, repo, "u1", "beta topic")

	_, terr := d.Execute(ctx, "u1", "", "link_memories", map[string]interface{}{
		"source_id": float64(b.ID), "target_id": float64(a.ID),
	})
	require.Nil(t, terr)

	out, terr := d.Execute(ctx, "u1", "", "get_linked_memories", map[string]interface{}{
		"memory_id": float64(a.ID),
	})
	require.Nil(t, terr)
	linked, ok := out.([]*domain.Memory)
	require.True(t, ok)
	require.Len(t, linked, 1)
	assert.Equal(t, b.ID, linked[0].ID)

	// Duplicate link reports as a validation-class error.
	_, terr = d.Execute(ctx, "u1", "", "link_memories", map[string]interface{}{
		"source_id": float64(a.ID), "target_id": float64(b.ID),
	})
	require.NotNil(t, terr)
	assert.Equal(t, CodeValidation, terr.Code)

	_, terr = d.Execute(ctx, "u1", "", "unlink_memories", map[string]interface{}{
		"source_id": float64(a.ID), "target_id": float64(b.ID),
	})
	require.Nil(t, terr)
}

func TestExecuteProjectTools(t *testing.T) {
	d, _ := newDispatcher(t, "*")
	ctx := context.Background()

	out, terr := d.Execute(ctx, "u1", "", "create_project", map[string]interface{}{
		"name": "migration", "description": "db migration work",
	})
	require.Nil(t, terr)
	p, ok := out.(*domain.Project)
	require.True(t, ok)

	out, terr = d.Execute(ctx, "u1", "", "list_projects", nil)
	require.Nil(t, terr)
	projects, ok := out.([]*domain.Project)
	require.True(t, ok)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)

	_, terr = d.Execute(ctx, "u1", "", "delete_project", map[string]interface{}{
		"project_id": float64(p.ID),
	})
	require.Nil(t, terr)
}
