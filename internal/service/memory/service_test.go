package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/mocks"
	"forgetful-backend/internal/retrieval"
	"forgetful-backend/internal/tokenizer"
	appErrors "forgetful-backend/pkg/errors"
)

func newService(t *testing.T, cfg Config) (*Service, *mocks.MockRepository) {
	t.Helper()
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(64))
	pipeline := retrieval.NewPipeline(repo, zap.NewNop())
	svc := NewService(repo, pipeline, tokenizer.NewHeuristicCounter(), nil, cfg, zap.NewNop())
	return svc, repo
}

func TestCreateMemoryValidation(t *testing.T) {
	svc, _ := newService(t, Config{})
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateMemoryRequest
	}{
		{"missing title", CreateMemoryRequest{Content: "c", Importance: 5}},
		{"missing content", CreateMemoryRequest{Title: "t", Importance: 5}},
		{"importance too low", CreateMemoryRequest{Title: "t", Content: "c", Importance: 0}},
		{"importance too high", CreateMemoryRequest{Title: "t", Content: "c", Importance: 11}},
		{"too many keywords", CreateMemoryRequest{Title: "t", Content: "c", Importance: 5,
			Keywords: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}}},
		{"empty tag", CreateMemoryRequest{Title: "t", Content: "c", Importance: 5, Tags: []string{" "}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateMemory(ctx, "u1", tc.req)
			assert.True(t, appErrors.IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestAutoLinkingOnCreate(t *testing.T) {
	svc, repo := newService(t, Config{AutoLinkCount: 3})
	ctx := context.Background()

	m1, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{
		Title: "async test patterns", Content: "python asyncio testing",
		Keywords: []string{"python", "asyncio", "testing"}, Importance: 5,
	})
	require.NoError(t, err)

	m2, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{
		Title: "integration test setup", Content: "python integration testing",
		Keywords: []string{"python", "integration", "testing"}, Importance: 5,
	})
	require.NoError(t, err)

	// The overlap makes M1 the nearest neighbor, so it must be surfaced and
	// linked.
	require.NotEmpty(t, m2.SimilarMemories)
	found := false
	for _, sm := range m2.SimilarMemories {
		if sm.ID == m1.Memory.ID {
			found = true
		}
	}
	assert.True(t, found, "similar_memories must include the overlapping memory")
	assert.Contains(t, m2.Memory.LinkedMemoryIDs, m1.Memory.ID)

	back, err := repo.GetMemoryByID(ctx, "u1", m1.Memory.ID)
	require.NoError(t, err)
	assert.Contains(t, back.LinkedMemoryIDs, m2.Memory.ID)
}

func TestAutoLinkDisabledWhenZero(t *testing.T) {
	svc, _ := newService(t, Config{AutoLinkCount: 0})
	ctx := context.Background()

	_, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{Title: "a", Content: "b", Importance: 5})
	require.NoError(t, err)
	m2, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{Title: "a", Content: "b", Importance: 5})
	require.NoError(t, err)
	assert.Empty(t, m2.Memory.LinkedMemoryIDs)
	assert.Empty(t, m2.SimilarMemories)
}

func TestAutoLinkFailureDoesNotFailCreate(t *testing.T) {
	svc, repo := newService(t, Config{AutoLinkCount: 3})
	ctx := context.Background()

	_, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{Title: "a", Content: "b", Importance: 5})
	require.NoError(t, err)

	repo.SetError("FindSimilarMemories", appErrors.NewInternal("index offline", nil))
	got, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{Title: "a2", Content: "b2", Importance: 5})
	require.NoError(t, err)
	assert.NotNil(t, got.Memory)
}

func TestUpdateMemoryValidation(t *testing.T) {
	svc, _ := newService(t, Config{})
	ctx := context.Background()
	created, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{Title: "t", Content: "c", Importance: 5})
	require.NoError(t, err)

	empty := " "
	_, err = svc.UpdateMemory(ctx, "u1", created.Memory.ID, UpdateMemoryRequest{Title: &empty})
	assert.True(t, appErrors.IsValidation(err))

	imp := 12
	_, err = svc.UpdateMemory(ctx, "u1", created.Memory.ID, UpdateMemoryRequest{Importance: &imp})
	assert.True(t, appErrors.IsValidation(err))
}

func TestListMemoriesRejectsBadParams(t *testing.T) {
	svc, _ := newService(t, Config{})
	ctx := context.Background()

	_, _, err := svc.ListMemories(ctx, "u1", repository.ListMemoriesParams{SortBy: "bogus"})
	assert.True(t, appErrors.IsValidation(err))

	_, _, err = svc.ListMemories(ctx, "u1", repository.ListMemoriesParams{Limit: 101})
	assert.True(t, appErrors.IsValidation(err))

	_, _, err = svc.ListMemories(ctx, "u1", repository.ListMemoriesParams{Offset: -1})
	assert.True(t, appErrors.IsValidation(err))
}

func TestMarkObsoleteHidesFromQueryButNotFromGet(t *testing.T) {
	svc, _ := newService(t, Config{})
	ctx := context.Background()

	created, err := svc.CreateMemory(ctx, "u1", CreateMemoryRequest{
		Title: "Kubernetes Obsolete", Content: "old cluster notes", Importance: 5,
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkObsolete(ctx, "u1", created.Memory.ID, "test", nil))

	res, err := svc.QueryMemory(ctx, "u1", QueryRequest{Query: "kubernetes", K: 10})
	require.NoError(t, err)
	for _, m := range res.PrimaryMemories {
		assert.NotEqual(t, created.Memory.ID, m.ID)
	}

	got, err := svc.GetMemory(ctx, "u1", created.Memory.ID)
	require.NoError(t, err)
	assert.True(t, got.IsObsolete)
}
