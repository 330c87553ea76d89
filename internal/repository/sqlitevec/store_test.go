package sqlitevec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forgetful.db")
	s, err := Open(path, embedding.NewHashAdapter(64), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, id := range []string{"u1", "u2"} {
		_, err := s.CreateUser(context.Background(), &domain.User{
			ID: id, ExternalID: "ext-" + id,
		})
		require.NoError(t, err)
	}
	return s
}

func createMemory(t *testing.T, s *Store, userID, title string, importance int) *domain.Memory {
	t.Helper()
	m, err := s.CreateMemory(context.Background(), userID, repository.CreateMemoryInput{
		Title: title, Content: title + " content", Importance: importance,
	})
	require.NoError(t, err)
	return m
}

func TestCreateAndGetMemoryRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "u1", &domain.Project{Name: "infra"})
	require.NoError(t, err)

	m, err := s.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title:      "etcd compaction",
		Content:    "compact every 5 minutes under sustained writes",
		Context:    "kubernetes control plane",
		Keywords:   []string{"etcd", "compaction"},
		Tags:       []string{"k8s"},
		Importance: 8,
		ProjectIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	assert.Len(t, m.Embedding, 64)

	got, err := s.GetMemoryByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "etcd compaction", got.Title)
	assert.Equal(t, []string{"etcd", "compaction"}, got.Keywords)
	assert.Equal(t, []int64{p.ID}, got.ProjectIDs)
	assert.Len(t, got.Embedding, 64)

	_, err = s.GetMemoryByID(ctx, "u2", m.ID)
	assert.True(t, appErrors.IsNotFound(err), "cross-user read must 404")
}

func TestCreateMemoryRejectsForeignProject(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "u2", &domain.Project{Name: "theirs"})
	require.NoError(t, err)

	_, err = s.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "t", Content: "c", Importance: 5, ProjectIDs: []int64{p.ID},
	})
	assert.True(t, appErrors.IsValidation(err))
}

func TestSemanticSearchRanksAndIsolates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	createMemory(t, s, "u1", "postgres vacuum tuning", 5)
	createMemory(t, s, "u1", "redis cluster failover", 5)
	createMemory(t, s, "u2", "postgres vacuum tuning", 9)

	got, err := s.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{
		Query: "postgres vacuum tuning content", K: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "postgres vacuum tuning", got[0].Title)
	for _, m := range got {
		assert.Equal(t, "u1", m.UserID)
	}
}

func TestSemanticSearchTieBreak(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Identical text means identical vectors; ordering must fall back to
	// importance desc.
	low := createMemory(t, s, "u1", "identical text", 3)
	high := createMemory(t, s, "u1", "identical text", 9)

	got, err := s.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{
		Query: "identical text content", K: 2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID)
	assert.Equal(t, low.ID, got[1].ID)
}

func TestMarkObsoleteExcludedFromSearch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m := createMemory(t, s, "u1", "deprecated approach", 5)
	require.NoError(t, s.MarkObsolete(ctx, "u1", m.ID, "superseded", nil))
	// Idempotent.
	require.NoError(t, s.MarkObsolete(ctx, "u1", m.ID, "superseded", nil))

	got, err := s.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{
		Query: "deprecated approach", K: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Direct fetch still works and shows the obsolete flags.
	fetched, err := s.GetMemoryByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.True(t, fetched.IsObsolete)
	assert.Equal(t, "superseded", fetched.ObsoleteReason)
	assert.NotNil(t, fetched.ObsoletedAt)
}

func TestLinksCanonicalAndDeduplicated(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := createMemory(t, s, "u1", "alpha", 5)
	b := createMemory(t, s, "u1", "beta", 7)

	link, err := s.CreateLink(ctx, "u1", b.ID, a.ID)
	require.NoError(t, err)
	assert.Less(t, link.SourceID, link.TargetID)

	_, err = s.CreateLink(ctx, "u1", a.ID, b.ID)
	assert.True(t, appErrors.IsAlreadyLinked(err))

	_, err = s.CreateLink(ctx, "u1", a.ID, a.ID)
	assert.True(t, appErrors.IsValidation(err))

	linked, err := s.GetLinkedMemories(ctx, "u1", a.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, b.ID, linked[0].ID)

	require.NoError(t, s.DeleteLink(ctx, "u1", b.ID, a.ID))
	err = s.DeleteLink(ctx, "u1", b.ID, a.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestCreateLinksBatchSkipsBadTargets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	src := createMemory(t, s, "u1", "source", 5)
	ok1 := createMemory(t, s, "u1", "target one", 5)
	ok2 := createMemory(t, s, "u1", "target two", 5)
	foreign := createMemory(t, s, "u2", "not yours", 5)

	_, err := s.CreateLink(ctx, "u1", src.ID, ok1.ID)
	require.NoError(t, err)

	linked, err := s.CreateLinksBatch(ctx, "u1", src.ID,
		[]int64{src.ID, ok1.ID, ok2.ID, foreign.ID, 99999})
	require.NoError(t, err)
	assert.Equal(t, []int64{ok2.ID}, linked)
}

func TestListMemoriesPagingAndTags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		in := repository.CreateMemoryInput{
			Title: "note", Content: "body", Importance: i + 1,
		}
		if i%2 == 0 {
			in.Tags = []string{"even"}
		}
		_, err := s.CreateMemory(ctx, "u1", in)
		require.NoError(t, err)
	}

	page, total, err := s.ListMemories(ctx, "u1", repository.ListMemoriesParams{
		Limit: 2, Offset: 0,
		SortBy: repository.SortByImportance, SortOrder: repository.SortOrderDesc,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].Importance)

	tagged, total, err := s.ListMemories(ctx, "u1", repository.ListMemoriesParams{
		Tags: []string{"even"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, tagged, 3)
}

func TestUpdateMemoryReembedsOnSearchFieldChange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m := createMemory(t, s, "u1", "original topic", 5)
	newTitle := "completely different subject"
	updated, err := s.UpdateMemory(ctx, "u1", m.ID, repository.MemoryPatch{Title: &newTitle}, true)
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.NotEqual(t, m.Embedding, updated.Embedding)

	got, err := s.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{
		Query: "completely different subject", K: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
}

func TestReembedCycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createMemory(t, s, "u1", "memory", 5)
	}
	total, err := s.CountAllMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, s.ResetEmbeddingStorage(ctx, 32))
	n, err := s.CountEmbeddingsWithDimension(ctx, 64)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := s.GetMemoriesForReembedding(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	adapter := embedding.NewHashAdapter(32)
	updates := make([]repository.EmbeddingUpdate, len(rows))
	for i, m := range rows {
		vec, err := adapter.GenerateEmbedding(ctx, m.EmbeddingText())
		require.NoError(t, err)
		updates[i] = repository.EmbeddingUpdate{MemoryID: m.ID, Embedding: vec}
	}
	require.NoError(t, s.BulkUpdateEmbeddings(ctx, updates))

	n, err = s.CountEmbeddingsWithDimension(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGraphPrimitives(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "u1", &domain.Project{Name: "proj"})
	require.NoError(t, err)
	m, err := s.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "graph memory", Content: "c", Importance: 5, ProjectIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	other := createMemory(t, s, "u1", "linked neighbor", 5)
	_, err = s.CreateLink(ctx, "u1", m.ID, other.ID)
	require.NoError(t, err)

	exists, err := s.NodeExists(ctx, "u1", domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
	require.NoError(t, err)
	assert.True(t, exists)

	allowed := map[domain.NodeType]bool{
		domain.NodeTypeMemory: true, domain.NodeTypeProject: true,
	}
	neighbors, err := s.NeighborRefs(ctx, "u1",
		domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID}, allowed)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	refs := append(neighbors, domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
	edges, err := s.EdgesAmong(ctx, "u1", refs, allowed)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	types := map[domain.EdgeType]int{}
	for _, e := range edges {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[domain.EdgeTypeMemoryLink])
	assert.Equal(t, 1, types[domain.EdgeTypeMemoryProject])

	// Obsolete memories disappear from traversal.
	require.NoError(t, s.MarkObsolete(ctx, "u1", other.ID, "gone", nil))
	neighbors, err = s.NeighborRefs(ctx, "u1",
		domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID}, allowed)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, domain.NodeTypeProject, neighbors[0].Type)
}

func TestLexicalSearch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	hit := createMemory(t, s, "u1", "circuit breaker pattern", 5)
	createMemory(t, s, "u1", "unrelated note", 5)

	got, err := s.LexicalSearch(ctx, "u1", "circuit breaker", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, hit.ID, got[0].ID)
}
