package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

func newRepo(t *testing.T) *MockRepository {
	t.Helper()
	return NewMockRepository(embedding.NewHashAdapter(64))
}

func mustCreate(t *testing.T, repo *MockRepository, userID, title, content string) *domain.Memory {
	t.Helper()
	m, err := repo.CreateMemory(context.Background(), userID, repository.CreateMemoryInput{
		Title:      title,
		Content:    content,
		Importance: 5,
	})
	require.NoError(t, err)
	return m
}

func TestCreateMemoryGeneratesEmbedding(t *testing.T) {
	repo := newRepo(t)
	m := mustCreate(t, repo, "u1", "title", "content about caching")

	stored, err := repo.GetMemoryByID(context.Background(), "u1", m.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Embedding, 64)
}

func TestGetMemoryIsolatedByUser(t *testing.T) {
	repo := newRepo(t)
	m := mustCreate(t, repo, "u1", "t", "c")

	_, err := repo.GetMemoryByID(context.Background(), "u2", m.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestLinksStoredCanonically(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	a := mustCreate(t, repo, "u1", "a", "a")
	b := mustCreate(t, repo, "u1", "b", "b")

	// Create with the higher ID as source; storage must canonicalize.
	l, err := repo.CreateLink(ctx, "u1", b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, l.SourceID)
	assert.Equal(t, b.ID, l.TargetID)

	// The reverse direction is the same pair.
	_, err = repo.CreateLink(ctx, "u1", a.ID, b.ID)
	assert.True(t, appErrors.IsAlreadyLinked(err))

	for _, row := range repo.LinkRows() {
		assert.Less(t, row.SourceID, row.TargetID)
	}
}

func TestSelfLinkRejected(t *testing.T) {
	repo := newRepo(t)
	a := mustCreate(t, repo, "u1", "a", "a")
	_, err := repo.CreateLink(context.Background(), "u1", a.ID, a.ID)
	assert.True(t, appErrors.IsValidation(err))
}

func TestCreateLinksBatchSkipsBadTargets(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	a := mustCreate(t, repo, "u1", "a", "a")
	b := mustCreate(t, repo, "u1", "b", "b")
	c := mustCreate(t, repo, "u1", "c", "c")

	_, err := repo.CreateLink(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	linked, err := repo.CreateLinksBatch(ctx, "u1", a.ID, []int64{a.ID, b.ID, c.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, linked)
}

func TestDeleteLinkEitherDirection(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	a := mustCreate(t, repo, "u1", "a", "a")
	b := mustCreate(t, repo, "u1", "b", "b")
	_, err := repo.CreateLink(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteLink(ctx, "u1", b.ID, a.ID))
	ids, err := repo.GetLinkedMemoryIDs(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMarkObsoleteIdempotentAndExcludedFromSearch(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	m := mustCreate(t, repo, "u1", "obsolete me", "old decision")

	require.NoError(t, repo.MarkObsolete(ctx, "u1", m.ID, "superseded", nil))
	require.NoError(t, repo.MarkObsolete(ctx, "u1", m.ID, "again", nil))

	got, err := repo.GetMemoryByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsObsolete)
	require.NotNil(t, got.ObsoletedAt)

	results, err := repo.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{Query: "old decision", K: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMarkObsoleteSupersededByValidation(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	m := mustCreate(t, repo, "u1", "a", "a")

	self := m.ID
	err := repo.MarkObsolete(ctx, "u1", m.ID, "r", &self)
	assert.True(t, appErrors.IsValidation(err))

	missing := int64(9999)
	err = repo.MarkObsolete(ctx, "u1", m.ID, "r", &missing)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestUpdateMemoryReembedsOnSearchFieldChange(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	m := mustCreate(t, repo, "u1", "original", "text one")
	before := append([]float32(nil), m.Embedding...)

	title := "completely different subject"
	updated, err := repo.UpdateMemory(ctx, "u1", m.ID, repository.MemoryPatch{Title: &title}, true)
	require.NoError(t, err)
	assert.NotEqual(t, before, updated.Embedding)

	// Importance alone must not touch the vector.
	imp := 9
	updated2, err := repo.UpdateMemory(ctx, "u1", m.ID, repository.MemoryPatch{Importance: &imp}, false)
	require.NoError(t, err)
	assert.Equal(t, updated.Embedding, updated2.Embedding)
	assert.Equal(t, 9, updated2.Importance)
}

func TestListMemoriesTotalBeforePagination(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreate(t, repo, "u1", "m", "c")
	}
	rows, total, err := repo.ListMemories(ctx, "u1", repository.ListMemoriesParams{
		Limit: 2, SortBy: repository.SortByCreatedAt, SortOrder: repository.SortOrderDesc,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 5, total)
}

func TestGetLinkedMemoriesOrderAndLimit(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	center := mustCreate(t, repo, "u1", "center", "c")

	importances := []int{3, 9, 9, 1}
	var neighbors []*domain.Memory
	for _, imp := range importances {
		n, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
			Title: "n", Content: "c", Importance: imp,
		})
		require.NoError(t, err)
		neighbors = append(neighbors, n)
		_, err = repo.CreateLink(ctx, "u1", center.ID, n.ID)
		require.NoError(t, err)
	}

	got, err := repo.GetLinkedMemories(ctx, "u1", center.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// importance desc, then id asc between the two nines
	assert.Equal(t, neighbors[1].ID, got[0].ID)
	assert.Equal(t, neighbors[2].ID, got[1].ID)
	assert.Equal(t, neighbors[0].ID, got[2].ID)
}

func TestNeighborRefsRespectsAllowedTypes(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, "u1", &domain.Project{Name: "p"})
	require.NoError(t, err)
	m, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "m", Content: "c", Importance: 5, ProjectIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	other := mustCreate(t, repo, "u1", "o", "c")
	_, err = repo.CreateLink(ctx, "u1", m.ID, other.ID)
	require.NoError(t, err)

	ref := domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID}

	all := map[domain.NodeType]bool{domain.NodeTypeMemory: true, domain.NodeTypeProject: true}
	refs, err := repo.NeighborRefs(ctx, "u1", ref, all)
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	memOnly := map[domain.NodeType]bool{domain.NodeTypeMemory: true}
	refs, err = repo.NeighborRefs(ctx, "u1", ref, memOnly)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, other.ID, refs[0].ID)
}

func TestEntityRelationshipUniqueness(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	e1, err := repo.CreateEntity(ctx, "u1", &domain.Entity{Name: "alice", EntityType: domain.EntityTypeIndividual})
	require.NoError(t, err)
	e2, err := repo.CreateEntity(ctx, "u1", &domain.Entity{Name: "acme", EntityType: domain.EntityTypeOrganization})
	require.NoError(t, err)

	rel := &domain.EntityRelationship{SourceEntityID: e1.ID, TargetEntityID: e2.ID, RelationshipType: "works_at"}
	_, err = repo.CreateEntityRelationship(ctx, "u1", rel)
	require.NoError(t, err)
	_, err = repo.CreateEntityRelationship(ctx, "u1", rel)
	assert.True(t, appErrors.IsValidation(err))

	// A different type between the same pair is a new edge.
	rel2 := &domain.EntityRelationship{SourceEntityID: e1.ID, TargetEntityID: e2.ID, RelationshipType: "founded"}
	_, err = repo.CreateEntityRelationship(ctx, "u1", rel2)
	assert.NoError(t, err)
}

func TestDeleteProjectCascades(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, "u1", &domain.Project{Name: "p"})
	require.NoError(t, err)
	m, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "m", Content: "c", Importance: 5, ProjectIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	d, err := repo.CreateDocument(ctx, "u1", &domain.Document{Title: "d", ProjectID: &p.ID})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteProject(ctx, "u1", p.ID))

	got, err := repo.GetMemoryByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ProjectIDs)

	doc, err := repo.GetDocumentByID(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.Nil(t, doc.ProjectID)
}

func TestReembedRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustCreate(t, repo, "u1", "m", "c")
	}

	n, err := repo.CountAllMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.ResetEmbeddingStorage(ctx, 32))
	n, err = repo.CountEmbeddingsWithDimension(ctx, 64)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := repo.GetMemoriesForReembedding(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	updates := make([]repository.EmbeddingUpdate, 0, len(page))
	for _, m := range page {
		updates = append(updates, repository.EmbeddingUpdate{MemoryID: m.ID, Embedding: make([]float32, 32)})
	}
	require.NoError(t, repo.BulkUpdateEmbeddings(ctx, updates))

	n, err = repo.CountEmbeddingsWithDimension(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSemanticSearchTieBreaking(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	// Identical text gives identical vectors, so ranking falls through to
	// importance desc then id asc.
	low, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{Title: "same", Content: "same", Importance: 2})
	require.NoError(t, err)
	high, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{Title: "same", Content: "same", Importance: 8})
	require.NoError(t, err)

	got, err := repo.SemanticSearch(ctx, "u1", repository.SemanticSearchParams{Query: "same same", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID)
	assert.Equal(t, low.ID, got[1].ID)
}
