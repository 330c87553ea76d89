package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/mocks"
	appErrors "forgetful-backend/pkg/errors"
)

func setup(t *testing.T) (*Service, *mocks.MockRepository) {
	t.Helper()
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	return NewService(repo, zap.NewNop()), repo
}

func createMemory(t *testing.T, repo *mocks.MockRepository, title string) *domain.Memory {
	t.Helper()
	m, err := repo.CreateMemory(context.Background(), "u1", repository.CreateMemoryInput{
		Title: title, Content: "c", Importance: 5,
	})
	require.NoError(t, err)
	return m
}

func TestSubgraphValidation(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	m := createMemory(t, repo, "m")
	center := fmt.Sprintf("memory_%d", m.ID)

	_, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{CenterNodeID: "bogus"})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.GetSubgraph(ctx, "u1", SubgraphRequest{CenterNodeID: center, Depth: 4})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.GetSubgraph(ctx, "u1", SubgraphRequest{CenterNodeID: center, Depth: 1, MaxNodes: 501})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.GetSubgraph(ctx, "u1", SubgraphRequest{CenterNodeID: "memory_99999", Depth: 1})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestSubgraphCycleYieldsEachNodeOnce(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	a := createMemory(t, repo, "a")
	b := createMemory(t, repo, "b")
	c := createMemory(t, repo, "c")
	for _, pair := range [][2]int64{{a.ID, b.ID}, {b.ID, c.ID}, {c.ID, a.ID}} {
		_, err := repo.CreateLink(ctx, "u1", pair[0], pair[1])
		require.NoError(t, err)
	}

	sub, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", a.ID), Depth: 3,
	})
	require.NoError(t, err)

	require.Len(t, sub.Nodes, 3)
	seen := make(map[string]bool)
	for _, n := range sub.Nodes {
		assert.False(t, seen[n.ID], "node %s appears twice", n.ID)
		seen[n.ID] = true
	}

	require.Len(t, sub.Edges, 3)
	for _, e := range sub.Edges {
		assert.Equal(t, domain.EdgeTypeMemoryLink, e.Type)
	}
	assert.False(t, sub.Meta.Truncated)
	assert.Equal(t, 3, sub.Meta.NodeCounts[domain.NodeTypeMemory])
	assert.Equal(t, 3, sub.Meta.EdgeCounts[domain.EdgeTypeMemoryLink])
}

func TestSubgraphDepthBound(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	// chain a-b-c-d; depth 1 from a sees only a and b
	chain := make([]*domain.Memory, 4)
	for i := range chain {
		chain[i] = createMemory(t, repo, fmt.Sprintf("m%d", i))
		if i > 0 {
			_, err := repo.CreateLink(ctx, "u1", chain[i-1].ID, chain[i].ID)
			require.NoError(t, err)
		}
	}

	sub, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", chain[0].ID), Depth: 1,
	})
	require.NoError(t, err)
	require.Len(t, sub.Nodes, 2)
	for _, n := range sub.Nodes {
		assert.LessOrEqual(t, n.Depth, 1)
	}
}

func TestSubgraphMaxNodesTruncates(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	hub := createMemory(t, repo, "hub")
	for i := 0; i < 10; i++ {
		spoke := createMemory(t, repo, fmt.Sprintf("s%d", i))
		_, err := repo.CreateLink(ctx, "u1", hub.ID, spoke.ID)
		require.NoError(t, err)
	}

	sub, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", hub.ID), Depth: 1, MaxNodes: 5,
	})
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 5)
	assert.True(t, sub.Meta.Truncated)
}

func TestSubgraphNodeTypeRestriction(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, "u1", &domain.Project{Name: "p"})
	require.NoError(t, err)
	m, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "m", Content: "c", Importance: 5, ProjectIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	other := createMemory(t, repo, "other")
	_, err = repo.CreateLink(ctx, "u1", m.ID, other.ID)
	require.NoError(t, err)

	sub, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", m.ID), Depth: 1,
		NodeTypes: []domain.NodeType{domain.NodeTypeMemory},
	})
	require.NoError(t, err)
	require.Len(t, sub.Nodes, 2)
	for _, n := range sub.Nodes {
		assert.Equal(t, domain.NodeTypeMemory, n.Type)
	}

	// center type excluded by the filter is a validation error
	_, err = svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", m.ID), Depth: 1,
		NodeTypes: []domain.NodeType{domain.NodeTypeProject},
	})
	assert.True(t, appErrors.IsValidation(err))
}

func TestSubgraphCrossTypeEdges(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, "u1", &domain.Project{Name: "p"})
	require.NoError(t, err)
	d, err := repo.CreateDocument(ctx, "u1", &domain.Document{Title: "d", ProjectID: &p.ID})
	require.NoError(t, err)
	m, err := repo.CreateMemory(ctx, "u1", repository.CreateMemoryInput{
		Title: "m", Content: "c", Importance: 5,
		ProjectIDs: []int64{p.ID}, DocumentIDs: []int64{d.ID},
	})
	require.NoError(t, err)

	sub, err := svc.GetSubgraph(ctx, "u1", SubgraphRequest{
		CenterNodeID: fmt.Sprintf("memory_%d", m.ID), Depth: 2,
	})
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 3)

	types := make(map[domain.EdgeType]int)
	for _, e := range sub.Edges {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[domain.EdgeTypeMemoryProject])
	assert.Equal(t, 1, types[domain.EdgeTypeMemoryDocument])
	assert.Equal(t, 1, types[domain.EdgeTypeDocumentProject])
}

func TestOverviewValidation(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.GetOverview(ctx, "u1", repository.GraphOverviewParams{Limit: 9999})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.GetOverview(ctx, "u1", repository.GraphOverviewParams{NodeTypes: []domain.NodeType{"bogus"}})
	assert.True(t, appErrors.IsValidation(err))
}

func TestOverviewReturnsNodesAndEdges(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	a := createMemory(t, repo, "a")
	b := createMemory(t, repo, "b")
	_, err := repo.CreateLink(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	ov, err := svc.GetOverview(ctx, "u1", repository.GraphOverviewParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, ov.Nodes, 2)
	assert.Len(t, ov.Edges, 1)
	assert.Equal(t, 2, ov.Meta.TotalNodes)
}
