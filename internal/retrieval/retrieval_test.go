package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/rerank"
	"forgetful-backend/internal/repository"
)

// stubSearcher serves a fixed dense ranking.
type stubSearcher struct {
	repository.MemoryRepository
	dense []*domain.Memory
	gotK  int
}

func (s *stubSearcher) SemanticSearch(_ context.Context, _ string, params repository.SemanticSearchParams) ([]*domain.Memory, error) {
	s.gotK = params.K
	out := s.dense
	if len(out) > params.K {
		out = out[:params.K]
	}
	return out, nil
}

type stubLexical struct {
	rows []*domain.Memory
	err  error
}

func (s *stubLexical) LexicalSearch(context.Context, string, string, int) ([]*domain.Memory, error) {
	return s.rows, s.err
}

type stubReranker struct {
	ranked []rerank.RankedDoc
	err    error
}

func (s *stubReranker) Rerank(context.Context, string, []string) ([]rerank.RankedDoc, error) {
	return s.ranked, s.err
}

func mem(id int64, title string) *domain.Memory {
	return &domain.Memory{ID: id, Title: title, Content: "c"}
}

func TestDenseOnlyOverfetchesAndTruncates(t *testing.T) {
	var dense []*domain.Memory
	for i := int64(1); i <= 30; i++ {
		dense = append(dense, mem(i, "m"))
	}
	repo := &stubSearcher{dense: dense}
	p := NewPipeline(repo, zap.NewNop())

	got, err := p.Search(context.Background(), Params{UserID: "u1", Query: "q", K: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, DefaultFanout, repo.gotK)
}

func TestLexicalFusionBoostsSharedHits(t *testing.T) {
	a, b, c := mem(1, "a"), mem(2, "b"), mem(3, "c")
	repo := &stubSearcher{dense: []*domain.Memory{a, b, c}}
	// c tops the lexical list; appearing in both lists must lift it above b.
	lex := &stubLexical{rows: []*domain.Memory{c, a}}
	p := NewPipeline(repo, zap.NewNop(), WithLexical(lex))

	got, err := p.Search(context.Background(), Params{UserID: "u1", Query: "q", K: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, int64(2), got[2].ID)
}

func TestLexicalFailureKeepsDenseOrder(t *testing.T) {
	a, b := mem(1, "a"), mem(2, "b")
	repo := &stubSearcher{dense: []*domain.Memory{a, b}}
	p := NewPipeline(repo, zap.NewNop(), WithLexical(&stubLexical{err: errors.New("index offline")}))

	got, err := p.Search(context.Background(), Params{UserID: "u1", Query: "q", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestRerankReorders(t *testing.T) {
	a, b, c := mem(1, "a"), mem(2, "b"), mem(3, "c")
	repo := &stubSearcher{dense: []*domain.Memory{a, b, c}}
	rr := &stubReranker{ranked: []rerank.RankedDoc{
		{Index: 2, Score: 0.9},
		{Index: 0, Score: 0.5},
		{Index: 1, Score: 0.1},
	}}
	p := NewPipeline(repo, zap.NewNop(), WithReranker(rr))

	got, err := p.Search(context.Background(), Params{UserID: "u1", Query: "q", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestRerankFailureKeepsPriorOrder(t *testing.T) {
	a, b := mem(1, "a"), mem(2, "b")
	repo := &stubSearcher{dense: []*domain.Memory{a, b}}
	p := NewPipeline(repo, zap.NewNop(), WithReranker(&stubReranker{err: errors.New("breaker open")}))

	got, err := p.Search(context.Background(), Params{UserID: "u1", Query: "q", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
}
