// Package retrieval implements the staged search pipeline behind semantic
// queries: a dense vector stage, an optional lexical stage fused with
// reciprocal rank fusion, and an optional cross-encoder rerank. The dense
// stage is the backbone; the optional stages refine its ordering and degrade
// gracefully when their adapters are absent or failing.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/rerank"
	"forgetful-backend/internal/repository"
)

// rrfK is the reciprocal-rank-fusion smoothing constant from the original RRF
// paper. It is not configurable.
const rrfK = 60

// DefaultFanout is the candidate pool size when the caller's k is small.
// Over-fetching gives the later stages something to reorder.
const DefaultFanout = 20

// LexicalSearcher is the optional keyword stage. Backends that maintain a
// full-text index implement it; the pipeline type-asserts at construction.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, userID string, query string, k int) ([]*domain.Memory, error)
}

// Params describe one retrieval request.
type Params struct {
	UserID              string
	Query               string
	QueryContext        string
	K                   int
	ImportanceThreshold *int
	ProjectIDs          []int64
	ExcludeIDs          []int64
}

// Pipeline runs the staged search.
type Pipeline struct {
	repo     repository.MemoryRepository
	lexical  LexicalSearcher
	reranker rerank.Adapter
	fanout   int
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLexical enables the keyword stage.
func WithLexical(l LexicalSearcher) Option {
	return func(p *Pipeline) { p.lexical = l }
}

// WithReranker enables the cross-encoder stage.
func WithReranker(r rerank.Adapter) Option {
	return func(p *Pipeline) { p.reranker = r }
}

// WithFanout overrides the candidate pool size.
func WithFanout(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.fanout = n
		}
	}
}

// NewPipeline builds a pipeline over the given repository.
func NewPipeline(repo repository.MemoryRepository, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		repo:   repo,
		fanout: DefaultFanout,
		logger: logger.Named("retrieval"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Search runs dense retrieval, then the optional stages, and truncates to k.
// Optional-stage failures are logged and the dense ordering survives.
func (p *Pipeline) Search(ctx context.Context, params Params) ([]*domain.Memory, error) {
	k := params.K
	if k <= 0 {
		k = 5
	}
	pool := k
	if p.fanout > pool {
		pool = p.fanout
	}

	dense, err := p.repo.SemanticSearch(ctx, params.UserID, repository.SemanticSearchParams{
		Query:               params.Query,
		K:                   pool,
		ImportanceThreshold: params.ImportanceThreshold,
		ProjectIDs:          params.ProjectIDs,
		ExcludeIDs:          params.ExcludeIDs,
	})
	if err != nil {
		return nil, err
	}

	candidates := dense
	if p.lexical != nil {
		candidates = p.fuseLexical(ctx, params, dense, pool)
	}
	if p.reranker != nil && len(candidates) > 1 {
		candidates = p.rerankStage(ctx, params, candidates)
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// fuseLexical merges the dense and lexical rankings with RRF. The fused score
// for a memory is the sum over lists of 1/(rrfK + rank). Dense rank breaks
// score ties so pure-lexical noise cannot leapfrog a strong dense hit.
func (p *Pipeline) fuseLexical(ctx context.Context, params Params, dense []*domain.Memory, pool int) []*domain.Memory {
	lexical, err := p.lexical.LexicalSearch(ctx, params.UserID, params.Query, pool)
	if err != nil {
		p.logger.Warn("lexical stage failed, keeping dense order", zap.Error(err))
		return dense
	}
	if len(lexical) == 0 {
		return dense
	}

	type fused struct {
		m     *domain.Memory
		score float64
		dRank int
	}
	byID := make(map[int64]*fused, len(dense)+len(lexical))
	for rank, m := range dense {
		byID[m.ID] = &fused{m: m, score: 1.0 / float64(rrfK+rank+1), dRank: rank}
	}
	for rank, m := range lexical {
		if f, ok := byID[m.ID]; ok {
			f.score += 1.0 / float64(rrfK+rank+1)
		} else {
			byID[m.ID] = &fused{m: m, score: 1.0 / float64(rrfK+rank+1), dRank: len(dense) + rank}
		}
	}

	out := make([]*fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].dRank != out[j].dRank {
			return out[i].dRank < out[j].dRank
		}
		return out[i].m.ID < out[j].m.ID
	})

	result := make([]*domain.Memory, 0, len(out))
	for _, f := range out {
		result = append(result, f.m)
	}
	if len(result) > pool {
		result = result[:pool]
	}
	return result
}

// rerankStage reorders candidates by cross-encoder relevance. The document
// text is the memory's title, content and context joined with newlines; the
// query carries the caller's context the same way.
func (p *Pipeline) rerankStage(ctx context.Context, params Params, candidates []*domain.Memory) []*domain.Memory {
	docs := make([]string, len(candidates))
	for i, m := range candidates {
		parts := []string{m.Title, m.Content}
		if m.Context != "" {
			parts = append(parts, m.Context)
		}
		docs[i] = strings.Join(parts, "\n")
	}
	query := params.Query
	if params.QueryContext != "" {
		query = params.Query + "\n" + params.QueryContext
	}

	ranked, err := p.reranker.Rerank(ctx, query, docs)
	if err != nil {
		p.logger.Warn("rerank stage failed, keeping prior order", zap.Error(err))
		return candidates
	}

	out := make([]*domain.Memory, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, candidates[r.Index])
	}
	return out
}
