package memory

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/retrieval"
	appErrors "forgetful-backend/pkg/errors"
)

// QueryRequest is one recall query against the store.
type QueryRequest struct {
	Query               string  `json:"query"`
	QueryContext        string  `json:"query_context"`
	K                   int     `json:"k"`
	IncludeLinks        bool    `json:"include_links"`
	MaxLinksPerPrimary  int     `json:"max_links_per_primary"`
	TokenThreshold      int     `json:"token_context_threshold"`
	MaxMemories         int     `json:"max_memories"`
	ImportanceThreshold *int    `json:"importance_threshold"`
	ProjectIDs          []int64 `json:"project_ids"`
	StrictProjectFilter bool    `json:"strict_project_filter"`
}

// QueryResult is the composed, budget-bounded answer.
type QueryResult struct {
	Query          string                 `json:"query"`
	PrimaryMemories []*domain.Memory      `json:"primary_memories"`
	LinkedMemories []*domain.LinkedMemory `json:"linked_memories"`
	TotalCount     int                    `json:"total_count"`
	TokenCount     int                    `json:"token_count"`
	Truncated      bool                   `json:"truncated"`
}

// QueryMemory runs the retrieval pipeline and composes the answer under the
// token budget and count cap. The walk is greedy and deterministic: both
// stages order candidates by importance descending (stable over the
// retrieval ranking) and stop at the first overflow.
func (s *Service) QueryMemory(ctx context.Context, userID string, req QueryRequest) (*QueryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, appErrors.NewValidation("query is required")
	}
	if req.K <= 0 {
		req.K = 5
	}
	if req.TokenThreshold < 0 {
		return nil, appErrors.NewValidation("token_context_threshold must not be negative")
	}
	// A request-supplied threshold wins over the configured default.
	budget := req.TokenThreshold
	if budget == 0 {
		budget = s.cfg.DefaultTokenBudget
	}
	maxMemories := req.MaxMemories
	if maxMemories <= 0 {
		maxMemories = s.cfg.DefaultMaxMemories
	}

	primary, err := s.pipeline.Search(ctx, retrieval.Params{
		UserID:              userID,
		Query:               req.Query,
		QueryContext:        req.QueryContext,
		K:                   req.K,
		ImportanceThreshold: req.ImportanceThreshold,
		ProjectIDs:          req.ProjectIDs,
	})
	if err != nil {
		return nil, err
	}

	var linked []*domain.LinkedMemory
	if req.IncludeLinks && req.MaxLinksPerPrimary > 0 && len(primary) > 0 {
		linked, err = s.fetchLinked(ctx, userID, primary, req)
		if err != nil {
			return nil, err
		}
	}

	result := s.compose(req.Query, primary, linked, budget, maxMemories)

	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionQuery,
		Detail: map[string]interface{}{
			"query":       req.Query,
			"total_count": result.TotalCount,
			"truncated":   result.Truncated,
		},
	})
	return result, nil
}

// fetchLinked pulls one-hop neighbors for every primary concurrently,
// then flattens in primary order so that link_source_id is always the first
// primary that surfaced the neighbor. Neighbors already present as a primary
// or surfaced by an earlier primary are skipped.
func (s *Service) fetchLinked(ctx context.Context, userID string, primary []*domain.Memory, req QueryRequest) ([]*domain.LinkedMemory, error) {
	var projectFilter []int64
	if req.StrictProjectFilter {
		projectFilter = req.ProjectIDs
	}

	perPrimary := make([][]*domain.Memory, len(primary))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range primary {
		i, p := i, p
		g.Go(func() error {
			rows, err := s.repo.GetLinkedMemories(gctx, userID, p.ID, projectFilter, req.MaxLinksPerPrimary)
			if err != nil {
				return err
			}
			perPrimary[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inPrimary := make(map[int64]bool, len(primary))
	for _, p := range primary {
		inPrimary[p.ID] = true
	}

	seen := make(map[int64]bool)
	var linked []*domain.LinkedMemory
	for i, rows := range perPrimary {
		for _, n := range rows {
			if inPrimary[n.ID] || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			linked = append(linked, &domain.LinkedMemory{
				Memory:       *n,
				LinkSourceID: primary[i].ID,
			})
		}
	}
	return linked, nil
}

// compose applies the two-stage budget walk.
func (s *Service) compose(query string, primary []*domain.Memory, linked []*domain.LinkedMemory, budget, maxMemories int) *QueryResult {
	byImportance := make([]*domain.Memory, len(primary))
	copy(byImportance, primary)
	sort.SliceStable(byImportance, func(i, j int) bool {
		return byImportance[i].Importance > byImportance[j].Importance
	})
	if len(byImportance) > maxMemories {
		byImportance = byImportance[:maxMemories]
	}

	var (
		taken      []*domain.Memory
		tokensUsed int
	)
	// A count-cap trim counts as truncation even when the token walk never
	// stops early: primaries were dropped, and the cap bounds the total, so
	// no room is left for linked neighbors either.
	primaryTruncated := len(primary) > maxMemories
	for i, m := range byImportance {
		cost := s.counter.Count(m.TokenText())
		if tokensUsed+cost > budget {
			// The very first memory may exceed the budget on its own;
			// nothing may be added after it.
			if len(taken) == 0 {
				taken = append(taken, m)
				tokensUsed += cost
				primaryTruncated = primaryTruncated || i < len(byImportance)-1
			} else {
				primaryTruncated = true
			}
			break
		}
		taken = append(taken, m)
		tokensUsed += cost
	}

	result := &QueryResult{
		Query:           query,
		PrimaryMemories: taken,
		LinkedMemories:  []*domain.LinkedMemory{},
		TokenCount:      tokensUsed,
		Truncated:       primaryTruncated,
	}
	if primaryTruncated || len(linked) == 0 {
		result.TotalCount = len(taken)
		return result
	}

	// Stage B: spend what is left on linked neighbors.
	sort.SliceStable(linked, func(i, j int) bool {
		return linked[i].Importance > linked[j].Importance
	})
	remaining := maxMemories - len(taken)
	linkedTruncated := false
	for _, ln := range linked {
		if remaining <= 0 {
			linkedTruncated = true
			break
		}
		cost := s.counter.Count(ln.TokenText())
		if tokensUsed+cost > budget {
			linkedTruncated = true
			break
		}
		result.LinkedMemories = append(result.LinkedMemories, ln)
		tokensUsed += cost
		remaining--
	}

	result.TokenCount = tokensUsed
	result.TotalCount = len(taken) + len(result.LinkedMemories)
	result.Truncated = linkedTruncated
	return result
}
