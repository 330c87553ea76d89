// Package graph implements bounded breadth-first subgraph extraction and the
// flat graph overview used by visualization clients.
package graph

import (
	"context"

	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

const (
	MinDepth    = 1
	MaxDepth    = 3
	MinMaxNodes = 1
	MaxMaxNodes = 500
)

// Service runs graph reads over the repository's traversal primitives.
type Service struct {
	repo   repository.Repository
	logger *zap.Logger
}

// NewService wires the graph service.
func NewService(repo repository.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("graph")}
}

// SubgraphRequest selects a center node and traversal bounds.
type SubgraphRequest struct {
	CenterNodeID string            `json:"center_node_id"`
	Depth        int               `json:"depth"`
	NodeTypes    []domain.NodeType `json:"node_types"`
	MaxNodes     int               `json:"max_nodes"`
}

// GetSubgraph extracts the depth-bounded, node-capped neighborhood of the
// center node. Every distinct node appears at most once; cycles terminate
// through the visited set.
func (s *Service) GetSubgraph(ctx context.Context, userID string, req SubgraphRequest) (*domain.Subgraph, error) {
	center, err := domain.ParseNodeRef(req.CenterNodeID)
	if err != nil {
		return nil, appErrors.NewValidationf("invalid center_node_id: %v", err)
	}
	if req.Depth < MinDepth || req.Depth > MaxDepth {
		return nil, appErrors.NewValidationf("depth must be between %d and %d", MinDepth, MaxDepth)
	}
	if req.MaxNodes == 0 {
		req.MaxNodes = 100
	}
	if req.MaxNodes < MinMaxNodes || req.MaxNodes > MaxMaxNodes {
		return nil, appErrors.NewValidationf("max_nodes must be between %d and %d", MinMaxNodes, MaxMaxNodes)
	}

	allowed := make(map[domain.NodeType]bool)
	if len(req.NodeTypes) == 0 {
		for _, t := range domain.AllNodeTypes {
			allowed[t] = true
		}
	} else {
		for _, t := range req.NodeTypes {
			if !domain.IsValidNodeType(t) {
				return nil, appErrors.NewValidationf("unknown node type %q", t)
			}
			allowed[t] = true
		}
	}
	if !allowed[center.Type] {
		return nil, appErrors.NewValidationf("center node type %s is excluded by node_types", center.Type)
	}

	exists, err := s.repo.NodeExists(ctx, userID, center)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, appErrors.NewNotFoundf("node %s not found", req.CenterNodeID)
	}

	refs, depths, truncated, err := s.traverse(ctx, userID, center, req.Depth, req.MaxNodes, allowed)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.FetchNodes(ctx, userID, refs)
	if err != nil {
		return nil, err
	}

	nodes := make([]domain.SubgraphNode, 0, len(refs))
	present := make([]domain.NodeRef, 0, len(refs))
	nodeCounts := make(map[domain.NodeType]int)
	for _, ref := range refs {
		row, ok := rows[ref]
		if !ok {
			// raced delete between traversal and hydration
			s.logger.Warn("subgraph node vanished during hydration",
				zap.String("node", ref.String()))
			continue
		}
		present = append(present, ref)
		nodeCounts[ref.Type]++
		nodes = append(nodes, domain.SubgraphNode{
			ID:    ref.String(),
			Type:  ref.Type,
			Depth: depths[ref],
			Label: nodeLabel(row),
			Data:  row,
		})
	}

	edges, err := s.repo.EdgesAmong(ctx, userID, present, allowed)
	if err != nil {
		return nil, err
	}
	edgeCounts := make(map[domain.EdgeType]int)
	for _, e := range edges {
		edgeCounts[e.Type]++
	}

	nodeTypes := make([]domain.NodeType, 0, len(allowed))
	for _, t := range domain.AllNodeTypes {
		if allowed[t] {
			nodeTypes = append(nodeTypes, t)
		}
	}

	return &domain.Subgraph{
		Nodes: nodes,
		Edges: edges,
		Meta: domain.SubgraphMeta{
			CenterNodeID: req.CenterNodeID,
			Depth:        req.Depth,
			MaxNodes:     req.MaxNodes,
			NodeTypes:    nodeTypes,
			NodeCounts:   nodeCounts,
			EdgeCounts:   edgeCounts,
			Truncated:    truncated,
		},
	}, nil
}

// traverse picks the node set. Backends with a recursive-CTE fast path take
// it; everything else gets the application-side frontier walk.
func (s *Service) traverse(ctx context.Context, userID string, center domain.NodeRef, depth, maxNodes int, allowed map[domain.NodeType]bool) ([]domain.NodeRef, map[domain.NodeRef]int, bool, error) {
	if bfs, ok := s.repo.(repository.BFSTraverser); ok {
		return bfs.TraverseBFS(ctx, userID, center, depth, maxNodes, allowed)
	}
	return s.traverseAppSide(ctx, userID, center, depth, maxNodes, allowed)
}

func (s *Service) traverseAppSide(ctx context.Context, userID string, center domain.NodeRef, depth, maxNodes int, allowed map[domain.NodeType]bool) ([]domain.NodeRef, map[domain.NodeRef]int, bool, error) {
	visited := map[domain.NodeRef]int{center: 0}
	order := []domain.NodeRef{center}
	frontier := []domain.NodeRef{center}
	truncated := false

	for d := 0; d < depth && len(frontier) > 0 && !truncated; d++ {
		var next []domain.NodeRef
		for _, n := range frontier {
			if err := ctx.Err(); err != nil {
				// cancelled mid-walk: return what we have
				return order, visited, true, nil
			}
			neighbors, err := s.repo.NeighborRefs(ctx, userID, n, allowed)
			if err != nil {
				return nil, nil, false, err
			}
			for _, nb := range neighbors {
				if _, ok := visited[nb]; ok {
					continue
				}
				if len(visited) >= maxNodes {
					truncated = true
					break
				}
				visited[nb] = d + 1
				order = append(order, nb)
				next = append(next, nb)
			}
			if truncated {
				break
			}
		}
		frontier = next
	}
	return order, visited, truncated, nil
}

// nodeLabel pulls a human-readable label out of the hydrated row.
func nodeLabel(row interface{}) string {
	switch v := row.(type) {
	case *domain.Memory:
		return v.Title
	case *domain.Entity:
		return v.Name
	case *domain.Project:
		return v.Name
	case *domain.Document:
		return v.Title
	case *domain.CodeArtifact:
		return v.Name
	}
	return ""
}

// GetOverview serves the flat node/edge listing.
func (s *Service) GetOverview(ctx context.Context, userID string, params repository.GraphOverviewParams) (*repository.GraphOverview, error) {
	if params.Limit <= 0 {
		params.Limit = 100
	}
	if params.Limit > MaxMaxNodes {
		return nil, appErrors.NewValidationf("limit must not exceed %d", MaxMaxNodes)
	}
	if params.Offset < 0 {
		return nil, appErrors.NewValidation("offset must not be negative")
	}
	for _, t := range params.NodeTypes {
		if !domain.IsValidNodeType(t) {
			return nil, appErrors.NewValidationf("unknown node type %q", t)
		}
	}
	return s.repo.GetGraphOverview(ctx, userID, params)
}
