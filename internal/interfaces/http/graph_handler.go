package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/repository"
	graphsvc "forgetful-backend/internal/service/graph"
	"forgetful-backend/pkg/api"
	appErrors "forgetful-backend/pkg/errors"
)

// GraphHandler serves the graph overview and subgraph endpoints.
type GraphHandler struct {
	graph  *graphsvc.Service
	logger *zap.Logger
}

// NewGraphHandler wires the handler.
func NewGraphHandler(graph *graphsvc.Service, logger *zap.Logger) *GraphHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphHandler{graph: graph, logger: logger.Named("graph_handler")}
}

// Overview handles GET /api/v1/graph: the flat paged node/edge listing.
func (h *GraphHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	page, err := parsePagination(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	includeEntities, err := queryBool(r, "include_entities")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	nodeTypes, err := queryNodeTypes(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	projectID, err := queryInt64(r, "project_id")
	if err != nil {
		api.WriteError(w, err)
		return
	}

	overview, err := h.graph.GetOverview(r.Context(), userID, repository.GraphOverviewParams{
		IncludeEntities: includeEntities,
		NodeTypes:       nodeTypes,
		Limit:           page.Limit,
		Offset:          page.Offset,
		SortBy:          r.URL.Query().Get("sort_by"),
		SortOrder:       r.URL.Query().Get("sort_order"),
		ProjectID:       projectID,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, overview)
}

// Subgraph handles GET /api/v1/graph/subgraph: the bounded BFS neighborhood
// of a center node.
func (h *GraphHandler) Subgraph(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	nodeID := r.URL.Query().Get("node_id")
	if nodeID == "" {
		api.WriteError(w, appErrors.NewValidation("node_id is required"))
		return
	}
	depth, err := queryInt(r, "depth")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	maxNodes, err := queryInt(r, "max_nodes")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	nodeTypes, err := queryNodeTypes(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	req := graphsvc.SubgraphRequest{CenterNodeID: nodeID, Depth: 1, NodeTypes: nodeTypes}
	if depth != nil {
		req.Depth = *depth
	}
	if maxNodes != nil {
		req.MaxNodes = *maxNodes
	}

	sub, err := h.graph.GetSubgraph(r.Context(), userID, req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, sub)
}
