package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	memorysvc "forgetful-backend/internal/service/memory"
	"forgetful-backend/pkg/api"
	appErrors "forgetful-backend/pkg/errors"
)

// MemoryHandler serves the memory CRUD, search, and link endpoints.
type MemoryHandler struct {
	memories *memorysvc.Service
	logger   *zap.Logger
}

// NewMemoryHandler wires the handler.
func NewMemoryHandler(memories *memorysvc.Service, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{memories: memories, logger: logger.Named("memory_handler")}
}

// listMemoriesResponse pages the listing with the pre-pagination total.
type listMemoriesResponse struct {
	Memories []*domain.Memory `json:"memories"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// List handles GET /api/v1/memories.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	page, err := parsePagination(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	importanceMin, err := queryInt(r, "importance_min")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	projectID, err := queryInt64(r, "project_id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	includeObsolete, err := queryBool(r, "include_obsolete")
	if err != nil {
		api.WriteError(w, err)
		return
	}

	memories, total, err := h.memories.ListMemories(r.Context(), userID, repository.ListMemoriesParams{
		Limit:           page.Limit,
		Offset:          page.Offset,
		SortBy:          r.URL.Query().Get("sort_by"),
		SortOrder:       r.URL.Query().Get("sort_order"),
		Tags:            queryCSV(r, "tags"),
		ImportanceMin:   importanceMin,
		ProjectID:       projectID,
		IncludeObsolete: includeObsolete,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if memories == nil {
		memories = []*domain.Memory{}
	}
	api.Success(w, http.StatusOK, listMemoriesResponse{
		Memories: memories, Total: total, Limit: page.Limit, Offset: page.Offset,
	})
}

// createMemoryResponse flattens the stored memory alongside the similarity
// hints the auto-linker surfaced.
type createMemoryResponse struct {
	*domain.Memory
	SimilarMemories []*domain.Memory `json:"similar_memories,omitempty"`
}

// Create handles POST /api/v1/memories.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	var req memorysvc.CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.memories.CreateMemory(r.Context(), userID, req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, createMemoryResponse{
		Memory: result.Memory, SimilarMemories: result.SimilarMemories,
	})
}

// Get handles GET /api/v1/memories/{id}. Obsolete memories remain readable.
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	m, err := h.memories.GetMemory(r.Context(), userID, id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, m)
}

// Update handles PUT /api/v1/memories/{id} with PATCH semantics.
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req memorysvc.UpdateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.memories.UpdateMemory(r.Context(), userID, id, req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, m)
}

// markObsoleteRequest is the soft-delete body.
type markObsoleteRequest struct {
	Reason       string `json:"reason"`
	SupersededBy *int64 `json:"superseded_by"`
}

// Delete handles DELETE /api/v1/memories/{id} (soft delete).
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req markObsoleteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := h.memories.MarkObsolete(r.Context(), userID, id, req.Reason, req.SupersededBy); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// Search handles POST /api/v1/memories/search: the full recall query with
// staged retrieval and token-budgeted composition.
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	var req memorysvc.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.memories.QueryMemory(r.Context(), userID, req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// linkRequest carries the batch of memories to link to.
type linkRequest struct {
	RelatedIDs []int64 `json:"related_ids"`
}

// CreateLinks handles POST /api/v1/memories/{id}/links.
func (h *MemoryHandler) CreateLinks(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	linked, err := h.memories.LinkRelated(r.Context(), userID, id, req.RelatedIDs)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if linked == nil {
		linked = []int64{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"linked_ids": linked})
}

// GetLinks handles GET /api/v1/memories/{id}/links.
func (h *MemoryHandler) GetLinks(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	maxLinks := 0
	if limit != nil {
		if *limit < 1 {
			api.WriteError(w, appErrors.NewValidation("limit must be at least 1"))
			return
		}
		maxLinks = *limit
	}
	linked, err := h.memories.GetLinkedMemories(r.Context(), userID, id, maxLinks)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if linked == nil {
		linked = []*domain.Memory{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{
		"memory_id":       id,
		"linked_memories": linked,
	})
}

// DeleteLink handles DELETE /api/v1/memories/{id}/links/{targetId}.
func (h *MemoryHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	targetID, err := pathID(chi.URLParam(r, "targetId"), "targetId")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if err := h.memories.DeleteLink(r.Context(), userID, id, targetID); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}
