package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	entitysvc "forgetful-backend/internal/service/entity"
	"forgetful-backend/pkg/api"
)

// EntityHandler serves projects, documents, code artifacts, entities, and
// entity relationships.
type EntityHandler struct {
	entities *entitysvc.Service
	logger   *zap.Logger
}

// NewEntityHandler wires the handler.
func NewEntityHandler(entities *entitysvc.Service, logger *zap.Logger) *EntityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityHandler{entities: entities, logger: logger.Named("entity_handler")}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func userAndID(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	userID, _ := auth.UserIDFrom(r.Context())
	id, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		api.WriteError(w, err)
		return "", 0, false
	}
	return userID, id, true
}

// CreateProject handles POST /api/v1/projects.
func (h *EntityHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var p domain.Project
	if !decodeBody(w, r, &p) {
		return
	}
	created, err := h.entities.CreateProject(r.Context(), userID, &p)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// ListProjects handles GET /api/v1/projects.
func (h *EntityHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	projects, err := h.entities.ListProjects(r.Context(), userID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if projects == nil {
		projects = []*domain.Project{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *EntityHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	p, err := h.entities.GetProject(r.Context(), userID, id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, p)
}

// updateProjectRequest patches a project.
type updateProjectRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// UpdateProject handles PUT /api/v1/projects/{id}.
func (h *EntityHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	var req updateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.entities.UpdateProject(r.Context(), userID, id, repository.ProjectPatch{
		Name: req.Name, Description: req.Description, Tags: req.Tags,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h *EntityHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	if err := h.entities.DeleteProject(r.Context(), userID, id); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// CreateDocument handles POST /api/v1/documents.
func (h *EntityHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var d domain.Document
	if !decodeBody(w, r, &d) {
		return
	}
	created, err := h.entities.CreateDocument(r.Context(), userID, &d)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// ListDocuments handles GET /api/v1/documents.
func (h *EntityHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	docs, err := h.entities.ListDocuments(r.Context(), userID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// DeleteDocument handles DELETE /api/v1/documents/{id}.
func (h *EntityHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	if err := h.entities.DeleteDocument(r.Context(), userID, id); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// CreateCodeArtifact handles POST /api/v1/code-artifacts.
func (h *EntityHandler) CreateCodeArtifact(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var a domain.CodeArtifact
	if !decodeBody(w, r, &a) {
		return
	}
	created, err := h.entities.CreateCodeArtifact(r.Context(), userID, &a)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// ListCodeArtifacts handles GET /api/v1/code-artifacts.
func (h *EntityHandler) ListCodeArtifacts(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	artifacts, err := h.entities.ListCodeArtifacts(r.Context(), userID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []*domain.CodeArtifact{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"code_artifacts": artifacts})
}

// DeleteCodeArtifact handles DELETE /api/v1/code-artifacts/{id}.
func (h *EntityHandler) DeleteCodeArtifact(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	if err := h.entities.DeleteCodeArtifact(r.Context(), userID, id); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// CreateEntity handles POST /api/v1/entities.
func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var e domain.Entity
	if !decodeBody(w, r, &e) {
		return
	}
	created, err := h.entities.CreateEntity(r.Context(), userID, &e)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// ListEntities handles GET /api/v1/entities.
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	entities, err := h.entities.ListEntities(r.Context(), userID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if entities == nil {
		entities = []*domain.Entity{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

// DeleteEntity handles DELETE /api/v1/entities/{id}.
func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	if err := h.entities.DeleteEntity(r.Context(), userID, id); err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// CreateRelationship handles POST /api/v1/entities/{id}/relationships.
func (h *EntityHandler) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	var rel domain.EntityRelationship
	if !decodeBody(w, r, &rel) {
		return
	}
	rel.SourceEntityID = id
	created, err := h.entities.CreateRelationship(r.Context(), userID, &rel)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// ListRelationships handles GET /api/v1/entities/{id}/relationships.
func (h *EntityHandler) ListRelationships(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}
	rels, err := h.entities.ListRelationships(r.Context(), userID, id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if rels == nil {
		rels = []*domain.EntityRelationship{}
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"relationships": rels})
}
