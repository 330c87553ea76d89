// Package entity implements CRUD for the typed records memories associate
// with: projects, documents, code artifacts, and knowledge-graph entities.
package entity

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// Service is the typed-entity application service.
type Service struct {
	repo   repository.Repository
	bus    events.Recorder
	logger *zap.Logger
}

// NewService wires the entity service.
func NewService(repo repository.Repository, bus events.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NopRecorder{}
	}
	return &Service{repo: repo, bus: bus, logger: logger.Named("entity")}
}

// --- projects ---

// CreateProject validates and stores a project.
func (s *Service) CreateProject(ctx context.Context, userID string, p *domain.Project) (*domain.Project, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, appErrors.NewValidation("name is required")
	}
	created, err := s.repo.CreateProject(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionCreate, "project", created.ID)
	return created, nil
}

// GetProject fetches one project.
func (s *Service) GetProject(ctx context.Context, userID string, id int64) (*domain.Project, error) {
	return s.repo.GetProjectByID(ctx, userID, id)
}

// ListProjects lists the user's projects.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]*domain.Project, error) {
	return s.repo.ListProjects(ctx, userID)
}

// UpdateProject applies a PATCH.
func (s *Service) UpdateProject(ctx context.Context, userID string, id int64, patch repository.ProjectPatch) (*domain.Project, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, appErrors.NewValidation("name must not be empty")
	}
	updated, err := s.repo.UpdateProject(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionUpdate, "project", id)
	return updated, nil
}

// DeleteProject hard-deletes a project; junction rows and single FKs cascade.
func (s *Service) DeleteProject(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteProject(ctx, userID, id); err != nil {
		return err
	}
	s.record(userID, events.ActionObsolete, "project", id)
	return nil
}

// --- documents ---

// CreateDocument validates and stores a document reference.
func (s *Service) CreateDocument(ctx context.Context, userID string, d *domain.Document) (*domain.Document, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, appErrors.NewValidation("title is required")
	}
	if d.ProjectID != nil {
		if _, err := s.repo.GetProjectByID(ctx, userID, *d.ProjectID); err != nil {
			return nil, err
		}
	}
	created, err := s.repo.CreateDocument(ctx, userID, d)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionCreate, "document", created.ID)
	return created, nil
}

// GetDocument fetches one document.
func (s *Service) GetDocument(ctx context.Context, userID string, id int64) (*domain.Document, error) {
	return s.repo.GetDocumentByID(ctx, userID, id)
}

// ListDocuments lists the user's documents.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error) {
	return s.repo.ListDocuments(ctx, userID)
}

// DeleteDocument hard-deletes a document.
func (s *Service) DeleteDocument(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteDocument(ctx, userID, id); err != nil {
		return err
	}
	s.record(userID, events.ActionObsolete, "document", id)
	return nil
}

// --- code artifacts ---

// CreateCodeArtifact validates and stores a code artifact reference.
func (s *Service) CreateCodeArtifact(ctx context.Context, userID string, a *domain.CodeArtifact) (*domain.CodeArtifact, error) {
	if strings.TrimSpace(a.Name) == "" {
		return nil, appErrors.NewValidation("name is required")
	}
	if a.ProjectID != nil {
		if _, err := s.repo.GetProjectByID(ctx, userID, *a.ProjectID); err != nil {
			return nil, err
		}
	}
	created, err := s.repo.CreateCodeArtifact(ctx, userID, a)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionCreate, "code_artifact", created.ID)
	return created, nil
}

// GetCodeArtifact fetches one artifact.
func (s *Service) GetCodeArtifact(ctx context.Context, userID string, id int64) (*domain.CodeArtifact, error) {
	return s.repo.GetCodeArtifactByID(ctx, userID, id)
}

// ListCodeArtifacts lists the user's artifacts.
func (s *Service) ListCodeArtifacts(ctx context.Context, userID string) ([]*domain.CodeArtifact, error) {
	return s.repo.ListCodeArtifacts(ctx, userID)
}

// DeleteCodeArtifact hard-deletes an artifact.
func (s *Service) DeleteCodeArtifact(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteCodeArtifact(ctx, userID, id); err != nil {
		return err
	}
	s.record(userID, events.ActionObsolete, "code_artifact", id)
	return nil
}

// --- entities ---

// CreateEntity validates and stores a knowledge-graph entity.
func (s *Service) CreateEntity(ctx context.Context, userID string, e *domain.Entity) (*domain.Entity, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, appErrors.NewValidation("name is required")
	}
	if !domain.IsValidEntityType(e.EntityType) {
		return nil, appErrors.NewValidationf("unknown entity_type %q", e.EntityType)
	}
	if e.EntityType == domain.EntityTypeOther && strings.TrimSpace(e.CustomType) == "" {
		return nil, appErrors.NewValidation("custom_type is required when entity_type is other")
	}
	created, err := s.repo.CreateEntity(ctx, userID, e)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionCreate, "entity", created.ID)
	return created, nil
}

// GetEntity fetches one entity.
func (s *Service) GetEntity(ctx context.Context, userID string, id int64) (*domain.Entity, error) {
	return s.repo.GetEntityByID(ctx, userID, id)
}

// ListEntities lists the user's entities.
func (s *Service) ListEntities(ctx context.Context, userID string) ([]*domain.Entity, error) {
	return s.repo.ListEntities(ctx, userID)
}

// DeleteEntity hard-deletes an entity; relationships cascade.
func (s *Service) DeleteEntity(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteEntity(ctx, userID, id); err != nil {
		return err
	}
	s.record(userID, events.ActionObsolete, "entity", id)
	return nil
}

// CreateRelationship validates and stores a directed entity relationship.
func (s *Service) CreateRelationship(ctx context.Context, userID string, rel *domain.EntityRelationship) (*domain.EntityRelationship, error) {
	if strings.TrimSpace(rel.RelationshipType) == "" {
		return nil, appErrors.NewValidation("relationship_type is required")
	}
	if rel.SourceEntityID == rel.TargetEntityID {
		return nil, appErrors.NewValidation("source and target entity must differ")
	}
	created, err := s.repo.CreateEntityRelationship(ctx, userID, rel)
	if err != nil {
		return nil, err
	}
	s.record(userID, events.ActionLink, "entity", rel.SourceEntityID)
	return created, nil
}

// ListRelationships lists relationships touching the entity.
func (s *Service) ListRelationships(ctx context.Context, userID string, entityID int64) ([]*domain.EntityRelationship, error) {
	return s.repo.ListEntityRelationships(ctx, userID, entityID)
}

func (s *Service) record(userID string, action events.Action, targetType string, id int64) {
	s.bus.Record(events.Event{
		UserID: userID, Action: action,
		TargetType: targetType, TargetID: id,
	})
}
