// Package memory implements the memory lifecycle: validated CRUD, soft
// deletion, automatic linking of new memories to their nearest neighbors, and
// the token-budgeted query composer.
package memory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/retrieval"
	"forgetful-backend/internal/tokenizer"
	appErrors "forgetful-backend/pkg/errors"
)

// Config carries the service-level tuning knobs.
type Config struct {
	// AutoLinkCount is how many nearest neighbors a new memory is linked to.
	// Zero disables auto-linking.
	AutoLinkCount int

	// DefaultTokenBudget applies when a query does not set its own
	// token_context_threshold.
	DefaultTokenBudget int

	// DefaultMaxMemories caps the total memory count per query result when
	// the request leaves it unset.
	DefaultMaxMemories int
}

// Service is the memory application service.
type Service struct {
	repo     repository.Repository
	pipeline *retrieval.Pipeline
	counter  tokenizer.Counter
	bus      events.Recorder
	cfg      Config
	logger   *zap.Logger
}

// NewService wires the memory service.
func NewService(repo repository.Repository, pipeline *retrieval.Pipeline, counter tokenizer.Counter, bus events.Recorder, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NopRecorder{}
	}
	if cfg.DefaultTokenBudget <= 0 {
		cfg.DefaultTokenBudget = 4000
	}
	if cfg.DefaultMaxMemories <= 0 {
		cfg.DefaultMaxMemories = 10
	}
	return &Service{
		repo:     repo,
		pipeline: pipeline,
		counter:  counter,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.Named("memory"),
	}
}

// CreateMemoryRequest is the validated input for a new memory.
type CreateMemoryRequest struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Context    string   `json:"context"`
	Keywords   []string `json:"keywords"`
	Tags       []string `json:"tags"`
	Importance int      `json:"importance"`

	ProjectIDs      []int64 `json:"project_ids"`
	CodeArtifactIDs []int64 `json:"code_artifact_ids"`
	DocumentIDs     []int64 `json:"document_ids"`
	EntityIDs       []int64 `json:"entity_ids"`
}

// CreateMemoryResult carries the stored memory plus the similarity hints the
// auto-linker found, whether or not the links could be written.
type CreateMemoryResult struct {
	Memory          *domain.Memory   `json:"memory"`
	SimilarMemories []*domain.Memory `json:"similar_memories,omitempty"`
}

func validateCreate(req CreateMemoryRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return appErrors.NewValidation("title is required")
	}
	if len(req.Title) > domain.MaxTitleLen {
		return appErrors.NewValidationf("title exceeds %d characters", domain.MaxTitleLen)
	}
	if strings.TrimSpace(req.Content) == "" {
		return appErrors.NewValidation("content is required")
	}
	if len(req.Content) > domain.MaxContentLen {
		return appErrors.NewValidationf("content exceeds %d characters", domain.MaxContentLen)
	}
	if len(req.Context) > domain.MaxContextLen {
		return appErrors.NewValidationf("context exceeds %d characters", domain.MaxContextLen)
	}
	if err := validateStringList("keywords", req.Keywords, domain.MaxKeywords); err != nil {
		return err
	}
	if err := validateStringList("tags", req.Tags, domain.MaxTags); err != nil {
		return err
	}
	if req.Importance < domain.MinImportance || req.Importance > domain.MaxImportance {
		return appErrors.NewValidationf("importance must be between %d and %d", domain.MinImportance, domain.MaxImportance)
	}
	return nil
}

func validateStringList(field string, values []string, max int) error {
	if len(values) > max {
		return appErrors.NewValidationf("%s exceeds %d entries", field, max)
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return appErrors.NewValidationf("%s entries must be non-empty", field)
		}
	}
	return nil
}

// CreateMemory validates, stores, and auto-links the new memory. Auto-link
// failures are logged and swallowed: the create has already committed and
// missing links are recoverable.
func (s *Service) CreateMemory(ctx context.Context, userID string, req CreateMemoryRequest) (*CreateMemoryResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	m, err := s.repo.CreateMemory(ctx, userID, repository.CreateMemoryInput{
		Title:           req.Title,
		Content:         req.Content,
		Context:         req.Context,
		Keywords:        req.Keywords,
		Tags:            req.Tags,
		Importance:      req.Importance,
		ProjectIDs:      req.ProjectIDs,
		CodeArtifactIDs: req.CodeArtifactIDs,
		DocumentIDs:     req.DocumentIDs,
		EntityIDs:       req.EntityIDs,
	})
	if err != nil {
		return nil, err
	}

	result := &CreateMemoryResult{Memory: m}
	if s.cfg.AutoLinkCount > 0 {
		result.SimilarMemories = s.autoLink(ctx, userID, m)
	}

	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionCreate,
		TargetType: "memory", TargetID: m.ID,
	})
	return result, nil
}

// autoLink finds the nearest neighbors and links them. Returns the similar
// list even when link writes fail.
func (s *Service) autoLink(ctx context.Context, userID string, m *domain.Memory) []*domain.Memory {
	similar, err := s.repo.FindSimilarMemories(ctx, userID, m.ID, s.cfg.AutoLinkCount)
	if err != nil {
		s.logger.Warn("auto-link similarity lookup failed",
			zap.Int64("memory_id", m.ID), zap.Error(err))
		return nil
	}
	if len(similar) == 0 {
		return nil
	}

	targets := make([]int64, 0, len(similar))
	for _, sm := range similar {
		targets = append(targets, sm.ID)
	}
	linked, err := s.repo.CreateLinksBatch(ctx, userID, m.ID, targets)
	if err != nil {
		s.logger.Warn("auto-link batch write failed",
			zap.Int64("memory_id", m.ID), zap.Error(err))
		return similar
	}
	m.LinkedMemoryIDs = linked
	return similar
}

// GetMemory returns the memory, obsolete or not.
func (s *Service) GetMemory(ctx context.Context, userID string, id int64) (*domain.Memory, error) {
	m, err := s.repo.GetMemoryByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionRead,
		TargetType: "memory", TargetID: id,
	})
	return m, nil
}

// ListMemories pages the user's memories with strict parameter validation.
func (s *Service) ListMemories(ctx context.Context, userID string, params repository.ListMemoriesParams) ([]*domain.Memory, int, error) {
	if params.SortBy == "" {
		params.SortBy = repository.SortByCreatedAt
	}
	if params.SortOrder == "" {
		params.SortOrder = repository.SortOrderDesc
	}
	if !repository.ValidSortBy(params.SortBy) {
		return nil, 0, appErrors.NewValidation("sort_by must be one of created_at, updated_at, importance, title")
	}
	if !repository.ValidSortOrder(params.SortOrder) {
		return nil, 0, appErrors.NewValidation("sort_order must be asc or desc")
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		return nil, 0, appErrors.NewValidation("limit must not exceed 100")
	}
	if params.Offset < 0 {
		return nil, 0, appErrors.NewValidation("offset must not be negative")
	}
	if params.ImportanceMin != nil && (*params.ImportanceMin < domain.MinImportance || *params.ImportanceMin > domain.MaxImportance) {
		return nil, 0, appErrors.NewValidationf("importance_min must be between %d and %d", domain.MinImportance, domain.MaxImportance)
	}
	return s.repo.ListMemories(ctx, userID, params)
}

// UpdateMemoryRequest applies PATCH semantics via pointer fields.
type UpdateMemoryRequest struct {
	Title      *string   `json:"title"`
	Content    *string   `json:"content"`
	Context    *string   `json:"context"`
	Keywords   *[]string `json:"keywords"`
	Tags       *[]string `json:"tags"`
	Importance *int      `json:"importance"`

	ProjectIDs      *[]int64 `json:"project_ids"`
	CodeArtifactIDs *[]int64 `json:"code_artifact_ids"`
	DocumentIDs     *[]int64 `json:"document_ids"`
	EntityIDs       *[]int64 `json:"entity_ids"`
}

func validateUpdate(req UpdateMemoryRequest) error {
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return appErrors.NewValidation("title must not be empty")
		}
		if len(*req.Title) > domain.MaxTitleLen {
			return appErrors.NewValidationf("title exceeds %d characters", domain.MaxTitleLen)
		}
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return appErrors.NewValidation("content must not be empty")
		}
		if len(*req.Content) > domain.MaxContentLen {
			return appErrors.NewValidationf("content exceeds %d characters", domain.MaxContentLen)
		}
	}
	if req.Context != nil && len(*req.Context) > domain.MaxContextLen {
		return appErrors.NewValidationf("context exceeds %d characters", domain.MaxContextLen)
	}
	if req.Keywords != nil {
		if err := validateStringList("keywords", *req.Keywords, domain.MaxKeywords); err != nil {
			return err
		}
	}
	if req.Tags != nil {
		if err := validateStringList("tags", *req.Tags, domain.MaxTags); err != nil {
			return err
		}
	}
	if req.Importance != nil && (*req.Importance < domain.MinImportance || *req.Importance > domain.MaxImportance) {
		return appErrors.NewValidationf("importance must be between %d and %d", domain.MinImportance, domain.MaxImportance)
	}
	return nil
}

// UpdateMemory patches the memory, re-embedding when a search field changed.
func (s *Service) UpdateMemory(ctx context.Context, userID string, id int64, req UpdateMemoryRequest) (*domain.Memory, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	patch := repository.MemoryPatch{
		Title: req.Title, Content: req.Content, Context: req.Context,
		Keywords: req.Keywords, Tags: req.Tags, Importance: req.Importance,
		ProjectIDs: req.ProjectIDs, CodeArtifactIDs: req.CodeArtifactIDs,
		DocumentIDs: req.DocumentIDs, EntityIDs: req.EntityIDs,
	}
	m, err := s.repo.UpdateMemory(ctx, userID, id, patch, patch.SearchFieldsChanged())
	if err != nil {
		return nil, err
	}

	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionUpdate,
		TargetType: "memory", TargetID: id,
	})
	return m, nil
}

// MarkObsolete soft-deletes the memory.
func (s *Service) MarkObsolete(ctx context.Context, userID string, id int64, reason string, supersededBy *int64) error {
	if err := s.repo.MarkObsolete(ctx, userID, id, reason, supersededBy); err != nil {
		return err
	}
	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionObsolete,
		TargetType: "memory", TargetID: id,
	})
	return nil
}

// CreateLink links two memories explicitly.
func (s *Service) CreateLink(ctx context.Context, userID string, sourceID, targetID int64) (*domain.MemoryLink, error) {
	l, err := s.repo.CreateLink(ctx, userID, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionLink,
		TargetType: "memory", TargetID: sourceID,
		Detail: map[string]interface{}{"target_id": targetID},
	})
	return l, nil
}

// LinkRelated links the source to every listed memory, skipping self-links,
// duplicates, and missing targets silently. The returned IDs are the targets
// a new link was actually written for.
func (s *Service) LinkRelated(ctx context.Context, userID string, sourceID int64, targetIDs []int64) ([]int64, error) {
	if len(targetIDs) == 0 {
		return nil, appErrors.NewValidation("related_ids is required")
	}
	linked, err := s.repo.CreateLinksBatch(ctx, userID, sourceID, targetIDs)
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		s.bus.Record(events.Event{
			UserID: userID, Action: events.ActionLink,
			TargetType: "memory", TargetID: sourceID,
			Detail: map[string]interface{}{"linked_ids": linked},
		})
	}
	return linked, nil
}

// DeleteLink removes a link in either direction.
func (s *Service) DeleteLink(ctx context.Context, userID string, sourceID, targetID int64) error {
	if err := s.repo.DeleteLink(ctx, userID, sourceID, targetID); err != nil {
		return err
	}
	s.bus.Record(events.Event{
		UserID: userID, Action: events.ActionUnlink,
		TargetType: "memory", TargetID: sourceID,
		Detail: map[string]interface{}{"target_id": targetID},
	})
	return nil
}

// GetLinkedMemories returns the one-hop neighbors of a memory.
func (s *Service) GetLinkedMemories(ctx context.Context, userID string, memoryID int64, maxLinks int) ([]*domain.Memory, error) {
	if maxLinks <= 0 {
		maxLinks = 10
	}
	return s.repo.GetLinkedMemories(ctx, userID, memoryID, nil, maxLinks)
}

// Search runs the retrieval pipeline without the composer, for the plain
// search endpoint.
func (s *Service) Search(ctx context.Context, userID string, params retrieval.Params) ([]*domain.Memory, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, appErrors.NewValidation("query is required")
	}
	params.UserID = userID
	return s.pipeline.Search(ctx, params)
}
