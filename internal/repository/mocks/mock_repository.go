// Package mocks provides a fully in-memory Repository implementation with
// exact cosine ranking. The service test suites run against it, and it
// doubles as the reference for backend semantics: whatever this store does,
// the SQLite and PostgreSQL backends must do too.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// MockRepository is a thread-safe in-memory Repository.
type MockRepository struct {
	mu sync.RWMutex

	embedder embedding.Adapter

	users    map[string]*domain.User
	memories map[int64]*domain.Memory
	links    map[string]*domain.MemoryLink
	projects map[int64]*domain.Project
	docs     map[int64]*domain.Document
	arts     map[int64]*domain.CodeArtifact
	entities map[int64]*domain.Entity
	rels     map[int64]*domain.EntityRelationship

	nextMemoryID  int64
	nextLinkID    int64
	nextProjectID int64
	nextDocID     int64
	nextArtID     int64
	nextEntityID  int64
	nextRelID     int64

	// forced errors per operation name, for fault-injection tests
	errs map[string]error

	now func() time.Time
}

// NewMockRepository creates an empty store backed by the given embedder.
func NewMockRepository(embedder embedding.Adapter) *MockRepository {
	return &MockRepository{
		embedder: embedder,
		users:    make(map[string]*domain.User),
		memories: make(map[int64]*domain.Memory),
		links:    make(map[string]*domain.MemoryLink),
		projects: make(map[int64]*domain.Project),
		docs:     make(map[int64]*domain.Document),
		arts:     make(map[int64]*domain.CodeArtifact),
		entities: make(map[int64]*domain.Entity),
		rels:     make(map[int64]*domain.EntityRelationship),
		errs:     make(map[string]error),
		now:      time.Now,
	}
}

// SetError forces the named operation to fail until cleared with nil.
func (r *MockRepository) SetError(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

// SetClock overrides the timestamp source for deterministic tests.
func (r *MockRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MockRepository) forced(op string) error {
	if err, ok := r.errs[op]; ok {
		return err
	}
	return nil
}

func linkKey(a, b int64) string {
	lo, hi := domain.CanonicalLinkPair(a, b)
	return fmt.Sprintf("%d-%d", lo, hi)
}

// CreateMemory stores a new memory with its generated embedding.
func (r *MockRepository) CreateMemory(ctx context.Context, userID string, in repository.CreateMemoryInput) (*domain.Memory, error) {
	text := domain.JoinEmbeddingText(in.Title, in.Content, in.Context, in.Keywords, in.Tags)
	vec, err := r.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to generate embedding")
	}
	if err := embedding.CheckDimension(vec, r.embedder.Dimensions()); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("CreateMemory"); err != nil {
		return nil, err
	}

	r.nextMemoryID++
	now := r.now()
	m := &domain.Memory{
		ID:              r.nextMemoryID,
		UserID:          userID,
		Title:           in.Title,
		Content:         in.Content,
		Context:         in.Context,
		Keywords:        append([]string(nil), in.Keywords...),
		Tags:            append([]string(nil), in.Tags...),
		Importance:      in.Importance,
		ProjectIDs:      append([]int64(nil), in.ProjectIDs...),
		CodeArtifactIDs: append([]int64(nil), in.CodeArtifactIDs...),
		DocumentIDs:     append([]int64(nil), in.DocumentIDs...),
		EntityIDs:       append([]int64(nil), in.EntityIDs...),
		Embedding:       vec,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.memories[m.ID] = m
	return copyMemory(m), nil
}

// GetMemoryByID returns the memory even when obsolete.
func (r *MockRepository) GetMemoryByID(_ context.Context, userID string, id int64) (*domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forced("GetMemoryByID"); err != nil {
		return nil, err
	}
	m, ok := r.memories[id]
	if !ok || m.UserID != userID {
		return nil, appErrors.NewNotFoundf("memory %d not found", id)
	}
	out := copyMemory(m)
	out.LinkedMemoryIDs = r.linkedIDsLocked(id)
	return out, nil
}

// ListMemories pages memories with strict filter semantics.
func (r *MockRepository) ListMemories(_ context.Context, userID string, params repository.ListMemoriesParams) ([]*domain.Memory, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forced("ListMemories"); err != nil {
		return nil, 0, err
	}

	var rows []*domain.Memory
	for _, m := range r.memories {
		if m.UserID != userID {
			continue
		}
		if m.IsObsolete && !params.IncludeObsolete {
			continue
		}
		if params.ImportanceMin != nil && m.Importance < *params.ImportanceMin {
			continue
		}
		if params.ProjectID != nil && !containsID(m.ProjectIDs, *params.ProjectID) {
			continue
		}
		if len(params.Tags) > 0 && !anyTagMatch(m.Tags, params.Tags) {
			continue
		}
		rows = append(rows, m)
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = repository.SortByCreatedAt
	}
	desc := params.SortOrder != repository.SortOrderAsc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		var less bool
		switch sortBy {
		case repository.SortByUpdatedAt:
			less = a.UpdatedAt.Before(b.UpdatedAt)
		case repository.SortByImportance:
			less = a.Importance < b.Importance
		case repository.SortByTitle:
			less = strings.ToLower(a.Title) < strings.ToLower(b.Title)
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if desc {
			return !less && !equalOn(a, b, sortBy)
		}
		return less
	})

	total := len(rows)
	start := params.Offset
	if start > total {
		start = total
	}
	end := total
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}

	out := make([]*domain.Memory, 0, end-start)
	for _, m := range rows[start:end] {
		c := copyMemory(m)
		c.LinkedMemoryIDs = r.linkedIDsLocked(m.ID)
		out = append(out, c)
	}
	return out, total, nil
}

func equalOn(a, b *domain.Memory, sortBy string) bool {
	switch sortBy {
	case repository.SortByUpdatedAt:
		return a.UpdatedAt.Equal(b.UpdatedAt)
	case repository.SortByImportance:
		return a.Importance == b.Importance
	case repository.SortByTitle:
		return strings.EqualFold(a.Title, b.Title)
	default:
		return a.CreatedAt.Equal(b.CreatedAt)
	}
}

// UpdateMemory applies the patch atomically, regenerating the embedding when
// search fields changed.
func (r *MockRepository) UpdateMemory(ctx context.Context, userID string, id int64, patch repository.MemoryPatch, searchFieldsChanged bool) (*domain.Memory, error) {
	r.mu.Lock()
	m, ok := r.memories[id]
	if !ok || m.UserID != userID {
		r.mu.Unlock()
		return nil, appErrors.NewNotFoundf("memory %d not found", id)
	}
	if err := r.forced("UpdateMemory"); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	merged := copyMemory(m)
	applyPatch(merged, patch)
	r.mu.Unlock()

	if searchFieldsChanged {
		vec, err := r.embedder.GenerateEmbedding(ctx, merged.EmbeddingText())
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to regenerate embedding")
		}
		if err := embedding.CheckDimension(vec, r.embedder.Dimensions()); err != nil {
			return nil, err
		}
		merged.Embedding = vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.memories[id]
	if !ok || cur.UserID != userID {
		return nil, appErrors.NewNotFoundf("memory %d not found", id)
	}
	merged.UpdatedAt = r.now()
	r.memories[id] = merged
	out := copyMemory(merged)
	out.LinkedMemoryIDs = r.linkedIDsLocked(id)
	return out, nil
}

func applyPatch(m *domain.Memory, p repository.MemoryPatch) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Context != nil {
		m.Context = *p.Context
	}
	if p.Keywords != nil {
		m.Keywords = append([]string(nil), (*p.Keywords)...)
	}
	if p.Tags != nil {
		m.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Importance != nil {
		m.Importance = *p.Importance
	}
	if p.ProjectIDs != nil {
		m.ProjectIDs = append([]int64(nil), (*p.ProjectIDs)...)
	}
	if p.CodeArtifactIDs != nil {
		m.CodeArtifactIDs = append([]int64(nil), (*p.CodeArtifactIDs)...)
	}
	if p.DocumentIDs != nil {
		m.DocumentIDs = append([]int64(nil), (*p.DocumentIDs)...)
	}
	if p.EntityIDs != nil {
		m.EntityIDs = append([]int64(nil), (*p.EntityIDs)...)
	}
}

// MarkObsolete soft-deletes. Idempotent on already-obsolete rows.
func (r *MockRepository) MarkObsolete(_ context.Context, userID string, id int64, reason string, supersededBy *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("MarkObsolete"); err != nil {
		return err
	}
	m, ok := r.memories[id]
	if !ok || m.UserID != userID {
		return appErrors.NewNotFoundf("memory %d not found", id)
	}
	if supersededBy != nil {
		if *supersededBy == id {
			return appErrors.NewValidation("superseded_by cannot reference the memory itself")
		}
		s, ok := r.memories[*supersededBy]
		if !ok || s.UserID != userID {
			return appErrors.NewNotFoundf("superseding memory %d not found", *supersededBy)
		}
	}
	now := r.now()
	m.IsObsolete = true
	m.ObsoleteReason = reason
	m.SupersededBy = supersededBy
	if m.ObsoletedAt == nil {
		m.ObsoletedAt = &now
	}
	m.UpdatedAt = now
	return nil
}

// SemanticSearch ranks by exact cosine distance with deterministic ties.
func (r *MockRepository) SemanticSearch(ctx context.Context, userID string, params repository.SemanticSearchParams) ([]*domain.Memory, error) {
	queryVec, err := r.embedder.GenerateEmbedding(ctx, params.Query)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to embed query")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forced("SemanticSearch"); err != nil {
		return nil, err
	}

	exclude := make(map[int64]bool, len(params.ExcludeIDs))
	for _, id := range params.ExcludeIDs {
		exclude[id] = true
	}

	type scored struct {
		m    *domain.Memory
		dist float64
	}
	var candidates []scored
	for _, m := range r.memories {
		if m.UserID != userID || m.IsObsolete || exclude[m.ID] {
			continue
		}
		if params.ImportanceThreshold != nil && m.Importance < *params.ImportanceThreshold {
			continue
		}
		if len(params.ProjectIDs) > 0 && !anyIDMatch(m.ProjectIDs, params.ProjectIDs) {
			continue
		}
		candidates = append(candidates, scored{m: m, dist: 1 - embedding.Cosine(queryVec, m.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return lessByDistance(candidates[i].dist, candidates[j].dist, candidates[i].m, candidates[j].m)
	})

	k := params.K
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	out := make([]*domain.Memory, 0, k)
	for _, c := range candidates[:k] {
		cm := copyMemory(c.m)
		cm.LinkedMemoryIDs = r.linkedIDsLocked(c.m.ID)
		out = append(out, cm)
	}
	return out, nil
}

// lessByDistance implements the contract's tie-breaking: distance asc, then
// importance desc, then created_at desc, then id asc.
func lessByDistance(da, db float64, a, b *domain.Memory) bool {
	if da != db {
		return da < db
	}
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// FindSimilarMemories ranks against the stored embedding of memoryID.
func (r *MockRepository) FindSimilarMemories(_ context.Context, userID string, memoryID int64, maxLinks int) ([]*domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forced("FindSimilarMemories"); err != nil {
		return nil, err
	}
	src, ok := r.memories[memoryID]
	if !ok || src.UserID != userID {
		return nil, appErrors.NewNotFoundf("memory %d not found", memoryID)
	}

	type scored struct {
		m    *domain.Memory
		dist float64
	}
	var candidates []scored
	for _, m := range r.memories {
		if m.UserID != userID || m.IsObsolete || m.ID == memoryID {
			continue
		}
		candidates = append(candidates, scored{m: m, dist: 1 - embedding.Cosine(src.Embedding, m.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessByDistance(candidates[i].dist, candidates[j].dist, candidates[i].m, candidates[j].m)
	})
	if maxLinks > 0 && maxLinks < len(candidates) {
		candidates = candidates[:maxLinks]
	}
	out := make([]*domain.Memory, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, copyMemory(c.m))
	}
	return out, nil
}

// CreateLink writes one canonical row; duplicates are AlreadyLinked.
func (r *MockRepository) CreateLink(_ context.Context, userID string, sourceID, targetID int64) (*domain.MemoryLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("CreateLink"); err != nil {
		return nil, err
	}
	return r.createLinkLocked(userID, sourceID, targetID)
}

func (r *MockRepository) createLinkLocked(userID string, sourceID, targetID int64) (*domain.MemoryLink, error) {
	if sourceID == targetID {
		return nil, appErrors.NewValidation("cannot link a memory to itself")
	}
	src, ok := r.memories[sourceID]
	if !ok || src.UserID != userID {
		return nil, appErrors.NewNotFoundf("memory %d not found", sourceID)
	}
	tgt, ok := r.memories[targetID]
	if !ok || tgt.UserID != userID {
		return nil, appErrors.NewNotFoundf("memory %d not found", targetID)
	}
	key := linkKey(sourceID, targetID)
	if _, exists := r.links[key]; exists {
		return nil, appErrors.NewAlreadyLinked(fmt.Sprintf("memories %d and %d already linked", sourceID, targetID))
	}
	lo, hi := domain.CanonicalLinkPair(sourceID, targetID)
	r.nextLinkID++
	link := &domain.MemoryLink{
		ID:        r.nextLinkID,
		UserID:    userID,
		SourceID:  lo,
		TargetID:  hi,
		CreatedAt: r.now(),
	}
	r.links[key] = link
	out := *link
	return &out, nil
}

// CreateLinksBatch links each target, skipping self-links, duplicates, and
// missing targets. Returns the targets actually linked.
func (r *MockRepository) CreateLinksBatch(_ context.Context, userID string, sourceID int64, targetIDs []int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("CreateLinksBatch"); err != nil {
		return nil, err
	}
	linked := make([]int64, 0, len(targetIDs))
	for _, tid := range targetIDs {
		if tid == sourceID {
			continue
		}
		if _, err := r.createLinkLocked(userID, sourceID, tid); err != nil {
			if appErrors.IsAlreadyLinked(err) || appErrors.IsNotFound(err) || appErrors.IsValidation(err) {
				continue
			}
			return linked, err
		}
		linked = append(linked, tid)
	}
	return linked, nil
}

// GetLinkedMemories returns filtered one-hop neighbors ordered by importance.
func (r *MockRepository) GetLinkedMemories(_ context.Context, userID string, memoryID int64, projectIDs []int64, maxLinks int) ([]*domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forced("GetLinkedMemories"); err != nil {
		return nil, err
	}
	var neighbors []*domain.Memory
	for _, nid := range r.linkedIDsLocked(memoryID) {
		n, ok := r.memories[nid]
		if !ok || n.UserID != userID || n.IsObsolete {
			continue
		}
		if len(projectIDs) > 0 && !anyIDMatch(n.ProjectIDs, projectIDs) {
			continue
		}
		neighbors = append(neighbors, n)
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Importance != neighbors[j].Importance {
			return neighbors[i].Importance > neighbors[j].Importance
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if maxLinks > 0 && maxLinks < len(neighbors) {
		neighbors = neighbors[:maxLinks]
	}
	out := make([]*domain.Memory, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, copyMemory(n))
	}
	return out, nil
}

// GetLinkedMemoryIDs returns the neighbor IDs in ascending order.
func (r *MockRepository) GetLinkedMemoryIDs(_ context.Context, _ string, memoryID int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linkedIDsLocked(memoryID), nil
}

func (r *MockRepository) linkedIDsLocked(memoryID int64) []int64 {
	var ids []int64
	for _, l := range r.links {
		if l.SourceID == memoryID {
			ids = append(ids, l.TargetID)
		} else if l.TargetID == memoryID {
			ids = append(ids, l.SourceID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DeleteLink removes the pair in either order.
func (r *MockRepository) DeleteLink(_ context.Context, userID string, sourceID, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := linkKey(sourceID, targetID)
	l, ok := r.links[key]
	if !ok || l.UserID != userID {
		return appErrors.NewNotFound("link not found")
	}
	delete(r.links, key)
	return nil
}

// LinkRows returns a snapshot of every stored link, for invariant tests.
func (r *MockRepository) LinkRows() []*domain.MemoryLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.MemoryLink, 0, len(r.links))
	for _, l := range r.links {
		c := *l
		out = append(out, &c)
	}
	return out
}

// AssociateMemory updates M:N junctions; empty non-nil slices clear.
func (r *MockRepository) AssociateMemory(_ context.Context, userID string, memoryID int64, assoc repository.Associations) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[memoryID]
	if !ok || m.UserID != userID {
		return appErrors.NewNotFoundf("memory %d not found", memoryID)
	}
	if assoc.ProjectIDs != nil {
		m.ProjectIDs = append([]int64(nil), (*assoc.ProjectIDs)...)
	}
	if assoc.CodeArtifactIDs != nil {
		m.CodeArtifactIDs = append([]int64(nil), (*assoc.CodeArtifactIDs)...)
	}
	if assoc.DocumentIDs != nil {
		m.DocumentIDs = append([]int64(nil), (*assoc.DocumentIDs)...)
	}
	if assoc.EntityIDs != nil {
		m.EntityIDs = append([]int64(nil), (*assoc.EntityIDs)...)
	}
	m.UpdatedAt = r.now()
	return nil
}

// Ping always succeeds.
func (r *MockRepository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *MockRepository) Close() error { return nil }

func copyMemory(m *domain.Memory) *domain.Memory {
	c := *m
	c.Keywords = append([]string(nil), m.Keywords...)
	c.Tags = append([]string(nil), m.Tags...)
	c.ProjectIDs = append([]int64(nil), m.ProjectIDs...)
	c.CodeArtifactIDs = append([]int64(nil), m.CodeArtifactIDs...)
	c.DocumentIDs = append([]int64(nil), m.DocumentIDs...)
	c.EntityIDs = append([]int64(nil), m.EntityIDs...)
	c.Embedding = append([]float32(nil), m.Embedding...)
	c.LinkedMemoryIDs = nil
	return &c
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func anyIDMatch(a, b []int64) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func anyTagMatch(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
