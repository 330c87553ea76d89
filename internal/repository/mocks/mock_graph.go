package mocks

import (
	"context"
	"sort"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// --- users ---

// GetUserByID looks a user up by UUID.
func (r *MockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, appErrors.NewNotFoundf("user %s not found", id)
	}
	c := *u
	return &c, nil
}

// GetUserByExternalID looks a user up by identity-provider subject.
func (r *MockRepository) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			c := *u
			return &c, nil
		}
	}
	return nil, appErrors.NewNotFoundf("user with external id %s not found", externalID)
}

// CreateUser stores a user; external_id must be unique.
func (r *MockRepository) CreateUser(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ExternalID == u.ExternalID {
			return nil, appErrors.NewValidationf("user with external id %s already exists", u.ExternalID)
		}
	}
	c := *u
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.users[c.ID] = &c
	out := c
	return &out, nil
}

// --- projects ---

// CreateProject stores a project.
func (r *MockRepository) CreateProject(_ context.Context, userID string, p *domain.Project) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextProjectID++
	c := *p
	c.ID = r.nextProjectID
	c.UserID = userID
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.projects[c.ID] = &c
	out := c
	return &out, nil
}

// GetProjectByID fetches one project.
func (r *MockRepository) GetProjectByID(_ context.Context, userID string, id int64) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return nil, appErrors.NewNotFoundf("project %d not found", id)
	}
	c := *p
	return &c, nil
}

// ListProjects returns every project for the user, id ascending.
func (r *MockRepository) ListProjects(_ context.Context, userID string) ([]*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Project
	for _, p := range r.projects {
		if p.UserID == userID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateProject applies PATCH semantics.
func (r *MockRepository) UpdateProject(_ context.Context, userID string, id int64, patch repository.ProjectPatch) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return nil, appErrors.NewNotFoundf("project %d not found", id)
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Tags != nil {
		p.Tags = append([]string(nil), (*patch.Tags)...)
	}
	p.UpdatedAt = r.now()
	c := *p
	return &c, nil
}

// DeleteProject hard-deletes and cascades to junctions and single FKs.
func (r *MockRepository) DeleteProject(_ context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return appErrors.NewNotFoundf("project %d not found", id)
	}
	delete(r.projects, id)
	for _, m := range r.memories {
		m.ProjectIDs = removeID(m.ProjectIDs, id)
	}
	for _, d := range r.docs {
		if d.ProjectID != nil && *d.ProjectID == id {
			d.ProjectID = nil
		}
	}
	for _, a := range r.arts {
		if a.ProjectID != nil && *a.ProjectID == id {
			a.ProjectID = nil
		}
	}
	for _, e := range r.entities {
		if e.ProjectID != nil && *e.ProjectID == id {
			e.ProjectID = nil
		}
	}
	return nil
}

// --- documents ---

// CreateDocument stores a document reference.
func (r *MockRepository) CreateDocument(_ context.Context, userID string, d *domain.Document) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextDocID++
	c := *d
	c.ID = r.nextDocID
	c.UserID = userID
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.docs[c.ID] = &c
	out := c
	return &out, nil
}

// GetDocumentByID fetches one document.
func (r *MockRepository) GetDocumentByID(_ context.Context, userID string, id int64) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok || d.UserID != userID {
		return nil, appErrors.NewNotFoundf("document %d not found", id)
	}
	c := *d
	return &c, nil
}

// ListDocuments returns every document for the user, id ascending.
func (r *MockRepository) ListDocuments(_ context.Context, userID string) ([]*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Document
	for _, d := range r.docs {
		if d.UserID == userID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteDocument hard-deletes and cascades to memory junctions.
func (r *MockRepository) DeleteDocument(_ context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.UserID != userID {
		return appErrors.NewNotFoundf("document %d not found", id)
	}
	delete(r.docs, id)
	for _, m := range r.memories {
		m.DocumentIDs = removeID(m.DocumentIDs, id)
	}
	return nil
}

// --- code artifacts ---

// CreateCodeArtifact stores a code artifact reference.
func (r *MockRepository) CreateCodeArtifact(_ context.Context, userID string, a *domain.CodeArtifact) (*domain.CodeArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextArtID++
	c := *a
	c.ID = r.nextArtID
	c.UserID = userID
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.arts[c.ID] = &c
	out := c
	return &out, nil
}

// GetCodeArtifactByID fetches one artifact.
func (r *MockRepository) GetCodeArtifactByID(_ context.Context, userID string, id int64) (*domain.CodeArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.arts[id]
	if !ok || a.UserID != userID {
		return nil, appErrors.NewNotFoundf("code artifact %d not found", id)
	}
	c := *a
	return &c, nil
}

// ListCodeArtifacts returns every artifact for the user, id ascending.
func (r *MockRepository) ListCodeArtifacts(_ context.Context, userID string) ([]*domain.CodeArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.CodeArtifact
	for _, a := range r.arts {
		if a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteCodeArtifact hard-deletes and cascades to memory junctions.
func (r *MockRepository) DeleteCodeArtifact(_ context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.arts[id]
	if !ok || a.UserID != userID {
		return appErrors.NewNotFoundf("code artifact %d not found", id)
	}
	delete(r.arts, id)
	for _, m := range r.memories {
		m.CodeArtifactIDs = removeID(m.CodeArtifactIDs, id)
	}
	return nil
}

// --- entities ---

// CreateEntity stores a graph entity.
func (r *MockRepository) CreateEntity(_ context.Context, userID string, e *domain.Entity) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEntityID++
	c := *e
	c.ID = r.nextEntityID
	c.UserID = userID
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.entities[c.ID] = &c
	out := c
	return &out, nil
}

// GetEntityByID fetches one entity.
func (r *MockRepository) GetEntityByID(_ context.Context, userID string, id int64) (*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok || e.UserID != userID {
		return nil, appErrors.NewNotFoundf("entity %d not found", id)
	}
	c := *e
	return &c, nil
}

// ListEntities returns every entity for the user, id ascending.
func (r *MockRepository) ListEntities(_ context.Context, userID string) ([]*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Entity
	for _, e := range r.entities {
		if e.UserID == userID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteEntity hard-deletes, cascading to relationships and junctions.
func (r *MockRepository) DeleteEntity(_ context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.UserID != userID {
		return appErrors.NewNotFoundf("entity %d not found", id)
	}
	delete(r.entities, id)
	for rid, rel := range r.rels {
		if rel.SourceEntityID == id || rel.TargetEntityID == id {
			delete(r.rels, rid)
		}
	}
	for _, m := range r.memories {
		m.EntityIDs = removeID(m.EntityIDs, id)
	}
	return nil
}

// CreateEntityRelationship enforces (source, target, type) uniqueness.
func (r *MockRepository) CreateEntityRelationship(_ context.Context, userID string, rel *domain.EntityRelationship) (*domain.EntityRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.entities[rel.SourceEntityID]
	if !ok || src.UserID != userID {
		return nil, appErrors.NewNotFoundf("entity %d not found", rel.SourceEntityID)
	}
	tgt, ok := r.entities[rel.TargetEntityID]
	if !ok || tgt.UserID != userID {
		return nil, appErrors.NewNotFoundf("entity %d not found", rel.TargetEntityID)
	}
	for _, existing := range r.rels {
		if existing.SourceEntityID == rel.SourceEntityID &&
			existing.TargetEntityID == rel.TargetEntityID &&
			existing.RelationshipType == rel.RelationshipType {
			return nil, appErrors.NewValidation("relationship already exists")
		}
	}
	r.nextRelID++
	c := *rel
	c.ID = r.nextRelID
	c.UserID = userID
	c.CreatedAt = r.now()
	r.rels[c.ID] = &c
	out := c
	return &out, nil
}

// ListEntityRelationships returns relationships touching entityID.
func (r *MockRepository) ListEntityRelationships(_ context.Context, userID string, entityID int64) ([]*domain.EntityRelationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.EntityRelationship
	for _, rel := range r.rels {
		if rel.UserID != userID {
			continue
		}
		if rel.SourceEntityID == entityID || rel.TargetEntityID == entityID {
			c := *rel
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- traversal ---

// NodeExists reports presence; obsolete memories count as absent.
func (r *MockRepository) NodeExists(_ context.Context, userID string, ref domain.NodeRef) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch ref.Type {
	case domain.NodeTypeMemory:
		m, ok := r.memories[ref.ID]
		return ok && m.UserID == userID && !m.IsObsolete, nil
	case domain.NodeTypeEntity:
		e, ok := r.entities[ref.ID]
		return ok && e.UserID == userID, nil
	case domain.NodeTypeProject:
		p, ok := r.projects[ref.ID]
		return ok && p.UserID == userID, nil
	case domain.NodeTypeDocument:
		d, ok := r.docs[ref.ID]
		return ok && d.UserID == userID, nil
	case domain.NodeTypeCodeArtifact:
		a, ok := r.arts[ref.ID]
		return ok && a.UserID == userID, nil
	}
	return false, appErrors.NewValidationf("unknown node type %s", ref.Type)
}

// NeighborRefs enumerates direct neighbors restricted to allowed types.
func (r *MockRepository) NeighborRefs(_ context.Context, userID string, ref domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.NodeRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[domain.NodeRef]bool)
	var out []domain.NodeRef
	add := func(n domain.NodeRef) {
		if !allowed[n.Type] || seen[n] {
			return
		}
		if n.Type == domain.NodeTypeMemory {
			m, ok := r.memories[n.ID]
			if !ok || m.UserID != userID || m.IsObsolete {
				return
			}
		}
		seen[n] = true
		out = append(out, n)
	}

	switch ref.Type {
	case domain.NodeTypeMemory:
		m, ok := r.memories[ref.ID]
		if !ok || m.UserID != userID {
			return nil, nil
		}
		for _, nid := range r.linkedIDsLocked(ref.ID) {
			add(domain.NodeRef{Type: domain.NodeTypeMemory, ID: nid})
		}
		for _, id := range m.ProjectIDs {
			add(domain.NodeRef{Type: domain.NodeTypeProject, ID: id})
		}
		for _, id := range m.DocumentIDs {
			add(domain.NodeRef{Type: domain.NodeTypeDocument, ID: id})
		}
		for _, id := range m.CodeArtifactIDs {
			add(domain.NodeRef{Type: domain.NodeTypeCodeArtifact, ID: id})
		}
		for _, id := range m.EntityIDs {
			add(domain.NodeRef{Type: domain.NodeTypeEntity, ID: id})
		}
	case domain.NodeTypeEntity:
		for _, rel := range r.rels {
			if rel.UserID != userID {
				continue
			}
			if rel.SourceEntityID == ref.ID {
				add(domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.TargetEntityID})
			} else if rel.TargetEntityID == ref.ID {
				add(domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.SourceEntityID})
			}
		}
		for _, m := range r.memories {
			if m.UserID == userID && containsID(m.EntityIDs, ref.ID) {
				add(domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
			}
		}
	case domain.NodeTypeProject:
		for _, m := range r.memories {
			if m.UserID == userID && containsID(m.ProjectIDs, ref.ID) {
				add(domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
			}
		}
		for _, d := range r.docs {
			if d.UserID == userID && d.ProjectID != nil && *d.ProjectID == ref.ID {
				add(domain.NodeRef{Type: domain.NodeTypeDocument, ID: d.ID})
			}
		}
		for _, a := range r.arts {
			if a.UserID == userID && a.ProjectID != nil && *a.ProjectID == ref.ID {
				add(domain.NodeRef{Type: domain.NodeTypeCodeArtifact, ID: a.ID})
			}
		}
	case domain.NodeTypeDocument:
		d, ok := r.docs[ref.ID]
		if ok && d.UserID == userID && d.ProjectID != nil {
			add(domain.NodeRef{Type: domain.NodeTypeProject, ID: *d.ProjectID})
		}
		for _, m := range r.memories {
			if m.UserID == userID && containsID(m.DocumentIDs, ref.ID) {
				add(domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
			}
		}
	case domain.NodeTypeCodeArtifact:
		a, ok := r.arts[ref.ID]
		if ok && a.UserID == userID && a.ProjectID != nil {
			add(domain.NodeRef{Type: domain.NodeTypeProject, ID: *a.ProjectID})
		}
		for _, m := range r.memories {
			if m.UserID == userID && containsID(m.CodeArtifactIDs, ref.ID) {
				add(domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FetchNodes bulk-hydrates row data per type.
func (r *MockRepository) FetchNodes(_ context.Context, userID string, refs []domain.NodeRef) (map[domain.NodeRef]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.NodeRef]interface{}, len(refs))
	for _, ref := range refs {
		switch ref.Type {
		case domain.NodeTypeMemory:
			if m, ok := r.memories[ref.ID]; ok && m.UserID == userID {
				out[ref] = copyMemory(m)
			}
		case domain.NodeTypeEntity:
			if e, ok := r.entities[ref.ID]; ok && e.UserID == userID {
				c := *e
				out[ref] = &c
			}
		case domain.NodeTypeProject:
			if p, ok := r.projects[ref.ID]; ok && p.UserID == userID {
				c := *p
				out[ref] = &c
			}
		case domain.NodeTypeDocument:
			if d, ok := r.docs[ref.ID]; ok && d.UserID == userID {
				c := *d
				out[ref] = &c
			}
		case domain.NodeTypeCodeArtifact:
			if a, ok := r.arts[ref.ID]; ok && a.UserID == userID {
				c := *a
				out[ref] = &c
			}
		}
	}
	return out, nil
}

// EdgesAmong assembles every stored edge with both endpoints in refs.
func (r *MockRepository) EdgesAmong(_ context.Context, userID string, refs []domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.SubgraphEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in := make(map[domain.NodeRef]bool, len(refs))
	for _, ref := range refs {
		in[ref] = true
	}
	has := func(t domain.NodeType, id int64) bool {
		return in[domain.NodeRef{Type: t, ID: id}]
	}

	seen := make(map[string]bool)
	var edges []domain.SubgraphEdge
	add := func(e domain.SubgraphEdge) {
		if seen[e.ID] {
			return
		}
		seen[e.ID] = true
		edges = append(edges, e)
	}

	if allowed[domain.NodeTypeMemory] {
		for _, l := range r.links {
			if l.UserID != userID {
				continue
			}
			if has(domain.NodeTypeMemory, l.SourceID) && has(domain.NodeTypeMemory, l.TargetID) {
				add(domain.SubgraphEdge{
					ID:       domain.UndirectedEdgeID(domain.NodeTypeMemory, l.SourceID, l.TargetID),
					Type:     domain.EdgeTypeMemoryLink,
					SourceID: domain.NodeRef{Type: domain.NodeTypeMemory, ID: l.SourceID}.String(),
					TargetID: domain.NodeRef{Type: domain.NodeTypeMemory, ID: l.TargetID}.String(),
				})
			}
		}
		for _, m := range r.memories {
			if m.UserID != userID || !has(domain.NodeTypeMemory, m.ID) {
				continue
			}
			src := domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID}
			junction := []struct {
				t   domain.NodeType
				et  domain.EdgeType
				ids []int64
			}{
				{domain.NodeTypeProject, domain.EdgeTypeMemoryProject, m.ProjectIDs},
				{domain.NodeTypeDocument, domain.EdgeTypeMemoryDocument, m.DocumentIDs},
				{domain.NodeTypeCodeArtifact, domain.EdgeTypeMemoryCodeArtifact, m.CodeArtifactIDs},
				{domain.NodeTypeEntity, domain.EdgeTypeMemoryEntity, m.EntityIDs},
			}
			for _, j := range junction {
				if !allowed[j.t] {
					continue
				}
				for _, id := range j.ids {
					if has(j.t, id) {
						tgt := domain.NodeRef{Type: j.t, ID: id}
						add(domain.SubgraphEdge{
							ID:       src.String() + "_" + tgt.String(),
							Type:     j.et,
							SourceID: src.String(),
							TargetID: tgt.String(),
						})
					}
				}
			}
		}
	}

	if allowed[domain.NodeTypeEntity] {
		for _, rel := range r.rels {
			if rel.UserID != userID {
				continue
			}
			if has(domain.NodeTypeEntity, rel.SourceEntityID) && has(domain.NodeTypeEntity, rel.TargetEntityID) {
				add(domain.SubgraphEdge{
					ID:       domain.UndirectedEdgeID(domain.NodeTypeEntity, rel.SourceEntityID, rel.TargetEntityID),
					Type:     domain.EdgeTypeEntityRelationship,
					SourceID: domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.SourceEntityID}.String(),
					TargetID: domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.TargetEntityID}.String(),
					Label:    rel.RelationshipType,
				})
			}
		}
	}

	if allowed[domain.NodeTypeProject] {
		if allowed[domain.NodeTypeDocument] {
			for _, d := range r.docs {
				if d.UserID == userID && d.ProjectID != nil &&
					has(domain.NodeTypeDocument, d.ID) && has(domain.NodeTypeProject, *d.ProjectID) {
					src := domain.NodeRef{Type: domain.NodeTypeDocument, ID: d.ID}
					tgt := domain.NodeRef{Type: domain.NodeTypeProject, ID: *d.ProjectID}
					add(domain.SubgraphEdge{
						ID:       src.String() + "_" + tgt.String(),
						Type:     domain.EdgeTypeDocumentProject,
						SourceID: src.String(),
						TargetID: tgt.String(),
					})
				}
			}
		}
		if allowed[domain.NodeTypeCodeArtifact] {
			for _, a := range r.arts {
				if a.UserID == userID && a.ProjectID != nil &&
					has(domain.NodeTypeCodeArtifact, a.ID) && has(domain.NodeTypeProject, *a.ProjectID) {
					src := domain.NodeRef{Type: domain.NodeTypeCodeArtifact, ID: a.ID}
					tgt := domain.NodeRef{Type: domain.NodeTypeProject, ID: *a.ProjectID}
					add(domain.SubgraphEdge{
						ID:       src.String() + "_" + tgt.String(),
						Type:     domain.EdgeTypeArtifactProject,
						SourceID: src.String(),
						TargetID: tgt.String(),
					})
				}
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// --- graph overview ---

// GetGraphOverview lists nodes flat with edges among the returned page.
func (r *MockRepository) GetGraphOverview(ctx context.Context, userID string, params repository.GraphOverviewParams) (*repository.GraphOverview, error) {
	r.mu.RLock()

	wanted := make(map[domain.NodeType]bool)
	if len(params.NodeTypes) == 0 {
		wanted[domain.NodeTypeMemory] = true
		if params.IncludeEntities {
			wanted[domain.NodeTypeEntity] = true
		}
	} else {
		for _, t := range params.NodeTypes {
			wanted[t] = true
		}
	}

	var nodes []domain.SubgraphNode
	if wanted[domain.NodeTypeMemory] {
		for _, m := range r.memories {
			if m.UserID != userID || m.IsObsolete {
				continue
			}
			if params.ProjectID != nil && !containsID(m.ProjectIDs, *params.ProjectID) {
				continue
			}
			nodes = append(nodes, domain.SubgraphNode{
				ID:    domain.NodeRef{Type: domain.NodeTypeMemory, ID: m.ID}.String(),
				Type:  domain.NodeTypeMemory,
				Label: m.Title,
				Data:  copyMemory(m),
			})
		}
	}
	if wanted[domain.NodeTypeEntity] {
		for _, e := range r.entities {
			if e.UserID != userID {
				continue
			}
			if params.ProjectID != nil && (e.ProjectID == nil || *e.ProjectID != *params.ProjectID) {
				continue
			}
			c := *e
			nodes = append(nodes, domain.SubgraphNode{
				ID:    domain.NodeRef{Type: domain.NodeTypeEntity, ID: e.ID}.String(),
				Type:  domain.NodeTypeEntity,
				Label: e.Name,
				Data:  &c,
			})
		}
	}
	r.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	if params.SortOrder == repository.SortOrderDesc {
		for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}
	}

	total := len(nodes)
	start := params.Offset
	if start > total {
		start = total
	}
	end := total
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}
	page := nodes[start:end]

	refs := make([]domain.NodeRef, 0, len(page))
	for _, n := range page {
		ref, err := domain.ParseNodeRef(n.ID)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	edges, err := r.EdgesAmong(ctx, userID, refs, wanted)
	if err != nil {
		return nil, err
	}

	return &repository.GraphOverview{
		Nodes: page,
		Edges: edges,
		Meta: repository.GraphOverviewMeta{
			TotalNodes: total,
			Limit:      params.Limit,
			Offset:     params.Offset,
		},
	}, nil
}

// --- re-embed primitives ---

// CountAllMemories counts every memory row across users.
func (r *MockRepository) CountAllMemories(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.memories), nil
}

// ResetEmbeddingStorage clears every stored vector.
func (r *MockRepository) ResetEmbeddingStorage(_ context.Context, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("ResetEmbeddingStorage"); err != nil {
		return err
	}
	for _, m := range r.memories {
		m.Embedding = nil
	}
	return nil
}

// GetMemoriesForReembedding pages all memories by id ascending.
func (r *MockRepository) GetMemoriesForReembedding(_ context.Context, limit, offset int) ([]*domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.memories))
	for id := range r.memories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset > len(ids) {
		offset = len(ids)
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*domain.Memory, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, copyMemory(r.memories[id]))
	}
	return out, nil
}

// BulkUpdateEmbeddings writes fresh vectors in one call.
func (r *MockRepository) BulkUpdateEmbeddings(_ context.Context, updates []repository.EmbeddingUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.forced("BulkUpdateEmbeddings"); err != nil {
		return err
	}
	for _, u := range updates {
		m, ok := r.memories[u.MemoryID]
		if !ok {
			return appErrors.NewNotFoundf("memory %d not found", u.MemoryID)
		}
		m.Embedding = append([]float32(nil), u.Embedding...)
	}
	return nil
}

// CountEmbeddingsWithDimension counts vectors of exactly the given length.
func (r *MockRepository) CountEmbeddingsWithDimension(_ context.Context, dims int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.memories {
		if len(m.Embedding) == dims {
			n++
		}
	}
	return n, nil
}

var _ repository.Repository = (*MockRepository)(nil)

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
