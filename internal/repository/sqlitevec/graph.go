package sqlitevec

import (
	"context"
	"fmt"
	"sort"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

var nodeTables = map[domain.NodeType]string{
	domain.NodeTypeMemory:       "memories",
	domain.NodeTypeEntity:       "entities",
	domain.NodeTypeProject:      "projects",
	domain.NodeTypeDocument:     "documents",
	domain.NodeTypeCodeArtifact: "code_artifacts",
}

// NodeExists checks the node's table for the user. Obsolete memories count
// as absent everywhere in graph traversal.
func (s *Store) NodeExists(ctx context.Context, userID string, ref domain.NodeRef) (bool, error) {
	table, ok := nodeTables[ref.Type]
	if !ok {
		return false, appErrors.NewValidationf("unknown node type %q", ref.Type)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ? AND user_id = ?", table)
	if ref.Type == domain.NodeTypeMemory {
		query += " AND is_obsolete = 0"
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, ref.ID, userID); err != nil {
		return false, appErrors.NewInternal("check node existence", err)
	}
	return n > 0, nil
}

// NeighborRefs enumerates the direct neighbors of ref through every stored
// edge kind, restricted to the allowed node types. Results are deduplicated
// and ordered by type then ID for deterministic traversal.
func (s *Store) NeighborRefs(ctx context.Context, userID string, ref domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.NodeRef, error) {
	seen := make(map[domain.NodeRef]bool)
	var out []domain.NodeRef
	add := func(t domain.NodeType, ids []int64) {
		if !allowed[t] {
			return
		}
		for _, id := range ids {
			nref := domain.NodeRef{Type: t, ID: id}
			if !seen[nref] {
				seen[nref] = true
				out = append(out, nref)
			}
		}
	}
	collect := func(query string, args ...interface{}) ([]int64, error) {
		var ids []int64
		if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
			return nil, appErrors.NewInternal("load neighbors", err)
		}
		return ids, nil
	}

	switch ref.Type {
	case domain.NodeTypeMemory:
		links, err := collect(`
			SELECT CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END
			FROM memory_links l
			JOIN memories m ON m.id = CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END
			WHERE l.user_id = ? AND (l.source_id = ? OR l.target_id = ?) AND m.is_obsolete = 0`,
			ref.ID, ref.ID, userID, ref.ID, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeMemory, links)
		for _, j := range []struct {
			t      domain.NodeType
			table  string
			column string
		}{
			{domain.NodeTypeProject, "memory_projects", "project_id"},
			{domain.NodeTypeDocument, "memory_documents", "document_id"},
			{domain.NodeTypeCodeArtifact, "memory_code_artifacts", "code_artifact_id"},
			{domain.NodeTypeEntity, "memory_entities", "entity_id"},
		} {
			ids, err := collect(fmt.Sprintf(
				"SELECT %s FROM %s WHERE memory_id = ?", j.column, j.table), ref.ID)
			if err != nil {
				return nil, err
			}
			add(j.t, ids)
		}

	case domain.NodeTypeEntity:
		rels, err := collect(`
			SELECT CASE WHEN source_entity_id = ? THEN target_entity_id ELSE source_entity_id END
			FROM entity_relationships
			WHERE user_id = ? AND (source_entity_id = ? OR target_entity_id = ?)`,
			ref.ID, userID, ref.ID, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeEntity, rels)
		memories, err := collect(`
			SELECT me.memory_id FROM memory_entities me
			JOIN memories m ON m.id = me.memory_id
			WHERE me.entity_id = ? AND m.is_obsolete = 0`, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeMemory, memories)

	case domain.NodeTypeProject:
		memories, err := collect(`
			SELECT mp.memory_id FROM memory_projects mp
			JOIN memories m ON m.id = mp.memory_id
			WHERE mp.project_id = ? AND m.is_obsolete = 0`, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeMemory, memories)
		docs, err := collect(
			"SELECT id FROM documents WHERE project_id = ? AND user_id = ?", ref.ID, userID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeDocument, docs)
		arts, err := collect(
			"SELECT id FROM code_artifacts WHERE project_id = ? AND user_id = ?", ref.ID, userID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeCodeArtifact, arts)

	case domain.NodeTypeDocument:
		memories, err := collect(`
			SELECT md.memory_id FROM memory_documents md
			JOIN memories m ON m.id = md.memory_id
			WHERE md.document_id = ? AND m.is_obsolete = 0`, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeMemory, memories)
		projects, err := collect(
			"SELECT project_id FROM documents WHERE id = ? AND project_id IS NOT NULL", ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeProject, projects)

	case domain.NodeTypeCodeArtifact:
		memories, err := collect(`
			SELECT mc.memory_id FROM memory_code_artifacts mc
			JOIN memories m ON m.id = mc.memory_id
			WHERE mc.code_artifact_id = ? AND m.is_obsolete = 0`, ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeMemory, memories)
		projects, err := collect(
			"SELECT project_id FROM code_artifacts WHERE id = ? AND project_id IS NOT NULL", ref.ID)
		if err != nil {
			return nil, err
		}
		add(domain.NodeTypeProject, projects)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FetchNodes bulk-hydrates the row data behind each ref. Refs deleted under
// a race are simply absent from the result map.
func (s *Store) FetchNodes(ctx context.Context, userID string, refs []domain.NodeRef) (map[domain.NodeRef]interface{}, error) {
	out := make(map[domain.NodeRef]interface{}, len(refs))
	for _, ref := range refs {
		var (
			data interface{}
			err  error
		)
		switch ref.Type {
		case domain.NodeTypeMemory:
			data, err = s.GetMemoryByID(ctx, userID, ref.ID)
		case domain.NodeTypeEntity:
			data, err = s.GetEntityByID(ctx, userID, ref.ID)
		case domain.NodeTypeProject:
			data, err = s.GetProjectByID(ctx, userID, ref.ID)
		case domain.NodeTypeDocument:
			data, err = s.GetDocumentByID(ctx, userID, ref.ID)
		case domain.NodeTypeCodeArtifact:
			data, err = s.GetCodeArtifactByID(ctx, userID, ref.ID)
		default:
			continue
		}
		if err != nil {
			if appErrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[ref] = data
	}
	return out, nil
}

// EdgesAmong returns every stored edge with both endpoints in refs, typed and
// deduplicated by canonical edge ID, sorted by edge ID.
func (s *Store) EdgesAmong(ctx context.Context, userID string, refs []domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.SubgraphEdge, error) {
	member := make(map[domain.NodeRef]bool, len(refs))
	idsByType := make(map[domain.NodeType][]int64)
	for _, ref := range refs {
		member[ref] = true
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}
	seen := make(map[string]bool)
	var edges []domain.SubgraphEdge
	emit := func(e domain.SubgraphEdge) {
		if !seen[e.ID] {
			seen[e.ID] = true
			edges = append(edges, e)
		}
	}

	// memory <-> memory links
	for _, a := range idsByType[domain.NodeTypeMemory] {
		type linkPair struct {
			SourceID int64 `db:"source_id"`
			TargetID int64 `db:"target_id"`
		}
		var pairs []linkPair
		err := s.db.SelectContext(ctx, &pairs, `
			SELECT source_id, target_id FROM memory_links
			WHERE user_id = ? AND (source_id = ? OR target_id = ?)`, userID, a, a)
		if err != nil {
			return nil, appErrors.NewInternal("load link edges", err)
		}
		for _, p := range pairs {
			src := domain.NodeRef{Type: domain.NodeTypeMemory, ID: p.SourceID}
			tgt := domain.NodeRef{Type: domain.NodeTypeMemory, ID: p.TargetID}
			if member[src] && member[tgt] {
				emit(domain.SubgraphEdge{
					ID:       domain.UndirectedEdgeID(domain.NodeTypeMemory, p.SourceID, p.TargetID),
					Type:     domain.EdgeTypeMemoryLink,
					SourceID: src.String(),
					TargetID: tgt.String(),
				})
			}
		}
	}

	// memory <-> junction edges
	for _, j := range []struct {
		edgeType domain.EdgeType
		nodeType domain.NodeType
		table    string
		column   string
	}{
		{domain.EdgeTypeMemoryProject, domain.NodeTypeProject, "memory_projects", "project_id"},
		{domain.EdgeTypeMemoryDocument, domain.NodeTypeDocument, "memory_documents", "document_id"},
		{domain.EdgeTypeMemoryCodeArtifact, domain.NodeTypeCodeArtifact, "memory_code_artifacts", "code_artifact_id"},
		{domain.EdgeTypeMemoryEntity, domain.NodeTypeEntity, "memory_entities", "entity_id"},
	} {
		if !allowed[j.nodeType] || len(idsByType[domain.NodeTypeMemory]) == 0 {
			continue
		}
		for _, memID := range idsByType[domain.NodeTypeMemory] {
			var refIDs []int64
			err := s.db.SelectContext(ctx, &refIDs, fmt.Sprintf(
				"SELECT %s FROM %s WHERE memory_id = ?", j.column, j.table), memID)
			if err != nil {
				return nil, appErrors.NewInternal("load junction edges", err)
			}
			src := domain.NodeRef{Type: domain.NodeTypeMemory, ID: memID}
			for _, refID := range refIDs {
				tgt := domain.NodeRef{Type: j.nodeType, ID: refID}
				if member[tgt] {
					emit(domain.SubgraphEdge{
						ID:       src.String() + "_" + tgt.String(),
						Type:     j.edgeType,
						SourceID: src.String(),
						TargetID: tgt.String(),
					})
				}
			}
		}
	}

	// entity <-> entity relationships
	if allowed[domain.NodeTypeEntity] {
		for _, entID := range idsByType[domain.NodeTypeEntity] {
			rels, err := s.ListEntityRelationships(ctx, userID, entID)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				src := domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.SourceEntityID}
				tgt := domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.TargetEntityID}
				if member[src] && member[tgt] {
					emit(domain.SubgraphEdge{
						ID:       domain.UndirectedEdgeID(domain.NodeTypeEntity, rel.SourceEntityID, rel.TargetEntityID),
						Type:     domain.EdgeTypeEntityRelationship,
						SourceID: src.String(),
						TargetID: tgt.String(),
						Label:    rel.RelationshipType,
					})
				}
			}
		}
	}

	// document/artifact -> project FK edges
	for _, fk := range []struct {
		edgeType domain.EdgeType
		nodeType domain.NodeType
		table    string
	}{
		{domain.EdgeTypeDocumentProject, domain.NodeTypeDocument, "documents"},
		{domain.EdgeTypeArtifactProject, domain.NodeTypeCodeArtifact, "code_artifacts"},
	} {
		if !allowed[fk.nodeType] || !allowed[domain.NodeTypeProject] {
			continue
		}
		for _, id := range idsByType[fk.nodeType] {
			var projectIDs []int64
			err := s.db.SelectContext(ctx, &projectIDs, fmt.Sprintf(
				"SELECT project_id FROM %s WHERE id = ? AND project_id IS NOT NULL", fk.table), id)
			if err != nil {
				return nil, appErrors.NewInternal("load project fk edges", err)
			}
			src := domain.NodeRef{Type: fk.nodeType, ID: id}
			for _, pid := range projectIDs {
				tgt := domain.NodeRef{Type: domain.NodeTypeProject, ID: pid}
				if member[tgt] {
					emit(domain.SubgraphEdge{
						ID:       src.String() + "_" + tgt.String(),
						Type:     fk.edgeType,
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

// GetGraphOverview pages a flat node listing and returns the edges among the
// returned page.
func (s *Store) GetGraphOverview(ctx context.Context, userID string, params repository.GraphOverviewParams) (*repository.GraphOverview, error) {
	wanted := map[domain.NodeType]bool{}
	if len(params.NodeTypes) > 0 {
		for _, t := range params.NodeTypes {
			wanted[t] = true
		}
	} else {
		wanted[domain.NodeTypeMemory] = true
		if params.IncludeEntities {
			wanted[domain.NodeTypeEntity] = true
		}
	}

	var refs []domain.NodeRef
	for _, t := range domain.AllNodeTypes {
		if !wanted[t] {
			continue
		}
		table := nodeTables[t]
		query := fmt.Sprintf("SELECT id FROM %s WHERE user_id = ?", table)
		args := []interface{}{userID}
		if t == domain.NodeTypeMemory {
			query += " AND is_obsolete = 0"
		}
		if params.ProjectID != nil {
			switch t {
			case domain.NodeTypeMemory:
				query += " AND id IN (SELECT memory_id FROM memory_projects WHERE project_id = ?)"
				args = append(args, *params.ProjectID)
			case domain.NodeTypeDocument, domain.NodeTypeCodeArtifact, domain.NodeTypeEntity:
				query += " AND project_id = ?"
				args = append(args, *params.ProjectID)
			}
		}
		var ids []int64
		if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
			return nil, appErrors.NewInternal("list overview nodes", err)
		}
		for _, id := range ids {
			refs = append(refs, domain.NodeRef{Type: t, ID: id})
		}
	}

	desc := params.SortOrder == repository.SortOrderDesc
	sort.Slice(refs, func(i, j int) bool {
		less := refs[i].String() < refs[j].String()
		if desc {
			return !less
		}
		return less
	})

	total := len(refs)
	offset := params.Offset
	if offset > total {
		offset = total
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := refs[offset:end]

	data, err := s.FetchNodes(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	nodes := make([]domain.SubgraphNode, 0, len(page))
	for _, ref := range page {
		d, ok := data[ref]
		if !ok {
			continue
		}
		nodes = append(nodes, domain.SubgraphNode{
			ID: ref.String(), Type: ref.Type, Label: nodeDataLabel(d), Data: d,
		})
	}
	edges, err := s.EdgesAmong(ctx, userID, page, wanted)
	if err != nil {
		return nil, err
	}
	return &repository.GraphOverview{
		Nodes: nodes,
		Edges: edges,
		Meta: repository.GraphOverviewMeta{
			TotalNodes: total, Limit: limit, Offset: params.Offset,
		},
	}, nil
}

func nodeDataLabel(data interface{}) string {
	switch v := data.(type) {
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
