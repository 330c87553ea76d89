package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/lib/pq"

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

// NodeExists checks the node's table; obsolete memories count as absent.
func (s *Store) NodeExists(ctx context.Context, userID string, ref domain.NodeRef) (bool, error) {
	table, ok := nodeTables[ref.Type]
	if !ok {
		return false, appErrors.NewValidationf("unknown node type %q", ref.Type)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = $1 AND user_id = $2", table)
	if ref.Type == domain.NodeTypeMemory {
		query += " AND NOT is_obsolete"
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, ref.ID, userID); err != nil {
		return false, appErrors.NewInternal("check node existence", err)
	}
	return n > 0, nil
}

// NeighborRefs reads the unified edge view. One query covers every edge kind.
func (s *Store) NeighborRefs(ctx context.Context, userID string, ref domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.NodeRef, error) {
	types := make([]string, 0, len(allowed))
	for t, ok := range allowed {
		if ok {
			types = append(types, string(t))
		}
	}
	type edgeDst struct {
		DstType string `db:"dst_type"`
		DstID   int64  `db:"dst_id"`
	}
	var rows []edgeDst
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT dst_type, dst_id FROM graph_edges
		WHERE user_id = $1 AND src_type = $2 AND src_id = $3 AND dst_type = ANY($4)
		ORDER BY dst_type, dst_id`,
		userID, string(ref.Type), ref.ID, pq.Array(types))
	if err != nil {
		return nil, appErrors.NewInternal("load neighbors", err)
	}
	out := make([]domain.NodeRef, len(rows))
	for i, r := range rows {
		out[i] = domain.NodeRef{Type: domain.NodeType(r.DstType), ID: r.DstID}
	}
	return out, nil
}

// TraverseBFS expands the whole bounded frontier in one recursive-CTE round
// trip. Each node carries its minimum depth; ordering by depth keeps the
// node cap a proper breadth-first truncation.
func (s *Store) TraverseBFS(ctx context.Context, userID string, center domain.NodeRef, depth, maxNodes int, allowed map[domain.NodeType]bool) ([]domain.NodeRef, map[domain.NodeRef]int, bool, error) {
	types := make([]string, 0, len(allowed))
	for t, ok := range allowed {
		if ok {
			types = append(types, string(t))
		}
	}
	type walkRow struct {
		NodeType string `db:"node_type"`
		NodeID   int64  `db:"node_id"`
		Depth    int    `db:"depth"`
	}
	var rows []walkRow
	err := s.db.SelectContext(ctx, &rows, `
		WITH RECURSIVE walk(node_type, node_id, depth) AS (
			SELECT $2::text, $3::bigint, 0
			UNION
			SELECT e.dst_type, e.dst_id, w.depth + 1
			FROM walk w
			JOIN graph_edges e
			  ON e.user_id = $1 AND e.src_type = w.node_type AND e.src_id = w.node_id
			WHERE w.depth < $4 AND e.dst_type = ANY($5)
		)
		SELECT node_type, node_id, MIN(depth) AS depth
		FROM walk
		GROUP BY node_type, node_id
		ORDER BY depth, node_type, node_id
		LIMIT $6`,
		userID, string(center.Type), center.ID, depth, pq.Array(types), maxNodes+1)
	if err != nil {
		return nil, nil, false, appErrors.NewInternal("traverse graph", err)
	}
	truncated := false
	if len(rows) > maxNodes {
		rows = rows[:maxNodes]
		truncated = true
	}
	refs := make([]domain.NodeRef, len(rows))
	depths := make(map[domain.NodeRef]int, len(rows))
	for i, r := range rows {
		ref := domain.NodeRef{Type: domain.NodeType(r.NodeType), ID: r.NodeID}
		refs[i] = ref
		depths[ref] = r.Depth
	}
	return refs, depths, truncated, nil
}

// FetchNodes bulk-hydrates refs per type. Vanished refs are absent.
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

// EdgesAmong returns every stored edge with both endpoints in refs,
// deduplicated by canonical edge ID.
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

	if memIDs := idsByType[domain.NodeTypeMemory]; len(memIDs) > 0 {
		type linkPair struct {
			SourceID int64 `db:"source_id"`
			TargetID int64 `db:"target_id"`
		}
		var pairs []linkPair
		err := s.db.SelectContext(ctx, &pairs, `
			SELECT source_id, target_id FROM memory_links
			WHERE user_id = $1 AND source_id = ANY($2) AND target_id = ANY($2)`,
			userID, pq.Array(memIDs))
		if err != nil {
			return nil, appErrors.NewInternal("load link edges", err)
		}
		for _, p := range pairs {
			emit(domain.SubgraphEdge{
				ID:       domain.UndirectedEdgeID(domain.NodeTypeMemory, p.SourceID, p.TargetID),
				Type:     domain.EdgeTypeMemoryLink,
				SourceID: domain.NodeRef{Type: domain.NodeTypeMemory, ID: p.SourceID}.String(),
				TargetID: domain.NodeRef{Type: domain.NodeTypeMemory, ID: p.TargetID}.String(),
			})
		}

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
			otherIDs := idsByType[j.nodeType]
			if !allowed[j.nodeType] || len(otherIDs) == 0 {
				continue
			}
			type junctionPair struct {
				MemoryID int64 `db:"memory_id"`
				RefID    int64 `db:"ref_id"`
			}
			var pairs []junctionPair
			err := s.db.SelectContext(ctx, &pairs, fmt.Sprintf(`
				SELECT memory_id, %s AS ref_id FROM %s
				WHERE memory_id = ANY($1) AND %s = ANY($2)`,
				j.column, j.table, j.column),
				pq.Array(memIDs), pq.Array(otherIDs))
			if err != nil {
				return nil, appErrors.NewInternal("load junction edges", err)
			}
			for _, p := range pairs {
				src := domain.NodeRef{Type: domain.NodeTypeMemory, ID: p.MemoryID}
				tgt := domain.NodeRef{Type: j.nodeType, ID: p.RefID}
				emit(domain.SubgraphEdge{
					ID:       src.String() + "_" + tgt.String(),
					Type:     j.edgeType,
					SourceID: src.String(),
					TargetID: tgt.String(),
				})
			}
		}
	}

	if entIDs := idsByType[domain.NodeTypeEntity]; allowed[domain.NodeTypeEntity] && len(entIDs) > 0 {
		var rels []relationshipRow
		err := s.db.SelectContext(ctx, &rels, `
			SELECT * FROM entity_relationships
			WHERE user_id = $1 AND source_entity_id = ANY($2) AND target_entity_id = ANY($2)`,
			userID, pq.Array(entIDs))
		if err != nil {
			return nil, appErrors.NewInternal("load relationship edges", err)
		}
		for _, rel := range rels {
			emit(domain.SubgraphEdge{
				ID:       domain.UndirectedEdgeID(domain.NodeTypeEntity, rel.SourceEntityID, rel.TargetEntityID),
				Type:     domain.EdgeTypeEntityRelationship,
				SourceID: domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.SourceEntityID}.String(),
				TargetID: domain.NodeRef{Type: domain.NodeTypeEntity, ID: rel.TargetEntityID}.String(),
				Label:    rel.RelationshipType,
			})
		}
	}

	for _, fk := range []struct {
		edgeType domain.EdgeType
		nodeType domain.NodeType
		table    string
	}{
		{domain.EdgeTypeDocumentProject, domain.NodeTypeDocument, "documents"},
		{domain.EdgeTypeArtifactProject, domain.NodeTypeCodeArtifact, "code_artifacts"},
	} {
		ownIDs := idsByType[fk.nodeType]
		projIDs := idsByType[domain.NodeTypeProject]
		if !allowed[fk.nodeType] || !allowed[domain.NodeTypeProject] ||
			len(ownIDs) == 0 || len(projIDs) == 0 {
			continue
		}
		type fkPair struct {
			ID        int64 `db:"id"`
			ProjectID int64 `db:"project_id"`
		}
		var pairs []fkPair
		err := s.db.SelectContext(ctx, &pairs, fmt.Sprintf(`
			SELECT id, project_id FROM %s
			WHERE id = ANY($1) AND project_id = ANY($2)`, fk.table),
			pq.Array(ownIDs), pq.Array(projIDs))
		if err != nil {
			return nil, appErrors.NewInternal("load project fk edges", err)
		}
		for _, p := range pairs {
			src := domain.NodeRef{Type: fk.nodeType, ID: p.ID}
			tgt := domain.NodeRef{Type: domain.NodeTypeProject, ID: p.ProjectID}
			emit(domain.SubgraphEdge{
				ID:       src.String() + "_" + tgt.String(),
				Type:     fk.edgeType,
				SourceID: src.String(),
				TargetID: tgt.String(),
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// GetGraphOverview pages a flat node listing and the edges among the page.
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
		query := fmt.Sprintf("SELECT id FROM %s WHERE user_id = $1", nodeTables[t])
		args := []interface{}{userID}
		if t == domain.NodeTypeMemory {
			query += " AND NOT is_obsolete"
		}
		if params.ProjectID != nil {
			switch t {
			case domain.NodeTypeMemory:
				query += " AND id IN (SELECT memory_id FROM memory_projects WHERE project_id = $2)"
				args = append(args, *params.ProjectID)
			case domain.NodeTypeDocument, domain.NodeTypeCodeArtifact, domain.NodeTypeEntity:
				query += " AND project_id = $2"
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
