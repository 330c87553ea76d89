package tools

import (
	"context"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/retrieval"
	entitysvc "forgetful-backend/internal/service/entity"
	graphsvc "forgetful-backend/internal/service/graph"
	memorysvc "forgetful-backend/internal/service/memory"
	appErrors "forgetful-backend/pkg/errors"
)

// Services collects the application services the built-in tools call into.
type Services struct {
	Memory *memorysvc.Service
	Graph  *graphsvc.Service
	Entity *entitysvc.Service
	Users  repository.UserRepository
}

// RegisterBuiltins installs every built-in tool. Called once at startup.
func RegisterBuiltins(reg *Registry, svc Services) {
	registerMemoryTools(reg, svc)
	registerLinkingTools(reg, svc)
	registerProjectTools(reg, svc)
	registerDocumentTools(reg, svc)
	registerArtifactTools(reg, svc)
	registerEntityTools(reg, svc)
	registerUserTools(reg, svc)
}

func objectSchema(props map[string]interface{}, required []string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func listProp(itemType, desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": itemType},
		"description": desc,
	}
}

func registerMemoryTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "create_memory",
		Category:    CategoryMemories,
		Description: "Store a new atomic memory; it is embedded and auto-linked to similar memories.",
		Mutates:     true,
		Params: []Param{
			{Name: "title", Type: "string", Description: "short title, max 200 chars", Required: true},
			{Name: "content", Type: "string", Description: "memory body, max 2000 chars", Required: true},
			{Name: "context", Type: "string", Description: "situational context, max 500 chars"},
			{Name: "keywords", Type: "[]string", Description: "up to 10 keywords"},
			{Name: "tags", Type: "[]string", Description: "up to 10 tags"},
			{Name: "importance", Type: "int", Description: "1..10", Required: true},
			{Name: "project_ids", Type: "[]int", Description: "projects to associate"},
			{Name: "document_ids", Type: "[]int", Description: "documents to associate"},
			{Name: "code_artifact_ids", Type: "[]int", Description: "code artifacts to associate"},
			{Name: "entity_ids", Type: "[]int", Description: "entities to associate"},
		},
		Returns: "the stored memory plus similar_memories found during auto-linking",
		Examples: []string{
			`{"title":"Redis eviction policy","content":"Use allkeys-lru in the cache tier","importance":7,"tags":["redis","ops"]}`,
		},
		Schema: objectSchema(map[string]interface{}{
			"title":             prop("string", "short title"),
			"content":           prop("string", "memory body"),
			"context":           prop("string", "situational context"),
			"keywords":          listProp("string", "keywords"),
			"tags":              listProp("string", "tags"),
			"importance":        prop("integer", "1..10"),
			"project_ids":       listProp("integer", "project ids"),
			"document_ids":      listProp("integer", "document ids"),
			"code_artifact_ids": listProp("integer", "code artifact ids"),
			"entity_ids":        listProp("integer", "entity ids"),
		}, []string{"title", "content", "importance"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			req, err := createMemoryRequestFromArgs(args)
			if err != nil {
				return nil, err
			}
			return svc.Memory.CreateMemory(ctx, userID, req)
		},
	})

	reg.Register(&Tool{
		Name:        "get_memory",
		Category:    CategoryMemories,
		Description: "Fetch one memory by id, including obsolete memories.",
		Params: []Param{
			{Name: "memory_id", Type: "int", Description: "memory id", Required: true},
		},
		Returns: "the memory with its linked memory ids",
		Schema: objectSchema(map[string]interface{}{
			"memory_id": prop("integer", "memory id"),
		}, []string{"memory_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			id, ok, err := CoerceInt64("memory_id", args["memory_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("memory_id is required")
			}
			return svc.Memory.GetMemory(ctx, userID, id)
		},
	})

	reg.Register(&Tool{
		Name:        "list_memories",
		Category:    CategoryMemories,
		Description: "Page through memories with sorting and tag filters.",
		Params: []Param{
			{Name: "limit", Type: "int", Description: "page size, default 20, max 100", Default: 20},
			{Name: "offset", Type: "int", Description: "page offset", Default: 0},
			{Name: "sort_by", Type: "string", Description: "created_at | updated_at | importance | title"},
			{Name: "sort_order", Type: "string", Description: "asc | desc"},
			{Name: "tags", Type: "[]string", Description: "match any of these tags"},
			{Name: "importance_min", Type: "int", Description: "minimum importance"},
			{Name: "project_id", Type: "int", Description: "restrict to one project"},
			{Name: "include_obsolete", Type: "bool", Description: "include soft-deleted memories"},
		},
		Returns: "a page of memories and the total count before pagination",
		Schema: objectSchema(map[string]interface{}{
			"limit":            prop("integer", "page size"),
			"offset":           prop("integer", "page offset"),
			"sort_by":          prop("string", "sort column"),
			"sort_order":       prop("string", "asc or desc"),
			"tags":             listProp("string", "tags, any-match"),
			"importance_min":   prop("integer", "minimum importance"),
			"project_id":       prop("integer", "project filter"),
			"include_obsolete": prop("boolean", "include obsolete"),
		}, nil),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			params, err := listParamsFromArgs(args)
			if err != nil {
				return nil, err
			}
			rows, total, err := svc.Memory.ListMemories(ctx, userID, params)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"memories": rows, "total": total}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "update_memory",
		Category:    CategoryMemories,
		Description: "Patch a memory; only supplied fields change. Search-relevant changes trigger re-embedding.",
		Mutates:     true,
		Params: []Param{
			{Name: "memory_id", Type: "int", Description: "memory id", Required: true},
			{Name: "title", Type: "string", Description: "new title"},
			{Name: "content", Type: "string", Description: "new content"},
			{Name: "context", Type: "string", Description: "new context"},
			{Name: "keywords", Type: "[]string", Description: "replacement keywords"},
			{Name: "tags", Type: "[]string", Description: "replacement tags"},
			{Name: "importance", Type: "int", Description: "new importance"},
			{Name: "project_ids", Type: "[]int", Description: "replacement project set; empty list clears"},
			{Name: "document_ids", Type: "[]int", Description: "replacement document set; empty list clears"},
			{Name: "code_artifact_ids", Type: "[]int", Description: "replacement artifact set; empty list clears"},
			{Name: "entity_ids", Type: "[]int", Description: "replacement entity set; empty list clears"},
		},
		Returns: "the updated memory",
		Schema: objectSchema(map[string]interface{}{
			"memory_id":         prop("integer", "memory id"),
			"title":             prop("string", "new title"),
			"content":           prop("string", "new content"),
			"context":           prop("string", "new context"),
			"keywords":          listProp("string", "keywords"),
			"tags":              listProp("string", "tags"),
			"importance":        prop("integer", "importance"),
			"project_ids":       listProp("integer", "project ids"),
			"document_ids":      listProp("integer", "document ids"),
			"code_artifact_ids": listProp("integer", "code artifact ids"),
			"entity_ids":        listProp("integer", "entity ids"),
		}, []string{"memory_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			id, ok, err := CoerceInt64("memory_id", args["memory_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("memory_id is required")
			}
			req, err := updateMemoryRequestFromArgs(args)
			if err != nil {
				return nil, err
			}
			return svc.Memory.UpdateMemory(ctx, userID, id, req)
		},
	})

	reg.Register(&Tool{
		Name:        "mark_memory_obsolete",
		Category:    CategoryMemories,
		Description: "Soft-delete a memory, optionally naming its replacement.",
		Mutates:     true,
		Params: []Param{
			{Name: "memory_id", Type: "int", Description: "memory id", Required: true},
			{Name: "reason", Type: "string", Description: "why it is obsolete", Required: true},
			{Name: "superseded_by", Type: "int", Description: "replacement memory id"},
		},
		Returns: "confirmation",
		Schema: objectSchema(map[string]interface{}{
			"memory_id":     prop("integer", "memory id"),
			"reason":        prop("string", "reason"),
			"superseded_by": prop("integer", "replacement id"),
		}, []string{"memory_id", "reason"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			id, ok, err := CoerceInt64("memory_id", args["memory_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("memory_id is required")
			}
			reason, err := CoerceString("reason", args["reason"])
			if err != nil {
				return nil, err
			}
			var supersededBy *int64
			if sup, ok, err := CoerceInt64("superseded_by", args["superseded_by"]); err != nil {
				return nil, err
			} else if ok {
				supersededBy = &sup
			}
			if err := svc.Memory.MarkObsolete(ctx, userID, id, reason, supersededBy); err != nil {
				return nil, err
			}
			return map[string]interface{}{"success": true}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "query_memory",
		Category:    CategoryMemories,
		Description: "Answer a recall query: semantic retrieval plus linked neighbors under a token budget.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "natural-language query", Required: true},
			{Name: "query_context", Type: "string", Description: "extra context for reranking"},
			{Name: "k", Type: "int", Description: "primary result count", Default: 5},
			{Name: "include_links", Type: "bool", Description: "include one-hop linked memories"},
			{Name: "max_links_per_primary", Type: "int", Description: "linked fan-out per primary"},
			{Name: "token_context_threshold", Type: "int", Description: "token budget for the result"},
			{Name: "max_memories", Type: "int", Description: "cap on total memories returned"},
			{Name: "importance_threshold", Type: "int", Description: "minimum importance"},
			{Name: "project_ids", Type: "[]int", Description: "restrict to these projects"},
			{Name: "strict_project_filter", Type: "bool", Description: "apply project filter to linked memories too"},
		},
		Returns: "primary and linked memories with token accounting and a truncation flag",
		Schema: objectSchema(map[string]interface{}{
			"query":                   prop("string", "query text"),
			"query_context":           prop("string", "query context"),
			"k":                       prop("integer", "primary count"),
			"include_links":           prop("boolean", "include linked"),
			"max_links_per_primary":   prop("integer", "linked fan-out"),
			"token_context_threshold": prop("integer", "token budget"),
			"max_memories":            prop("integer", "total cap"),
			"importance_threshold":    prop("integer", "minimum importance"),
			"project_ids":             listProp("integer", "project filter"),
			"strict_project_filter":   prop("boolean", "strict project filter"),
		}, []string{"query"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			req, err := queryRequestFromArgs(args)
			if err != nil {
				return nil, err
			}
			return svc.Memory.QueryMemory(ctx, userID, req)
		},
	})

	reg.Register(&Tool{
		Name:        "search_memory",
		Category:    CategoryMemories,
		Description: "Raw semantic search without link expansion or token budgeting.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "search text", Required: true},
			{Name: "k", Type: "int", Description: "result count", Default: 5},
			{Name: "importance_threshold", Type: "int", Description: "minimum importance"},
			{Name: "project_ids", Type: "[]int", Description: "restrict to these projects"},
		},
		Returns: "memories ranked by similarity",
		Schema: objectSchema(map[string]interface{}{
			"query":                prop("string", "search text"),
			"k":                    prop("integer", "result count"),
			"importance_threshold": prop("integer", "minimum importance"),
			"project_ids":          listProp("integer", "project filter"),
		}, []string{"query"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			query, err := CoerceString("query", args["query"])
			if err != nil {
				return nil, err
			}
			k, _, err := CoerceInt("k", args["k"])
			if err != nil {
				return nil, err
			}
			var threshold *int
			if v, ok, err := CoerceInt("importance_threshold", args["importance_threshold"]); err != nil {
				return nil, err
			} else if ok {
				threshold = &v
			}
			projectIDs, err := CoerceInt64List("project_ids", args["project_ids"])
			if err != nil {
				return nil, err
			}
			return svc.Memory.Search(ctx, userID, retrieval.Params{
				Query: query, K: k,
				ImportanceThreshold: threshold, ProjectIDs: projectIDs,
			})
		},
	})
}

func registerLinkingTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "link_memories",
		Category:    CategoryLinking,
		Description: "Create a bidirectional link between two memories.",
		Mutates:     true,
		Params: []Param{
			{Name: "source_id", Type: "int", Description: "first memory id", Required: true},
			{Name: "target_id", Type: "int", Description: "second memory id", Required: true},
		},
		Returns: "the stored link, canonicalized so source < target",
		Schema: objectSchema(map[string]interface{}{
			"source_id": prop("integer", "first memory id"),
			"target_id": prop("integer", "second memory id"),
		}, []string{"source_id", "target_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			src, tgt, err := linkPairFromArgs(args)
			if err != nil {
				return nil, err
			}
			return svc.Memory.CreateLink(ctx, userID, src, tgt)
		},
	})

	reg.Register(&Tool{
		Name:        "unlink_memories",
		Category:    CategoryLinking,
		Description: "Remove the link between two memories, in either order.",
		Mutates:     true,
		Params: []Param{
			{Name: "source_id", Type: "int", Description: "first memory id", Required: true},
			{Name: "target_id", Type: "int", Description: "second memory id", Required: true},
		},
		Returns: "confirmation",
		Schema: objectSchema(map[string]interface{}{
			"source_id": prop("integer", "first memory id"),
			"target_id": prop("integer", "second memory id"),
		}, []string{"source_id", "target_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			src, tgt, err := linkPairFromArgs(args)
			if err != nil {
				return nil, err
			}
			if err := svc.Memory.DeleteLink(ctx, userID, src, tgt); err != nil {
				return nil, err
			}
			return map[string]interface{}{"success": true}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "get_linked_memories",
		Category:    CategoryLinking,
		Description: "List the one-hop neighbors of a memory, ordered by importance.",
		Params: []Param{
			{Name: "memory_id", Type: "int", Description: "memory id", Required: true},
			{Name: "max_links", Type: "int", Description: "maximum neighbors", Default: 10},
		},
		Returns: "the linked memories",
		Schema: objectSchema(map[string]interface{}{
			"memory_id": prop("integer", "memory id"),
			"max_links": prop("integer", "maximum neighbors"),
		}, []string{"memory_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			id, ok, err := CoerceInt64("memory_id", args["memory_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("memory_id is required")
			}
			maxLinks, _, err := CoerceInt("max_links", args["max_links"])
			if err != nil {
				return nil, err
			}
			return svc.Memory.GetLinkedMemories(ctx, userID, id, maxLinks)
		},
	})

	reg.Register(&Tool{
		Name:        "get_subgraph",
		Category:    CategoryLinking,
		Description: "Extract the bounded neighborhood of a node for graph exploration.",
		Params: []Param{
			{Name: "center_node_id", Type: "string", Description: "node id like memory_12 or entity_3", Required: true},
			{Name: "depth", Type: "int", Description: "1..3", Default: 1},
			{Name: "node_types", Type: "[]string", Description: "restrict traversal to these node types"},
			{Name: "max_nodes", Type: "int", Description: "1..500", Default: 100},
		},
		Returns: "nodes with depth annotations, typed edges, and per-type counts",
		Schema: objectSchema(map[string]interface{}{
			"center_node_id": prop("string", "center node id"),
			"depth":          prop("integer", "traversal depth"),
			"node_types":     listProp("string", "allowed node types"),
			"max_nodes":      prop("integer", "node cap"),
		}, []string{"center_node_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			center, err := CoerceString("center_node_id", args["center_node_id"])
			if err != nil {
				return nil, err
			}
			depth, ok, err := CoerceInt("depth", args["depth"])
			if err != nil {
				return nil, err
			}
			if !ok {
				depth = 1
			}
			maxNodes, _, err := CoerceInt("max_nodes", args["max_nodes"])
			if err != nil {
				return nil, err
			}
			rawTypes, err := CoerceStringList("node_types", args["node_types"])
			if err != nil {
				return nil, err
			}
			nodeTypes := make([]domain.NodeType, len(rawTypes))
			for i, t := range rawTypes {
				nodeTypes[i] = domain.NodeType(t)
			}
			return svc.Graph.GetSubgraph(ctx, userID, graphsvc.SubgraphRequest{
				CenterNodeID: center, Depth: depth,
				NodeTypes: nodeTypes, MaxNodes: maxNodes,
			})
		},
	})
}

func registerProjectTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "create_project",
		Category:    CategoryProjects,
		Description: "Create a project to group memories, documents and artifacts.",
		Mutates:     true,
		Params: []Param{
			{Name: "name", Type: "string", Description: "project name", Required: true},
			{Name: "description", Type: "string", Description: "project description"},
			{Name: "tags", Type: "[]string", Description: "project tags"},
		},
		Returns: "the stored project",
		Schema: objectSchema(map[string]interface{}{
			"name":        prop("string", "project name"),
			"description": prop("string", "description"),
			"tags":        listProp("string", "tags"),
		}, []string{"name"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			name, err := CoerceString("name", args["name"])
			if err != nil {
				return nil, err
			}
			desc, err := CoerceString("description", args["description"])
			if err != nil {
				return nil, err
			}
			tags, err := CoerceStringList("tags", args["tags"])
			if err != nil {
				return nil, err
			}
			return svc.Entity.CreateProject(ctx, userID, &domain.Project{
				Name: name, Description: desc, Tags: tags,
			})
		},
	})

	reg.Register(&Tool{
		Name:        "list_projects",
		Category:    CategoryProjects,
		Description: "List all projects.",
		Returns:     "the user's projects",
		Schema:      objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, userID string, _ map[string]interface{}) (interface{}, error) {
			return svc.Entity.ListProjects(ctx, userID)
		},
	})

	reg.Register(&Tool{
		Name:        "delete_project",
		Category:    CategoryProjects,
		Description: "Delete a project; memory associations are removed, memories survive.",
		Mutates:     true,
		Params: []Param{
			{Name: "project_id", Type: "int", Description: "project id", Required: true},
		},
		Returns: "confirmation",
		Schema: objectSchema(map[string]interface{}{
			"project_id": prop("integer", "project id"),
		}, []string{"project_id"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			id, ok, err := CoerceInt64("project_id", args["project_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("project_id is required")
			}
			if err := svc.Entity.DeleteProject(ctx, userID, id); err != nil {
				return nil, err
			}
			return map[string]interface{}{"success": true}, nil
		},
	})
}

func registerDocumentTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "create_document",
		Category:    CategoryDocuments,
		Description: "Register a document reference memories can cite.",
		Mutates:     true,
		Params: []Param{
			{Name: "title", Type: "string", Description: "document title", Required: true},
			{Name: "uri", Type: "string", Description: "where the document lives"},
			{Name: "project_id", Type: "int", Description: "owning project"},
		},
		Returns: "the stored document",
		Schema: objectSchema(map[string]interface{}{
			"title":      prop("string", "document title"),
			"uri":        prop("string", "document location"),
			"project_id": prop("integer", "owning project"),
		}, []string{"title"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			title, err := CoerceString("title", args["title"])
			if err != nil {
				return nil, err
			}
			uri, err := CoerceString("uri", args["uri"])
			if err != nil {
				return nil, err
			}
			d := &domain.Document{Title: title, URI: uri}
			if pid, ok, err := CoerceInt64("project_id", args["project_id"]); err != nil {
				return nil, err
			} else if ok {
				d.ProjectID = &pid
			}
			return svc.Entity.CreateDocument(ctx, userID, d)
		},
	})

	reg.Register(&Tool{
		Name:        "list_documents",
		Category:    CategoryDocuments,
		Description: "List all document references.",
		Returns:     "the user's documents",
		Schema:      objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, userID string, _ map[string]interface{}) (interface{}, error) {
			return svc.Entity.ListDocuments(ctx, userID)
		},
	})
}

func registerArtifactTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "create_code_artifact",
		Category:    CategoryCodeArtifacts,
		Description: "Register a code artifact (file, function, module) memories can cite.",
		Mutates:     true,
		Params: []Param{
			{Name: "name", Type: "string", Description: "artifact name", Required: true},
			{Name: "path", Type: "string", Description: "repository path"},
			{Name: "project_id", Type: "int", Description: "owning project"},
		},
		Returns: "the stored artifact",
		Schema: objectSchema(map[string]interface{}{
			"name":       prop("string", "artifact name"),
			"path":       prop("string", "repository path"),
			"project_id": prop("integer", "owning project"),
		}, []string{"name"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			name, err := CoerceString("name", args["name"])
			if err != nil {
				return nil, err
			}
			path, err := CoerceString("path", args["path"])
			if err != nil {
				return nil, err
			}
			a := &domain.CodeArtifact{Name: name, Path: path}
			if pid, ok, err := CoerceInt64("project_id", args["project_id"]); err != nil {
				return nil, err
			} else if ok {
				a.ProjectID = &pid
			}
			return svc.Entity.CreateCodeArtifact(ctx, userID, a)
		},
	})

	reg.Register(&Tool{
		Name:        "list_code_artifacts",
		Category:    CategoryCodeArtifacts,
		Description: "List all code artifacts.",
		Returns:     "the user's code artifacts",
		Schema:      objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, userID string, _ map[string]interface{}) (interface{}, error) {
			return svc.Entity.ListCodeArtifacts(ctx, userID)
		},
	})
}

func registerEntityTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "create_entity",
		Category:    CategoryEntities,
		Description: "Create a knowledge-graph entity such as a person, team or device.",
		Mutates:     true,
		Params: []Param{
			{Name: "name", Type: "string", Description: "entity name", Required: true},
			{Name: "entity_type", Type: "string", Description: "organization | individual | team | device | other", Required: true},
			{Name: "custom_type", Type: "string", Description: "required when entity_type is other"},
			{Name: "aka", Type: "[]string", Description: "alternate names"},
			{Name: "project_id", Type: "int", Description: "owning project"},
		},
		Returns: "the stored entity",
		Schema: objectSchema(map[string]interface{}{
			"name":        prop("string", "entity name"),
			"entity_type": prop("string", "entity type"),
			"custom_type": prop("string", "custom type"),
			"aka":         listProp("string", "alternate names"),
			"project_id":  prop("integer", "owning project"),
		}, []string{"name", "entity_type"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			name, err := CoerceString("name", args["name"])
			if err != nil {
				return nil, err
			}
			entityType, err := CoerceString("entity_type", args["entity_type"])
			if err != nil {
				return nil, err
			}
			customType, err := CoerceString("custom_type", args["custom_type"])
			if err != nil {
				return nil, err
			}
			aka, err := CoerceStringList("aka", args["aka"])
			if err != nil {
				return nil, err
			}
			e := &domain.Entity{
				Name: name, EntityType: domain.EntityType(entityType),
				CustomType: customType, AKA: aka,
			}
			if pid, ok, err := CoerceInt64("project_id", args["project_id"]); err != nil {
				return nil, err
			} else if ok {
				e.ProjectID = &pid
			}
			return svc.Entity.CreateEntity(ctx, userID, e)
		},
	})

	reg.Register(&Tool{
		Name:        "list_entities",
		Category:    CategoryEntities,
		Description: "List all knowledge-graph entities.",
		Returns:     "the user's entities",
		Schema:      objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, userID string, _ map[string]interface{}) (interface{}, error) {
			return svc.Entity.ListEntities(ctx, userID)
		},
	})

	reg.Register(&Tool{
		Name:        "create_entity_relationship",
		Category:    CategoryEntities,
		Description: "Create a directed, typed relationship between two entities.",
		Mutates:     true,
		Params: []Param{
			{Name: "source_entity_id", Type: "int", Description: "source entity", Required: true},
			{Name: "target_entity_id", Type: "int", Description: "target entity", Required: true},
			{Name: "relationship_type", Type: "string", Description: "e.g. works_at, owns", Required: true},
		},
		Returns: "the stored relationship",
		Schema: objectSchema(map[string]interface{}{
			"source_entity_id":  prop("integer", "source entity"),
			"target_entity_id":  prop("integer", "target entity"),
			"relationship_type": prop("string", "relationship type"),
		}, []string{"source_entity_id", "target_entity_id", "relationship_type"}),
		Handler: func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
			src, ok, err := CoerceInt64("source_entity_id", args["source_entity_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("source_entity_id is required")
			}
			tgt, ok, err := CoerceInt64("target_entity_id", args["target_entity_id"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, appErrors.NewValidation("target_entity_id is required")
			}
			relType, err := CoerceString("relationship_type", args["relationship_type"])
			if err != nil {
				return nil, err
			}
			return svc.Entity.CreateRelationship(ctx, userID, &domain.EntityRelationship{
				SourceEntityID: src, TargetEntityID: tgt, RelationshipType: relType,
			})
		},
	})
}

func registerUserTools(reg *Registry, svc Services) {
	reg.Register(&Tool{
		Name:        "get_current_user",
		Category:    CategoryUsers,
		Description: "Return the profile of the calling user.",
		Returns:     "the user record",
		Schema:      objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, userID string, _ map[string]interface{}) (interface{}, error) {
			return svc.Users.GetUserByID(ctx, userID)
		},
	})
}

// --- argument mapping helpers shared by HTTP and MCP surfaces ---

func createMemoryRequestFromArgs(args map[string]interface{}) (memorysvc.CreateMemoryRequest, error) {
	var req memorysvc.CreateMemoryRequest
	var err error
	if req.Title, err = CoerceString("title", args["title"]); err != nil {
		return req, err
	}
	if req.Content, err = CoerceString("content", args["content"]); err != nil {
		return req, err
	}
	if req.Context, err = CoerceString("context", args["context"]); err != nil {
		return req, err
	}
	if req.Keywords, err = CoerceStringList("keywords", args["keywords"]); err != nil {
		return req, err
	}
	if req.Tags, err = CoerceStringList("tags", args["tags"]); err != nil {
		return req, err
	}
	importance, _, err := CoerceInt("importance", args["importance"])
	if err != nil {
		return req, err
	}
	req.Importance = importance
	if req.ProjectIDs, err = CoerceInt64List("project_ids", args["project_ids"]); err != nil {
		return req, err
	}
	if req.DocumentIDs, err = CoerceInt64List("document_ids", args["document_ids"]); err != nil {
		return req, err
	}
	if req.CodeArtifactIDs, err = CoerceInt64List("code_artifact_ids", args["code_artifact_ids"]); err != nil {
		return req, err
	}
	if req.EntityIDs, err = CoerceInt64List("entity_ids", args["entity_ids"]); err != nil {
		return req, err
	}
	return req, nil
}

func updateMemoryRequestFromArgs(args map[string]interface{}) (memorysvc.UpdateMemoryRequest, error) {
	var req memorysvc.UpdateMemoryRequest
	setString := func(field string, dst **string) error {
		if _, present := args[field]; !present {
			return nil
		}
		s, err := CoerceString(field, args[field])
		if err != nil {
			return err
		}
		*dst = &s
		return nil
	}
	if err := setString("title", &req.Title); err != nil {
		return req, err
	}
	if err := setString("content", &req.Content); err != nil {
		return req, err
	}
	if err := setString("context", &req.Context); err != nil {
		return req, err
	}
	if _, present := args["keywords"]; present {
		kw, err := CoerceStringList("keywords", args["keywords"])
		if err != nil {
			return req, err
		}
		if kw == nil {
			kw = []string{}
		}
		req.Keywords = &kw
	}
	if _, present := args["tags"]; present {
		tags, err := CoerceStringList("tags", args["tags"])
		if err != nil {
			return req, err
		}
		if tags == nil {
			tags = []string{}
		}
		req.Tags = &tags
	}
	if imp, ok, err := CoerceInt("importance", args["importance"]); err != nil {
		return req, err
	} else if ok {
		req.Importance = &imp
	}
	setIDs := func(field string, dst **[]int64) error {
		if _, present := args[field]; !present {
			return nil
		}
		ids, err := CoerceInt64List(field, args[field])
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []int64{}
		}
		*dst = &ids
		return nil
	}
	if err := setIDs("project_ids", &req.ProjectIDs); err != nil {
		return req, err
	}
	if err := setIDs("document_ids", &req.DocumentIDs); err != nil {
		return req, err
	}
	if err := setIDs("code_artifact_ids", &req.CodeArtifactIDs); err != nil {
		return req, err
	}
	if err := setIDs("entity_ids", &req.EntityIDs); err != nil {
		return req, err
	}
	return req, nil
}

func queryRequestFromArgs(args map[string]interface{}) (memorysvc.QueryRequest, error) {
	var req memorysvc.QueryRequest
	var err error
	if req.Query, err = CoerceString("query", args["query"]); err != nil {
		return req, err
	}
	if req.QueryContext, err = CoerceString("query_context", args["query_context"]); err != nil {
		return req, err
	}
	if req.K, _, err = CoerceInt("k", args["k"]); err != nil {
		return req, err
	}
	if req.IncludeLinks, _, err = CoerceBool("include_links", args["include_links"]); err != nil {
		return req, err
	}
	if req.MaxLinksPerPrimary, _, err = CoerceInt("max_links_per_primary", args["max_links_per_primary"]); err != nil {
		return req, err
	}
	if req.TokenThreshold, _, err = CoerceInt("token_context_threshold", args["token_context_threshold"]); err != nil {
		return req, err
	}
	if req.MaxMemories, _, err = CoerceInt("max_memories", args["max_memories"]); err != nil {
		return req, err
	}
	if v, ok, err := CoerceInt("importance_threshold", args["importance_threshold"]); err != nil {
		return req, err
	} else if ok {
		req.ImportanceThreshold = &v
	}
	if req.ProjectIDs, err = CoerceInt64List("project_ids", args["project_ids"]); err != nil {
		return req, err
	}
	if req.StrictProjectFilter, _, err = CoerceBool("strict_project_filter", args["strict_project_filter"]); err != nil {
		return req, err
	}
	return req, nil
}

func listParamsFromArgs(args map[string]interface{}) (repository.ListMemoriesParams, error) {
	var params repository.ListMemoriesParams
	var err error
	if params.Limit, _, err = CoerceInt("limit", args["limit"]); err != nil {
		return params, err
	}
	if params.Offset, _, err = CoerceInt("offset", args["offset"]); err != nil {
		return params, err
	}
	if params.SortBy, err = CoerceString("sort_by", args["sort_by"]); err != nil {
		return params, err
	}
	if params.SortOrder, err = CoerceString("sort_order", args["sort_order"]); err != nil {
		return params, err
	}
	if params.Tags, err = CoerceStringList("tags", args["tags"]); err != nil {
		return params, err
	}
	if v, ok, err := CoerceInt("importance_min", args["importance_min"]); err != nil {
		return params, err
	} else if ok {
		params.ImportanceMin = &v
	}
	if pid, ok, err := CoerceInt64("project_id", args["project_id"]); err != nil {
		return params, err
	} else if ok {
		params.ProjectID = &pid
	}
	if params.IncludeObsolete, _, err = CoerceBool("include_obsolete", args["include_obsolete"]); err != nil {
		return params, err
	}
	return params, nil
}

func linkPairFromArgs(args map[string]interface{}) (int64, int64, error) {
	src, ok, err := CoerceInt64("source_id", args["source_id"])
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, appErrors.NewValidation("source_id is required")
	}
	tgt, ok, err := CoerceInt64("target_id", args["target_id"])
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, appErrors.NewValidation("target_id is required")
	}
	return src, tgt, nil
}
