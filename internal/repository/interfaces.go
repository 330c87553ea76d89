// Package repository defines the data access contract for the Forgetful
// store. Two backends implement it with identical semantics: an embedded
// SQLite store (brute-force cosine in application code) and a PostgreSQL
// store using pgvector with an HNSW index.
//
// Every operation is scoped by userID. User isolation is an invariant, not a
// convenience: no implementation may return rows belonging to another user.
package repository

import (
	"context"

	"forgetful-backend/internal/domain"
)

// MemoryRepository persists memories and answers vector queries over them.
type MemoryRepository interface {
	// CreateMemory generates the embedding from the canonical embedding text
	// and stores the row plus its association junctions.
	CreateMemory(ctx context.Context, userID string, in CreateMemoryInput) (*domain.Memory, error)

	// GetMemoryByID returns the memory even when it is obsolete.
	GetMemoryByID(ctx context.Context, userID string, id int64) (*domain.Memory, error)

	// ListMemories returns a page of memories plus the total count before
	// pagination.
	ListMemories(ctx context.Context, userID string, params ListMemoriesParams) ([]*domain.Memory, int, error)

	// UpdateMemory applies a patch atomically. When searchFieldsChanged, the
	// embedding is regenerated from the merged record before the write.
	UpdateMemory(ctx context.Context, userID string, id int64, patch MemoryPatch, searchFieldsChanged bool) (*domain.Memory, error)

	// MarkObsolete soft-deletes a memory. supersededBy, when set, must
	// reference a memory owned by the same user and different from id.
	// Idempotent: marking an already-obsolete memory succeeds.
	MarkObsolete(ctx context.Context, userID string, id int64, reason string, supersededBy *int64) error

	// SemanticSearch ranks non-obsolete memories by cosine distance to the
	// embedded query, applying filters before distance where possible.
	// Ties break by importance desc, created_at desc, id asc.
	SemanticSearch(ctx context.Context, userID string, params SemanticSearchParams) ([]*domain.Memory, error)

	// FindSimilarMemories returns the nearest non-obsolete neighbors of the
	// given memory's stored embedding, excluding the memory itself.
	FindSimilarMemories(ctx context.Context, userID string, memoryID int64, maxLinks int) ([]*domain.Memory, error)
}

// LinkRepository manages the canonical bidirectional link table.
type LinkRepository interface {
	// CreateLink validates both endpoints, canonicalizes the pair so the
	// stored source < target, and writes one row. A duplicate pair returns
	// an AlreadyLinked error; self-links return a Validation error.
	CreateLink(ctx context.Context, userID string, sourceID, targetID int64) (*domain.MemoryLink, error)

	// CreateLinksBatch links sourceID to each target, skipping self-links,
	// duplicates, and missing targets. Returns the targets actually linked.
	CreateLinksBatch(ctx context.Context, userID string, sourceID int64, targetIDs []int64) ([]int64, error)

	// GetLinkedMemories returns one-hop non-obsolete neighbors ordered by
	// importance desc then id asc, limited to maxLinks. When projectIDs is
	// non-empty, only neighbors sharing at least one project qualify.
	GetLinkedMemories(ctx context.Context, userID string, memoryID int64, projectIDs []int64, maxLinks int) ([]*domain.Memory, error)

	// GetLinkedMemoryIDs returns the IDs of all direct neighbors.
	GetLinkedMemoryIDs(ctx context.Context, userID string, memoryID int64) ([]int64, error)

	// DeleteLink removes the link between the two memories in either order.
	DeleteLink(ctx context.Context, userID string, sourceID, targetID int64) error
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, userID string, p *domain.Project) (*domain.Project, error)
	GetProjectByID(ctx context.Context, userID string, id int64) (*domain.Project, error)
	ListProjects(ctx context.Context, userID string) ([]*domain.Project, error)
	UpdateProject(ctx context.Context, userID string, id int64, patch ProjectPatch) (*domain.Project, error)
	DeleteProject(ctx context.Context, userID string, id int64) error
}

// DocumentRepository persists document references.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, userID string, d *domain.Document) (*domain.Document, error)
	GetDocumentByID(ctx context.Context, userID string, id int64) (*domain.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error)
	DeleteDocument(ctx context.Context, userID string, id int64) error
}

// CodeArtifactRepository persists code artifact references.
type CodeArtifactRepository interface {
	CreateCodeArtifact(ctx context.Context, userID string, a *domain.CodeArtifact) (*domain.CodeArtifact, error)
	GetCodeArtifactByID(ctx context.Context, userID string, id int64) (*domain.CodeArtifact, error)
	ListCodeArtifacts(ctx context.Context, userID string) ([]*domain.CodeArtifact, error)
	DeleteCodeArtifact(ctx context.Context, userID string, id int64) error
}

// EntityRepository persists knowledge-graph entities and their relationships.
type EntityRepository interface {
	CreateEntity(ctx context.Context, userID string, e *domain.Entity) (*domain.Entity, error)
	GetEntityByID(ctx context.Context, userID string, id int64) (*domain.Entity, error)
	ListEntities(ctx context.Context, userID string) ([]*domain.Entity, error)
	DeleteEntity(ctx context.Context, userID string, id int64) error

	// CreateEntityRelationship enforces uniqueness on
	// (source, target, relationship_type).
	CreateEntityRelationship(ctx context.Context, userID string, r *domain.EntityRelationship) (*domain.EntityRelationship, error)
	ListEntityRelationships(ctx context.Context, userID string, entityID int64) ([]*domain.EntityRelationship, error)
}

// UserRepository resolves and provisions users. ExternalID uniqueness is the
// idempotency key for auto-provisioning.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)
}

// TraversalRepository exposes the primitives the graph service needs for
// application-side breadth-first traversal.
type TraversalRepository interface {
	// NodeExists reports whether the node exists for the user (obsolete
	// memories excluded).
	NodeExists(ctx context.Context, userID string, ref domain.NodeRef) (bool, error)

	// NeighborRefs enumerates direct neighbors of ref restricted to the
	// allowed node types. Obsolete memories never appear.
	NeighborRefs(ctx context.Context, userID string, ref domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.NodeRef, error)

	// FetchNodes bulk-hydrates row data per type. Refs that vanished under
	// a raced delete are simply absent from the result.
	FetchNodes(ctx context.Context, userID string, refs []domain.NodeRef) (map[domain.NodeRef]interface{}, error)

	// EdgesAmong returns every stored edge whose endpoints both lie in refs
	// and whose type is implied by the allowed node types. Undirected edge
	// rows are already deduplicated by canonical edge ID.
	EdgesAmong(ctx context.Context, userID string, refs []domain.NodeRef, allowed map[domain.NodeType]bool) ([]domain.SubgraphEdge, error)
}

// BFSTraverser is an optional fast path: backends with recursive-CTE support
// can return the whole frontier expansion in one round trip. The graph
// service type-asserts for it and falls back to NeighborRefs otherwise.
type BFSTraverser interface {
	TraverseBFS(ctx context.Context, userID string, center domain.NodeRef, depth, maxNodes int, allowed map[domain.NodeType]bool) (refs []domain.NodeRef, depths map[domain.NodeRef]int, truncated bool, err error)
}

// ReembedRepository exposes the primitives of the re-embed pipeline.
type ReembedRepository interface {
	CountAllMemories(ctx context.Context) (int, error)

	// ResetEmbeddingStorage clears every stored vector and reconfigures the
	// vector column/table for the given dimension. Must not run concurrently
	// with writes; that discipline belongs to the operator.
	ResetEmbeddingStorage(ctx context.Context, dimensions int) error

	GetMemoriesForReembedding(ctx context.Context, limit, offset int) ([]*domain.Memory, error)
	BulkUpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error

	// CountEmbeddingsWithDimension counts stored vectors of exactly the
	// given length, for post-run validation.
	CountEmbeddingsWithDimension(ctx context.Context, dimensions int) (int, error)
}

// GraphOverviewRepository serves the flat graph listing endpoint.
type GraphOverviewRepository interface {
	GetGraphOverview(ctx context.Context, userID string, params GraphOverviewParams) (*GraphOverview, error)
}

// Repository is the full contract both backends satisfy.
type Repository interface {
	MemoryRepository
	LinkRepository
	ProjectRepository
	DocumentRepository
	CodeArtifactRepository
	EntityRepository
	UserRepository
	TraversalRepository
	ReembedRepository
	GraphOverviewRepository

	// AssociateMemory manages the M:N junctions between a memory and the
	// typed entities. An empty-but-non-nil ID list clears the association.
	AssociateMemory(ctx context.Context, userID string, memoryID int64, assoc Associations) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the connection pool.
	Close() error
}
