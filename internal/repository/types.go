package repository

import "forgetful-backend/internal/domain"

// CreateMemoryInput carries the validated fields for a new memory.
type CreateMemoryInput struct {
	Title      string
	Content    string
	Context    string
	Keywords   []string
	Tags       []string
	Importance int

	ProjectIDs      []int64
	CodeArtifactIDs []int64
	DocumentIDs     []int64
	EntityIDs       []int64
}

// MemoryPatch applies PATCH semantics: nil pointers leave the field alone,
// non-nil pointers overwrite it. For the M:N association slices an empty
// non-nil slice clears the association.
type MemoryPatch struct {
	Title      *string
	Content    *string
	Context    *string
	Keywords   *[]string
	Tags       *[]string
	Importance *int

	ProjectIDs      *[]int64
	CodeArtifactIDs *[]int64
	DocumentIDs     *[]int64
	EntityIDs       *[]int64
}

// SearchFieldsChanged reports whether the patch touches any field that feeds
// the canonical embedding text.
func (p MemoryPatch) SearchFieldsChanged() bool {
	return p.Title != nil || p.Content != nil || p.Context != nil ||
		p.Keywords != nil || p.Tags != nil
}

// ProjectPatch applies PATCH semantics to a project.
type ProjectPatch struct {
	Name        *string
	Description *string
	Tags        *[]string
}

// Associations names the M:N junction updates for a memory. Nil slices are
// untouched; empty non-nil slices clear.
type Associations struct {
	ProjectIDs      *[]int64
	CodeArtifactIDs *[]int64
	DocumentIDs     *[]int64
	EntityIDs       *[]int64
}

// SemanticSearchParams filters and sizes a vector search.
type SemanticSearchParams struct {
	Query               string
	K                   int
	ImportanceThreshold *int
	ProjectIDs          []int64
	ExcludeIDs          []int64
}

// Sort enums for the list endpoint. Validation is strict: unknown values are
// a 400, never a silent fallback.
const (
	SortByCreatedAt  = "created_at"
	SortByUpdatedAt  = "updated_at"
	SortByImportance = "importance"
	SortByTitle      = "title"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// ValidSortBy reports whether s names a sortable column.
func ValidSortBy(s string) bool {
	switch s {
	case SortByCreatedAt, SortByUpdatedAt, SortByImportance, SortByTitle:
		return true
	}
	return false
}

// ValidSortOrder reports whether s is a known sort direction.
func ValidSortOrder(s string) bool {
	return s == SortOrderAsc || s == SortOrderDesc
}

// ListMemoriesParams pages and filters the memory listing. Tags use OR
// semantics: a memory carrying any listed tag matches.
type ListMemoriesParams struct {
	Limit           int
	Offset          int
	SortBy          string
	SortOrder       string
	Tags            []string
	ImportanceMin   *int
	ProjectID       *int64
	IncludeObsolete bool
}

// EmbeddingUpdate pairs a memory ID with its freshly generated vector.
type EmbeddingUpdate struct {
	MemoryID  int64
	Embedding []float32
}

// GraphOverviewParams pages the flat graph listing.
type GraphOverviewParams struct {
	IncludeEntities bool
	NodeTypes       []domain.NodeType
	Limit           int
	Offset          int
	SortBy          string
	SortOrder       string
	ProjectID       *int64
}

// GraphOverview is the flat node/edge listing for visualization.
type GraphOverview struct {
	Nodes []domain.SubgraphNode `json:"nodes"`
	Edges []domain.SubgraphEdge `json:"edges"`
	Meta  GraphOverviewMeta     `json:"meta"`
}

// GraphOverviewMeta echoes paging state alongside totals.
type GraphOverviewMeta struct {
	TotalNodes int `json:"total_nodes"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}
