// Package domain defines the core entities of the Forgetful memory store.
package domain

import "time"

// Field length limits enforced at validation time. A memory is intentionally
// small: one concept, easily titled.
const (
	MaxTitleLen    = 200
	MaxContentLen  = 2000
	MaxContextLen  = 500
	MaxKeywords    = 10
	MaxTags        = 10
	MinImportance  = 1
	MaxImportance  = 10
)

// Memory is an atomic knowledge unit owned by a single user.
type Memory struct {
	ID     int64  `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Title   string `json:"title" db:"title"`
	Content string `json:"content" db:"content"`
	Context string `json:"context" db:"context"`

	Keywords   []string `json:"keywords"`
	Tags       []string `json:"tags"`
	Importance int      `json:"importance" db:"importance"`

	ProjectIDs      []int64 `json:"project_ids"`
	CodeArtifactIDs []int64 `json:"code_artifact_ids"`
	DocumentIDs     []int64 `json:"document_ids"`
	EntityIDs       []int64 `json:"entity_ids"`

	// Embedding is populated on write paths; read paths usually leave it nil.
	Embedding []float32 `json:"-"`

	IsObsolete     bool       `json:"is_obsolete" db:"is_obsolete"`
	ObsoleteReason string     `json:"obsolete_reason,omitempty" db:"obsolete_reason"`
	SupersededBy   *int64     `json:"superseded_by,omitempty" db:"superseded_by"`
	ObsoletedAt    *time.Time `json:"obsoleted_at,omitempty" db:"obsoleted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LinkedMemoryIDs is populated by the auto-linker and by direct reads.
	LinkedMemoryIDs []int64 `json:"linked_memory_ids,omitempty"`
}

// EmbeddingText returns the canonical concatenation of a memory's searchable
// fields used as input to the embedding model. Changing this format requires a
// full re-embed pass.
func (m *Memory) EmbeddingText() string {
	return JoinEmbeddingText(m.Title, m.Content, m.Context, m.Keywords, m.Tags)
}

// JoinEmbeddingText builds the canonical embedding text from raw fields,
// so update paths can compute it for a merged record before constructing
// the full entity.
func JoinEmbeddingText(title, content, context string, keywords, tags []string) string {
	parts := make([]string, 0, 5)
	parts = append(parts, title, content, context)
	parts = append(parts, joinSpace(keywords), joinSpace(tags))
	return joinSpace(parts)
}

// TokenText returns the text used for token counting in the query composer.
// It must stay consistent across every caller that charges a memory against
// a token budget.
func (m *Memory) TokenText() string {
	return m.Title + " " + m.Content + " " + m.Context + " " + joinSpace(m.Keywords) + " " + joinSpace(m.Tags)
}

func joinSpace(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

// MemoryLink is a symmetric, unweighted edge between two memories.
// Stored once with SourceID < TargetID; self-links are forbidden.
type MemoryLink struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	SourceID  int64     `json:"source_id" db:"source_id"`
	TargetID  int64     `json:"target_id" db:"target_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CanonicalLinkPair orders a pair of memory IDs into canonical storage order.
func CanonicalLinkPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// LinkedMemory pairs a one-hop neighbor with the primary memory that
// surfaced it during query composition.
type LinkedMemory struct {
	Memory       `json:"memory"`
	LinkSourceID int64 `json:"link_source_id"`
}
