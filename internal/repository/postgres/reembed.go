package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// CountAllMemories counts every row, obsolete included.
func (s *Store) CountAllMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM memories"); err != nil {
		return 0, appErrors.NewInternal("count memories", err)
	}
	return n, nil
}

// ResetEmbeddingStorage retypes the vector column to the new dimension and
// rebuilds the HNSW index. Existing vectors are discarded; the caller is
// about to regenerate all of them.
func (s *Store) ResetEmbeddingStorage(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return appErrors.NewValidationf("dimensions must be positive, got %d", dimensions)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmts := []string{
			"DROP INDEX IF EXISTS idx_memories_embedding",
			"ALTER TABLE memories DROP COLUMN embedding",
			fmt.Sprintf("ALTER TABLE memories ADD COLUMN embedding vector(%d)", dimensions),
			"CREATE INDEX idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return appErrors.NewInternal("reconfigure vector column", err)
			}
		}
		return nil
	})
}

// GetMemoriesForReembedding pages all memories in stable id order.
func (s *Store) GetMemoriesForReembedding(ctx context.Context, limit, offset int) ([]*domain.Memory, error) {
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+memoryColumns+" FROM memories ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, appErrors.NewInternal("page memories for re-embedding", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// BulkUpdateEmbeddings writes a batch atomically.
func (s *Store) BulkUpdateEmbeddings(ctx context.Context, updates []repository.EmbeddingUpdate) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx,
				"UPDATE memories SET embedding = $1 WHERE id = $2",
				pgvector.NewVector(u.Embedding), u.MemoryID)
			if err != nil {
				return appErrors.NewInternal("update embedding", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return appErrors.NewNotFoundf("memory %d not found", u.MemoryID)
			}
		}
		return nil
	})
}

// CountEmbeddingsWithDimension counts stored vectors of exactly the given
// length.
func (s *Store) CountEmbeddingsWithDimension(ctx context.Context, dimensions int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM memories WHERE embedding IS NOT NULL AND vector_dims(embedding) = $1",
		dimensions)
	if err != nil {
		return 0, appErrors.NewInternal("count embeddings by dimension", err)
	}
	return n, nil
}

var (
	_ repository.Repository   = (*Store)(nil)
	_ repository.BFSTraverser = (*Store)(nil)
)
