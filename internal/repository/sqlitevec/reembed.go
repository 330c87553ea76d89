package sqlitevec

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// CountAllMemories counts every memory row, obsolete included: a re-embed
// pass covers the whole table.
func (s *Store) CountAllMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM memories"); err != nil {
		return 0, appErrors.NewInternal("count memories", err)
	}
	return n, nil
}

// ResetEmbeddingStorage nulls every stored vector. The blob column is
// dimension-agnostic, so no DDL change is needed; the dimensions argument is
// part of the contract for backends with typed vector columns.
func (s *Store) ResetEmbeddingStorage(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return appErrors.NewValidationf("dimensions must be positive, got %d", dimensions)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE memories SET embedding = NULL"); err != nil {
		return appErrors.NewInternal("reset embeddings", err)
	}
	return nil
}

// GetMemoriesForReembedding pages all memories in stable id order.
func (s *Store) GetMemoriesForReembedding(ctx context.Context, limit, offset int) ([]*domain.Memory, error) {
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+memoryColumns+" FROM memories ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, appErrors.NewInternal("page memories for re-embedding", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// BulkUpdateEmbeddings writes a batch of fresh vectors in one transaction so
// a failed batch leaves no partial progress.
func (s *Store) BulkUpdateEmbeddings(ctx context.Context, updates []repository.EmbeddingUpdate) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, u := range updates {
			blob, err := serializeVector(u.Embedding)
			if err != nil {
				return appErrors.NewInternal("serialize embedding", err)
			}
			res, err := tx.ExecContext(ctx,
				"UPDATE memories SET embedding = ? WHERE id = ?", blob, u.MemoryID)
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

// CountEmbeddingsWithDimension counts vectors of exactly the given length.
// Blob length is 4 bytes per float32 component.
func (s *Store) CountEmbeddingsWithDimension(ctx context.Context, dimensions int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM memories WHERE embedding IS NOT NULL AND length(embedding) = ?",
		dimensions*4)
	if err != nil {
		return 0, appErrors.NewInternal("count embeddings by dimension", err)
	}
	return n, nil
}

var _ repository.Repository = (*Store)(nil)
