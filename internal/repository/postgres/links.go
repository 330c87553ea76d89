package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forgetful-backend/internal/domain"
	appErrors "forgetful-backend/pkg/errors"
)

// CreateLink stores the pair in canonical order; the UNIQUE constraint turns
// a duplicate into an AlreadyLinked error.
func (s *Store) CreateLink(ctx context.Context, userID string, sourceID, targetID int64) (*domain.MemoryLink, error) {
	if sourceID == targetID {
		return nil, appErrors.NewValidation("a memory cannot link to itself")
	}
	if _, err := s.GetMemoryByID(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	if _, err := s.GetMemoryByID(ctx, userID, targetID); err != nil {
		return nil, err
	}
	lo, hi := domain.CanonicalLinkPair(sourceID, targetID)
	ts := now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO memory_links (user_id, source_id, target_id, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`, userID, lo, hi, ts).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.NewAlreadyLinked("memories are already linked")
		}
		return nil, appErrors.NewInternal("insert link", err)
	}
	return &domain.MemoryLink{
		ID: id, UserID: userID, SourceID: lo, TargetID: hi, CreatedAt: ts,
	}, nil
}

// CreateLinksBatch links sourceID to each target, skipping self-links,
// duplicates, and missing targets.
func (s *Store) CreateLinksBatch(ctx context.Context, userID string, sourceID int64, targetIDs []int64) ([]int64, error) {
	if _, err := s.GetMemoryByID(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	var linked []int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		for _, targetID := range targetIDs {
			if targetID == sourceID {
				continue
			}
			var exists int
			if err := tx.GetContext(ctx, &exists,
				"SELECT COUNT(*) FROM memories WHERE id = $1 AND user_id = $2",
				targetID, userID); err != nil {
				return appErrors.NewInternal("verify link target", err)
			}
			if exists == 0 {
				continue
			}
			lo, hi := domain.CanonicalLinkPair(sourceID, targetID)
			res, err := tx.ExecContext(ctx, `
				INSERT INTO memory_links (user_id, source_id, target_id, created_at)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, userID, lo, hi, ts)
			if err != nil {
				return appErrors.NewInternal("insert link", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				linked = append(linked, targetID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// GetLinkedMemories returns one-hop non-obsolete neighbors ordered by
// importance desc then id asc.
func (s *Store) GetLinkedMemories(ctx context.Context, userID string, memoryID int64, projectIDs []int64, maxLinks int) ([]*domain.Memory, error) {
	if _, err := s.GetMemoryByID(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	query := `
		SELECT ` + memoryColumns + ` FROM memories
		WHERE user_id = ? AND NOT is_obsolete AND id IN (
			SELECT target_id FROM memory_links WHERE source_id = ?
			UNION
			SELECT source_id FROM memory_links WHERE target_id = ?
		)`
	args := []interface{}{userID, memoryID, memoryID}
	if len(projectIDs) > 0 {
		inQ, inArgs, err := sqlx.In(
			" AND id IN (SELECT memory_id FROM memory_projects WHERE project_id IN (?))", projectIDs)
		if err != nil {
			return nil, appErrors.NewInternal("build project filter", err)
		}
		query += inQ
		args = append(args, inArgs...)
	}
	query += " ORDER BY importance DESC, id ASC"
	if maxLinks > 0 {
		query += " LIMIT ?"
		args = append(args, maxLinks)
	}
	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, appErrors.NewInternal("load linked memories", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	if err := s.hydrateAssociations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLinkedMemoryIDs returns every direct neighbor ID, ascending.
func (s *Store) GetLinkedMemoryIDs(ctx context.Context, userID string, memoryID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT CASE WHEN source_id = $1 THEN target_id ELSE source_id END AS neighbor
		FROM memory_links
		WHERE user_id = $2 AND (source_id = $1 OR target_id = $1)
		ORDER BY neighbor`, memoryID, userID)
	if err != nil {
		return nil, appErrors.NewInternal("load linked memory ids", err)
	}
	return ids, nil
}

// DeleteLink removes the pair's link regardless of argument order.
func (s *Store) DeleteLink(ctx context.Context, userID string, sourceID, targetID int64) error {
	lo, hi := domain.CanonicalLinkPair(sourceID, targetID)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_links
		WHERE user_id = $1 AND source_id = $2 AND target_id = $3`, userID, lo, hi)
	if err != nil {
		return appErrors.NewInternal("delete link", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundf("no link between memories %d and %d", sourceID, targetID)
	}
	return nil
}
