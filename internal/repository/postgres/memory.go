package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

type memoryRow struct {
	ID             int64           `db:"id"`
	UserID         string          `db:"user_id"`
	Title          string          `db:"title"`
	Content        string          `db:"content"`
	Context        string          `db:"context"`
	Keywords       []byte          `db:"keywords"`
	Tags           []byte          `db:"tags"`
	Importance     int             `db:"importance"`
	Embedding      pgvector.Vector `db:"embedding"`
	IsObsolete     bool            `db:"is_obsolete"`
	ObsoleteReason string          `db:"obsolete_reason"`
	SupersededBy   *int64          `db:"superseded_by"`
	ObsoletedAt    sql.NullTime    `db:"obsoleted_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r memoryRow) toDomain() *domain.Memory {
	m := &domain.Memory{
		ID:             r.ID,
		UserID:         r.UserID,
		Title:          r.Title,
		Content:        r.Content,
		Context:        r.Context,
		Keywords:       unmarshalList(r.Keywords),
		Tags:           unmarshalList(r.Tags),
		Importance:     r.Importance,
		Embedding:      r.Embedding.Slice(),
		IsObsolete:     r.IsObsolete,
		ObsoleteReason: r.ObsoleteReason,
		SupersededBy:   r.SupersededBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ObsoletedAt.Valid {
		t := r.ObsoletedAt.Time
		m.ObsoletedAt = &t
	}
	return m
}

const memoryColumns = `id, user_id, title, content, context, keywords, tags,
	importance, embedding, is_obsolete, obsolete_reason, superseded_by,
	obsoleted_at, created_at, updated_at`

// CreateMemory embeds the canonical text and writes row plus junctions
// transactionally.
func (s *Store) CreateMemory(ctx context.Context, userID string, in repository.CreateMemoryInput) (*domain.Memory, error) {
	text := domain.JoinEmbeddingText(in.Title, in.Content, in.Context, in.Keywords, in.Tags)
	vec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, appErrors.Wrap(err, "generate embedding")
	}

	m := &domain.Memory{
		UserID:          userID,
		Title:           in.Title,
		Content:         in.Content,
		Context:         in.Context,
		Keywords:        in.Keywords,
		Tags:            in.Tags,
		Importance:      in.Importance,
		ProjectIDs:      in.ProjectIDs,
		CodeArtifactIDs: in.CodeArtifactIDs,
		DocumentIDs:     in.DocumentIDs,
		EntityIDs:       in.EntityIDs,
		Embedding:       vec,
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		err := tx.QueryRowContext(ctx, `
			INSERT INTO memories (user_id, title, content, context, keywords, tags,
				importance, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			userID, in.Title, in.Content, in.Context,
			marshalList(in.Keywords), marshalList(in.Tags),
			in.Importance, pgvector.NewVector(vec), ts, ts).Scan(&m.ID)
		if err != nil {
			return appErrors.NewInternal("insert memory", err)
		}
		m.CreatedAt, m.UpdatedAt = ts, ts
		return s.replaceJunctions(ctx, tx, userID, m.ID, repository.Associations{
			ProjectIDs:      &in.ProjectIDs,
			CodeArtifactIDs: &in.CodeArtifactIDs,
			DocumentIDs:     &in.DocumentIDs,
			EntityIDs:       &in.EntityIDs,
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMemoryByID returns the memory, obsolete included, fully hydrated.
func (s *Store) GetMemoryByID(ctx context.Context, userID string, id int64) (*domain.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("memory %d not found", id)
		}
		return nil, appErrors.NewInternal("query memory", err)
	}
	m := row.toDomain()
	if err := s.hydrateAssociations(ctx, []*domain.Memory{m}); err != nil {
		return nil, err
	}
	linked, err := s.GetLinkedMemoryIDs(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	m.LinkedMemoryIDs = linked
	return m, nil
}

// ListMemories pages with pre-validated sort parameters.
func (s *Store) ListMemories(ctx context.Context, userID string, params repository.ListMemoriesParams) ([]*domain.Memory, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if !params.IncludeObsolete {
		where = append(where, "NOT is_obsolete")
	}
	if params.ImportanceMin != nil {
		where = append(where, "importance >= ?")
		args = append(args, *params.ImportanceMin)
	}
	if params.ProjectID != nil {
		where = append(where, "id IN (SELECT memory_id FROM memory_projects WHERE project_id = ?)")
		args = append(args, *params.ProjectID)
	}
	if len(params.Tags) > 0 {
		// JSONB containment per tag, OR'd for any-match semantics.
		tagConds := make([]string, len(params.Tags))
		for i, tag := range params.Tags {
			tagConds[i] = "tags @> ?"
			b := marshalList([]string{tag})
			args = append(args, b)
		}
		where = append(where, "("+strings.Join(tagConds, " OR ")+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		s.q("SELECT COUNT(*) FROM memories WHERE "+cond), args...); err != nil {
		return nil, 0, appErrors.NewInternal("count memories", err)
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = repository.SortByCreatedAt
	}
	sortOrder := params.SortOrder
	if sortOrder == "" {
		sortOrder = repository.SortOrderDesc
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(
		"SELECT "+memoryColumns+" FROM memories WHERE %s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?",
		cond, sortBy, strings.ToUpper(sortOrder))
	args = append(args, limit, params.Offset)

	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, 0, appErrors.NewInternal("list memories", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	if err := s.hydrateAssociations(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateMemory merges the patch and re-embeds when a search field changed.
func (s *Store) UpdateMemory(ctx context.Context, userID string, id int64, patch repository.MemoryPatch, searchFieldsChanged bool) (*domain.Memory, error) {
	current, err := s.GetMemoryByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		current.Title = *patch.Title
	}
	if patch.Content != nil {
		current.Content = *patch.Content
	}
	if patch.Context != nil {
		current.Context = *patch.Context
	}
	if patch.Keywords != nil {
		current.Keywords = *patch.Keywords
	}
	if patch.Tags != nil {
		current.Tags = *patch.Tags
	}
	if patch.Importance != nil {
		current.Importance = *patch.Importance
	}
	if searchFieldsChanged {
		vec, err := s.embedder.GenerateEmbedding(ctx, current.EmbeddingText())
		if err != nil {
			return nil, appErrors.Wrap(err, "generate embedding")
		}
		current.Embedding = vec
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		current.UpdatedAt = ts
		if searchFieldsChanged {
			_, err = tx.ExecContext(ctx, `
				UPDATE memories SET title=$1, content=$2, context=$3, keywords=$4,
					tags=$5, importance=$6, embedding=$7, updated_at=$8
				WHERE id=$9 AND user_id=$10`,
				current.Title, current.Content, current.Context,
				marshalList(current.Keywords), marshalList(current.Tags),
				current.Importance, pgvector.NewVector(current.Embedding), ts, id, userID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE memories SET title=$1, content=$2, context=$3, keywords=$4,
					tags=$5, importance=$6, updated_at=$7
				WHERE id=$8 AND user_id=$9`,
				current.Title, current.Content, current.Context,
				marshalList(current.Keywords), marshalList(current.Tags),
				current.Importance, ts, id, userID)
		}
		if err != nil {
			return appErrors.NewInternal("update memory", err)
		}
		return s.replaceJunctions(ctx, tx, userID, id, repository.Associations{
			ProjectIDs:      patch.ProjectIDs,
			CodeArtifactIDs: patch.CodeArtifactIDs,
			DocumentIDs:     patch.DocumentIDs,
			EntityIDs:       patch.EntityIDs,
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.hydrateAssociations(ctx, []*domain.Memory{current}); err != nil {
		return nil, err
	}
	return current, nil
}

// MarkObsolete soft-deletes; idempotent.
func (s *Store) MarkObsolete(ctx context.Context, userID string, id int64, reason string, supersededBy *int64) error {
	if supersededBy != nil {
		if *supersededBy == id {
			return appErrors.NewValidation("a memory cannot supersede itself")
		}
		if _, err := s.GetMemoryByID(ctx, userID, *supersededBy); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET is_obsolete=TRUE, obsolete_reason=$1, superseded_by=$2,
			obsoleted_at=COALESCE(obsoleted_at, $3), updated_at=$4
		WHERE id=$5 AND user_id=$6`,
		reason, supersededBy, now(), now(), id, userID)
	if err != nil {
		return appErrors.NewInternal("mark memory obsolete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundf("memory %d not found", id)
	}
	return nil
}

// SemanticSearch ranks inside the database against the HNSW index. The
// cosine-distance operator sorts first; the contract tie-break follows.
func (s *Store) SemanticSearch(ctx context.Context, userID string, params repository.SemanticSearchParams) ([]*domain.Memory, error) {
	queryVec, err := s.embedder.GenerateEmbedding(ctx, params.Query)
	if err != nil {
		return nil, appErrors.Wrap(err, "embed query")
	}
	return s.vectorSearch(ctx, userID, pgvector.NewVector(queryVec), params.K,
		params.ImportanceThreshold, params.ProjectIDs, params.ExcludeIDs)
}

// FindSimilarMemories ranks against the stored vector of the given memory.
func (s *Store) FindSimilarMemories(ctx context.Context, userID string, memoryID int64, maxLinks int) ([]*domain.Memory, error) {
	anchor, err := s.GetMemoryByID(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if anchor.Embedding == nil {
		return nil, nil
	}
	return s.vectorSearch(ctx, userID, pgvector.NewVector(anchor.Embedding),
		maxLinks, nil, nil, []int64{memoryID})
}

func (s *Store) vectorSearch(ctx context.Context, userID string, queryVec pgvector.Vector, k int, importanceMin *int, projectIDs, excludeIDs []int64) ([]*domain.Memory, error) {
	where := []string{"user_id = ?", "NOT is_obsolete", "embedding IS NOT NULL"}
	args := []interface{}{userID}
	if importanceMin != nil {
		where = append(where, "importance >= ?")
		args = append(args, *importanceMin)
	}
	if len(projectIDs) > 0 {
		q, qargs, err := sqlx.In(
			"id IN (SELECT memory_id FROM memory_projects WHERE project_id IN (?))", projectIDs)
		if err != nil {
			return nil, appErrors.NewInternal("build project filter", err)
		}
		where = append(where, q)
		args = append(args, qargs...)
	}
	if len(excludeIDs) > 0 {
		q, qargs, err := sqlx.In("id NOT IN (?)", excludeIDs)
		if err != nil {
			return nil, appErrors.NewInternal("build exclusion filter", err)
		}
		where = append(where, q)
		args = append(args, qargs...)
	}
	query := "SELECT " + memoryColumns + " FROM memories WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY embedding <=> ?, importance DESC, created_at DESC, id ASC"
	args = append(args, queryVec)
	if k > 0 {
		query += " LIMIT ?"
		args = append(args, k)
	}
	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, appErrors.NewInternal("vector search", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// LexicalSearch is the keyword stage: full-text match over title, content and
// keywords ranked by ts_rank.
func (s *Store) LexicalSearch(ctx context.Context, userID, query string, k int) ([]*domain.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+memoryColumns+` FROM memories
		WHERE user_id = $1 AND NOT is_obsolete
		  AND to_tsvector('simple', title || ' ' || content || ' ' || keywords::text)
		      @@ plainto_tsquery('simple', $2)
		ORDER BY ts_rank(
			to_tsvector('simple', title || ' ' || content || ' ' || keywords::text),
			plainto_tsquery('simple', $2)) DESC, id ASC
		LIMIT $3`, userID, query, k)
	if err != nil {
		return nil, appErrors.NewInternal("lexical search", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// AssociateMemory rewrites the touched M:N junctions.
func (s *Store) AssociateMemory(ctx context.Context, userID string, memoryID int64, assoc repository.Associations) error {
	if _, err := s.GetMemoryByID(ctx, userID, memoryID); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return s.replaceJunctions(ctx, tx, userID, memoryID, assoc)
	})
}

func (s *Store) replaceJunctions(ctx context.Context, tx *sqlx.Tx, userID string, memoryID int64, assoc repository.Associations) error {
	specs := []struct {
		table    string
		column   string
		refTable string
		ids      *[]int64
	}{
		{"memory_projects", "project_id", "projects", assoc.ProjectIDs},
		{"memory_documents", "document_id", "documents", assoc.DocumentIDs},
		{"memory_code_artifacts", "code_artifact_id", "code_artifacts", assoc.CodeArtifactIDs},
		{"memory_entities", "entity_id", "entities", assoc.EntityIDs},
	}
	for _, spec := range specs {
		if spec.ids == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE memory_id = $1", spec.table), memoryID); err != nil {
			return appErrors.NewInternal("clear "+spec.table, err)
		}
		for _, refID := range *spec.ids {
			var exists int
			err := tx.GetContext(ctx, &exists,
				fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = $1 AND user_id = $2", spec.refTable),
				refID, userID)
			if err != nil {
				return appErrors.NewInternal("verify "+spec.refTable+" reference", err)
			}
			if exists == 0 {
				return appErrors.NewValidationf("%s %d not found",
					strings.ReplaceAll(strings.TrimSuffix(spec.refTable, "s"), "_", " "), refID)
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (memory_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
					spec.table, spec.column), memoryID, refID); err != nil {
				return appErrors.NewInternal("insert into "+spec.table, err)
			}
		}
	}
	return nil
}

func (s *Store) hydrateAssociations(ctx context.Context, memories []*domain.Memory) error {
	for _, m := range memories {
		specs := []struct {
			table  string
			column string
			dst    *[]int64
		}{
			{"memory_projects", "project_id", &m.ProjectIDs},
			{"memory_documents", "document_id", &m.DocumentIDs},
			{"memory_code_artifacts", "code_artifact_id", &m.CodeArtifactIDs},
			{"memory_entities", "entity_id", &m.EntityIDs},
		}
		for _, spec := range specs {
			var ids []int64
			err := s.db.SelectContext(ctx, &ids, fmt.Sprintf(
				"SELECT %s FROM %s WHERE memory_id = $1 ORDER BY %s",
				spec.column, spec.table, spec.column), m.ID)
			if err != nil {
				return appErrors.NewInternal("hydrate "+spec.table, err)
			}
			*spec.dst = ids
		}
	}
	return nil
}
