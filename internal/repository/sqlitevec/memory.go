package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

type memoryRow struct {
	ID             int64        `db:"id"`
	UserID         string       `db:"user_id"`
	Title          string       `db:"title"`
	Content        string       `db:"content"`
	Context        string       `db:"context"`
	Keywords       string       `db:"keywords"`
	Tags           string       `db:"tags"`
	Importance     int          `db:"importance"`
	Embedding      []byte       `db:"embedding"`
	IsObsolete     bool         `db:"is_obsolete"`
	ObsoleteReason string       `db:"obsolete_reason"`
	SupersededBy   *int64       `db:"superseded_by"`
	ObsoletedAt    sql.NullTime `db:"obsoleted_at"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
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
		Embedding:      deserializeVector(r.Embedding),
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

// CreateMemory embeds the canonical text and writes the row plus junctions
// in one transaction.
func (s *Store) CreateMemory(ctx context.Context, userID string, in repository.CreateMemoryInput) (*domain.Memory, error) {
	text := domain.JoinEmbeddingText(in.Title, in.Content, in.Context, in.Keywords, in.Tags)
	vec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, appErrors.Wrap(err, "generate embedding")
	}
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, appErrors.NewInternal("serialize embedding", err)
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
		res, err := tx.ExecContext(ctx, `
			INSERT INTO memories (user_id, title, content, context, keywords, tags,
				importance, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, in.Title, in.Content, in.Context,
			marshalList(in.Keywords), marshalList(in.Tags),
			in.Importance, blob, ts, ts)
		if err != nil {
			return appErrors.NewInternal("insert memory", err)
		}
		m.ID, _ = res.LastInsertId()
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

// GetMemoryByID returns the memory, obsolete or not, with its associations
// and linked memory IDs hydrated.
func (s *Store) GetMemoryByID(ctx context.Context, userID string, id int64) (*domain.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND user_id = ?`, id, userID)
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

// ListMemories pages with strict, pre-validated sort parameters. The total
// counts matches before pagination.
func (s *Store) ListMemories(ctx context.Context, userID string, params repository.ListMemoriesParams) ([]*domain.Memory, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if !params.IncludeObsolete {
		where = append(where, "is_obsolete = 0")
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
		// Tags live in a JSON array column; EXISTS over json_each gives
		// any-match semantics without a separate tag table.
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(params.Tags)), ",")
		where = append(where,
			"EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value IN ("+placeholders+"))")
		for _, tag := range params.Tags {
			args = append(args, tag)
		}
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM memories WHERE "+cond, args...); err != nil {
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
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
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

// UpdateMemory merges the patch, re-embeds when a search field changed, and
// rewrites touched junctions, all in one transaction.
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

	var blob []byte
	if searchFieldsChanged {
		vec, err := s.embedder.GenerateEmbedding(ctx, current.EmbeddingText())
		if err != nil {
			return nil, appErrors.Wrap(err, "generate embedding")
		}
		if blob, err = serializeVector(vec); err != nil {
			return nil, appErrors.NewInternal("serialize embedding", err)
		}
		current.Embedding = vec
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		current.UpdatedAt = ts
		if searchFieldsChanged {
			_, err = tx.ExecContext(ctx, `
				UPDATE memories SET title=?, content=?, context=?, keywords=?, tags=?,
					importance=?, embedding=?, updated_at=?
				WHERE id=? AND user_id=?`,
				current.Title, current.Content, current.Context,
				marshalList(current.Keywords), marshalList(current.Tags),
				current.Importance, blob, ts, id, userID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE memories SET title=?, content=?, context=?, keywords=?, tags=?,
					importance=?, updated_at=?
				WHERE id=? AND user_id=?`,
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

// MarkObsolete soft-deletes; idempotent on an already-obsolete memory.
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
		UPDATE memories SET is_obsolete=1, obsolete_reason=?, superseded_by=?,
			obsoleted_at=COALESCE(obsoleted_at, ?), updated_at=?
		WHERE id=? AND user_id=?`,
		reason, supersededBy, now(), now(), id, userID)
	if err != nil {
		return appErrors.NewInternal("mark memory obsolete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundf("memory %d not found", id)
	}
	return nil
}

// SemanticSearch embeds the query and ranks candidates by cosine distance in
// application code. Filters narrow the candidate set before the scan; the
// dataset is per-user and small enough that the linear pass stays cheap.
func (s *Store) SemanticSearch(ctx context.Context, userID string, params repository.SemanticSearchParams) ([]*domain.Memory, error) {
	queryVec, err := s.embedder.GenerateEmbedding(ctx, params.Query)
	if err != nil {
		return nil, appErrors.Wrap(err, "embed query")
	}
	candidates, err := s.searchCandidates(ctx, userID, params.ImportanceThreshold, params.ProjectIDs, params.ExcludeIDs)
	if err != nil {
		return nil, err
	}
	return rankByDistance(candidates, queryVec, params.K), nil
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
	candidates, err := s.searchCandidates(ctx, userID, nil, nil, []int64{memoryID})
	if err != nil {
		return nil, err
	}
	return rankByDistance(candidates, anchor.Embedding, maxLinks), nil
}

func (s *Store) searchCandidates(ctx context.Context, userID string, importanceMin *int, projectIDs, excludeIDs []int64) ([]*domain.Memory, error) {
	where := []string{"user_id = ?", "is_obsolete = 0", "embedding IS NOT NULL"}
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
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+memoryColumns+" FROM memories WHERE "+strings.Join(where, " AND "),
		args...)
	if err != nil {
		return nil, appErrors.NewInternal("load search candidates", err)
	}
	out := make([]*domain.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// rankByDistance sorts by cosine distance with the contract tie-break:
// importance desc, created_at desc, id asc.
func rankByDistance(candidates []*domain.Memory, queryVec []float32, k int) []*domain.Memory {
	type scored struct {
		m    *domain.Memory
		dist float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		ranked = append(ranked, scored{m: m, dist: cosineDistance(m.Embedding, queryVec)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		if ranked[i].m.Importance != ranked[j].m.Importance {
			return ranked[i].m.Importance > ranked[j].m.Importance
		}
		if !ranked[i].m.CreatedAt.Equal(ranked[j].m.CreatedAt) {
			return ranked[i].m.CreatedAt.After(ranked[j].m.CreatedAt)
		}
		return ranked[i].m.ID < ranked[j].m.ID
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*domain.Memory, len(ranked))
	for i, r := range ranked {
		out[i] = r.m
	}
	return out
}

// LexicalSearch is the optional keyword stage of the retrieval pipeline:
// a LIKE scan over title, content and keywords ranked by match count.
func (s *Store) LexicalSearch(ctx context.Context, userID, query string, k int) ([]*domain.Memory, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	candidates, err := s.searchCandidates(ctx, userID, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	type scored struct {
		m    *domain.Memory
		hits int
	}
	var ranked []scored
	for _, m := range candidates {
		haystack := strings.ToLower(m.TokenText())
		hits := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				hits++
			}
		}
		if hits > 0 {
			ranked = append(ranked, scored{m, hits})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].hits != ranked[j].hits {
			return ranked[i].hits > ranked[j].hits
		}
		return ranked[i].m.ID < ranked[j].m.ID
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*domain.Memory, len(ranked))
	for i, r := range ranked {
		out[i] = r.m
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

type junctionSpec struct {
	table    string
	column   string
	refTable string
	ids      *[]int64
}

func (s *Store) replaceJunctions(ctx context.Context, tx *sqlx.Tx, userID string, memoryID int64, assoc repository.Associations) error {
	specs := []junctionSpec{
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
			fmt.Sprintf("DELETE FROM %s WHERE memory_id = ?", spec.table), memoryID); err != nil {
			return appErrors.NewInternal("clear "+spec.table, err)
		}
		for _, refID := range *spec.ids {
			var exists int
			err := tx.GetContext(ctx, &exists,
				fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ? AND user_id = ?", spec.refTable),
				refID, userID)
			if err != nil {
				return appErrors.NewInternal("verify "+spec.refTable+" reference", err)
			}
			if exists == 0 {
				return appErrors.NewValidationf("%s %d not found", strings.TrimSuffix(spec.refTable, "s"), refID)
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT OR IGNORE INTO %s (memory_id, %s) VALUES (?, ?)",
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
				"SELECT %s FROM %s WHERE memory_id = ? ORDER BY %s",
				spec.column, spec.table, spec.column), m.ID)
			if err != nil {
				return appErrors.NewInternal("hydrate "+spec.table, err)
			}
			*spec.dst = ids
		}
	}
	return nil
}
