package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// --- users ---

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("user %s not found", id)
		}
		return nil, appErrors.NewInternal("query user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE external_id = ?", externalID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("user with external id %s not found", externalID)
		}
		return nil, appErrors.NewInternal("query user", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, external_id, name, email, idp_metadata, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalID, u.Name, u.Email, u.IdPMetadata, u.Notes, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.NewValidationf("user with external id %s already exists", u.ExternalID)
		}
		return nil, appErrors.NewInternal("insert user", err)
	}
	return u, nil
}

// --- projects ---

type projectRow struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Tags        string    `db:"tags"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r projectRow) toDomain() *domain.Project {
	return &domain.Project{
		ID: r.ID, UserID: r.UserID, Name: r.Name, Description: r.Description,
		Tags: unmarshalList(r.Tags), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateProject(ctx context.Context, userID string, p *domain.Project) (*domain.Project, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (user_id, name, description, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, p.Name, p.Description, marshalList(p.Tags), ts, ts)
	if err != nil {
		return nil, appErrors.NewInternal("insert project", err)
	}
	p.ID, _ = res.LastInsertId()
	p.UserID = userID
	p.CreatedAt, p.UpdatedAt = ts, ts
	return p, nil
}

func (s *Store) GetProjectByID(ctx context.Context, userID string, id int64) (*domain.Project, error) {
	var r projectRow
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM projects WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("project %d not found", id)
		}
		return nil, appErrors.NewInternal("query project", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListProjects(ctx context.Context, userID string) ([]*domain.Project, error) {
	var rows []projectRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM projects WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, appErrors.NewInternal("list projects", err)
	}
	out := make([]*domain.Project, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, userID string, id int64, patch repository.ProjectPatch) (*domain.Project, error) {
	p, err := s.GetProjectByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	p.UpdatedAt = now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE projects SET name=?, description=?, tags=?, updated_at=?
		WHERE id=? AND user_id=?`,
		p.Name, p.Description, marshalList(p.Tags), p.UpdatedAt, id, userID)
	if err != nil {
		return nil, appErrors.NewInternal("update project", err)
	}
	return p, nil
}

// DeleteProject removes the project. Junction rows cascade away and owned
// documents, artifacts and entities fall back to no project; memories
// themselves always survive.
func (s *Store) DeleteProject(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM projects WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return appErrors.NewInternal("delete project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundf("project %d not found", id)
	}
	return nil
}

// --- documents ---

type documentRow struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	URI       string    `db:"uri"`
	ProjectID *int64    `db:"project_id"`
	Tags      string    `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r documentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID: r.ID, UserID: r.UserID, Title: r.Title, URI: r.URI,
		ProjectID: r.ProjectID, Tags: unmarshalList(r.Tags),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateDocument(ctx context.Context, userID string, d *domain.Document) (*domain.Document, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (user_id, title, uri, project_id, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, d.Title, d.URI, d.ProjectID, marshalList(d.Tags), ts, ts)
	if err != nil {
		return nil, appErrors.NewInternal("insert document", err)
	}
	d.ID, _ = res.LastInsertId()
	d.UserID = userID
	d.CreatedAt, d.UpdatedAt = ts, ts
	return d, nil
}

func (s *Store) GetDocumentByID(ctx context.Context, userID string, id int64) (*domain.Document, error) {
	var r documentRow
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM documents WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("document %d not found", id)
		}
		return nil, appErrors.NewInternal("query document", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM documents WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, appErrors.NewInternal("list documents", err)
	}
	out := make([]*domain.Document, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID string, id int64) error {
	return s.deleteOwnedRow(ctx, "documents", "document", userID, id)
}

// --- code artifacts ---

type artifactRow struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Path      string    `db:"path"`
	Language  string    `db:"language"`
	ProjectID *int64    `db:"project_id"`
	Tags      string    `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r artifactRow) toDomain() *domain.CodeArtifact {
	return &domain.CodeArtifact{
		ID: r.ID, UserID: r.UserID, Name: r.Name, Path: r.Path, Language: r.Language,
		ProjectID: r.ProjectID, Tags: unmarshalList(r.Tags),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateCodeArtifact(ctx context.Context, userID string, a *domain.CodeArtifact) (*domain.CodeArtifact, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO code_artifacts (user_id, name, path, language, project_id, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, a.Name, a.Path, a.Language, a.ProjectID, marshalList(a.Tags), ts, ts)
	if err != nil {
		return nil, appErrors.NewInternal("insert code artifact", err)
	}
	a.ID, _ = res.LastInsertId()
	a.UserID = userID
	a.CreatedAt, a.UpdatedAt = ts, ts
	return a, nil
}

func (s *Store) GetCodeArtifactByID(ctx context.Context, userID string, id int64) (*domain.CodeArtifact, error) {
	var r artifactRow
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM code_artifacts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("code artifact %d not found", id)
		}
		return nil, appErrors.NewInternal("query code artifact", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListCodeArtifacts(ctx context.Context, userID string) ([]*domain.CodeArtifact, error) {
	var rows []artifactRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM code_artifacts WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, appErrors.NewInternal("list code artifacts", err)
	}
	out := make([]*domain.CodeArtifact, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) DeleteCodeArtifact(ctx context.Context, userID string, id int64) error {
	return s.deleteOwnedRow(ctx, "code_artifacts", "code artifact", userID, id)
}

// --- entities ---

type entityRow struct {
	ID         int64     `db:"id"`
	UserID     string    `db:"user_id"`
	Name       string    `db:"name"`
	EntityType string    `db:"entity_type"`
	CustomType string    `db:"custom_type"`
	AKA        string    `db:"aka"`
	Notes      string    `db:"notes"`
	ProjectID  *int64    `db:"project_id"`
	Tags       string    `db:"tags"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r entityRow) toDomain() *domain.Entity {
	return &domain.Entity{
		ID: r.ID, UserID: r.UserID, Name: r.Name,
		EntityType: domain.EntityType(r.EntityType), CustomType: r.CustomType,
		AKA: unmarshalList(r.AKA), Notes: r.Notes, ProjectID: r.ProjectID,
		Tags: unmarshalList(r.Tags), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateEntity(ctx context.Context, userID string, e *domain.Entity) (*domain.Entity, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (user_id, name, entity_type, custom_type, aka, notes, project_id, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, e.Name, string(e.EntityType), e.CustomType, marshalList(e.AKA),
		e.Notes, e.ProjectID, marshalList(e.Tags), ts, ts)
	if err != nil {
		return nil, appErrors.NewInternal("insert entity", err)
	}
	e.ID, _ = res.LastInsertId()
	e.UserID = userID
	e.CreatedAt, e.UpdatedAt = ts, ts
	return e, nil
}

func (s *Store) GetEntityByID(ctx context.Context, userID string, id int64) (*domain.Entity, error) {
	var r entityRow
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM entities WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.NewNotFoundf("entity %d not found", id)
		}
		return nil, appErrors.NewInternal("query entity", err)
	}
	return r.toDomain(), nil
}

func (s *Store) ListEntities(ctx context.Context, userID string) ([]*domain.Entity, error) {
	var rows []entityRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM entities WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, appErrors.NewInternal("list entities", err)
	}
	out := make([]*domain.Entity, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// DeleteEntity removes the entity; relationships and memory junctions cascade.
func (s *Store) DeleteEntity(ctx context.Context, userID string, id int64) error {
	return s.deleteOwnedRow(ctx, "entities", "entity", userID, id)
}

func (s *Store) CreateEntityRelationship(ctx context.Context, userID string, rel *domain.EntityRelationship) (*domain.EntityRelationship, error) {
	if _, err := s.GetEntityByID(ctx, userID, rel.SourceEntityID); err != nil {
		return nil, err
	}
	if _, err := s.GetEntityByID(ctx, userID, rel.TargetEntityID); err != nil {
		return nil, err
	}
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_relationships
			(user_id, source_entity_id, target_entity_id, relationship_type,
			 strength, confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, rel.SourceEntityID, rel.TargetEntityID, rel.RelationshipType,
		rel.Strength, rel.Confidence, rel.Metadata, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.NewValidationf(
				"relationship %s already exists between entities %d and %d",
				rel.RelationshipType, rel.SourceEntityID, rel.TargetEntityID)
		}
		return nil, appErrors.NewInternal("insert entity relationship", err)
	}
	rel.ID, _ = res.LastInsertId()
	rel.UserID = userID
	rel.CreatedAt = ts
	return rel, nil
}

type relationshipRow struct {
	ID               int64           `db:"id"`
	UserID           string          `db:"user_id"`
	SourceEntityID   int64           `db:"source_entity_id"`
	TargetEntityID   int64           `db:"target_entity_id"`
	RelationshipType string          `db:"relationship_type"`
	Strength         sql.NullFloat64 `db:"strength"`
	Confidence       sql.NullFloat64 `db:"confidence"`
	Metadata         []byte          `db:"metadata"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (r relationshipRow) toDomain() *domain.EntityRelationship {
	rel := &domain.EntityRelationship{
		ID: r.ID, UserID: r.UserID,
		SourceEntityID: r.SourceEntityID, TargetEntityID: r.TargetEntityID,
		RelationshipType: r.RelationshipType, Metadata: r.Metadata,
		CreatedAt: r.CreatedAt,
	}
	if r.Strength.Valid {
		v := r.Strength.Float64
		rel.Strength = &v
	}
	if r.Confidence.Valid {
		v := r.Confidence.Float64
		rel.Confidence = &v
	}
	return rel
}

// ListEntityRelationships returns relationships touching the entity in either
// direction.
func (s *Store) ListEntityRelationships(ctx context.Context, userID string, entityID int64) ([]*domain.EntityRelationship, error) {
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM entity_relationships
		WHERE user_id = ? AND (source_entity_id = ? OR target_entity_id = ?)
		ORDER BY id`, userID, entityID, entityID)
	if err != nil {
		return nil, appErrors.NewInternal("list entity relationships", err)
	}
	out := make([]*domain.EntityRelationship, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) deleteOwnedRow(ctx context.Context, table, label, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", table), id, userID)
	if err != nil {
		return appErrors.NewInternal("delete "+label, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundf("%s %d not found", label, id)
	}
	return nil
}
