package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/mocks"
	appErrors "forgetful-backend/pkg/errors"
)

func setup(t *testing.T) *Service {
	t.Helper()
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	return NewService(repo, nil, zap.NewNop())
}

func TestCreateProjectRequiresName(t *testing.T) {
	svc := setup(t)
	_, err := svc.CreateProject(context.Background(), "u1", &domain.Project{Name: "  "})
	assert.True(t, appErrors.IsValidation(err))
}

func TestProjectLifecycle(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "u1", &domain.Project{Name: "infra", Tags: []string{"ops"}})
	require.NoError(t, err)

	name := "platform"
	updated, err := svc.UpdateProject(ctx, "u1", p.ID, repository.ProjectPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "platform", updated.Name)

	list, err := svc.ListProjects(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteProject(ctx, "u1", p.ID))
	_, err = svc.GetProject(ctx, "u1", p.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDocumentRequiresExistingProject(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	missing := int64(9999)
	_, err := svc.CreateDocument(ctx, "u1", &domain.Document{Title: "d", ProjectID: &missing})
	assert.True(t, appErrors.IsNotFound(err))

	p, err := svc.CreateProject(ctx, "u1", &domain.Project{Name: "p"})
	require.NoError(t, err)
	d, err := svc.CreateDocument(ctx, "u1", &domain.Document{Title: "d", ProjectID: &p.ID})
	require.NoError(t, err)
	assert.Equal(t, p.ID, *d.ProjectID)
}

func TestCreateEntityValidation(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	_, err := svc.CreateEntity(ctx, "u1", &domain.Entity{Name: "x", EntityType: "robot"})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.CreateEntity(ctx, "u1", &domain.Entity{Name: "x", EntityType: domain.EntityTypeOther})
	assert.True(t, appErrors.IsValidation(err), "other requires custom_type")

	e, err := svc.CreateEntity(ctx, "u1", &domain.Entity{
		Name: "x", EntityType: domain.EntityTypeOther, CustomType: "vendor",
	})
	require.NoError(t, err)
	assert.Equal(t, "vendor", e.CustomType)
}

func TestRelationshipValidation(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	a, err := svc.CreateEntity(ctx, "u1", &domain.Entity{Name: "a", EntityType: domain.EntityTypeTeam})
	require.NoError(t, err)
	b, err := svc.CreateEntity(ctx, "u1", &domain.Entity{Name: "b", EntityType: domain.EntityTypeTeam})
	require.NoError(t, err)

	_, err = svc.CreateRelationship(ctx, "u1", &domain.EntityRelationship{
		SourceEntityID: a.ID, TargetEntityID: a.ID, RelationshipType: "peer",
	})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.CreateRelationship(ctx, "u1", &domain.EntityRelationship{
		SourceEntityID: a.ID, TargetEntityID: b.ID, RelationshipType: "peer",
	})
	require.NoError(t, err)

	rels, err := svc.ListRelationships(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}
