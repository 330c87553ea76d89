package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository/mocks"
	appErrors "forgetful-backend/pkg/errors"
)

func TestResolveUserRequiresBearer(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(8))
	res := NewBearerResolver(repo, zap.NewNop())

	r := httptest.NewRequest("GET", "/", nil)
	_, err := res.ResolveUser(r)
	assert.True(t, appErrors.IsPermissionDenied(err))

	r.Header.Set("Authorization", "Basic abc")
	_, err = res.ResolveUser(r)
	assert.True(t, appErrors.IsPermissionDenied(err))

	r.Header.Set("Authorization", "Bearer ")
	_, err = res.ResolveUser(r)
	assert.True(t, appErrors.IsPermissionDenied(err))
}

func TestResolveUserAutoProvisionIdempotent(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(8))
	res := NewBearerResolver(repo, zap.NewNop())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer subject-123")

	first, err := res.ResolveUser(r)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := res.ResolveUser(r)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestResolveUserDistinctSubjects(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(8))
	res := NewBearerResolver(repo, zap.NewNop())

	a := httptest.NewRequest("GET", "/", nil)
	a.Header.Set("Authorization", "Bearer subject-a")
	b := httptest.NewRequest("GET", "/", nil)
	b.Header.Set("Authorization", "Bearer subject-b")

	idA, err := res.ResolveUser(a)
	require.NoError(t, err)
	idB, err := res.ResolveUser(b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestSessionScopeNormalizesSeparators(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, SessionScope(r))

	r.Header.Set("X-Session-Scope", "read:memories  write:projects")
	assert.Equal(t, "read:memories,write:projects", SessionScope(r))
}
