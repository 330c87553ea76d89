package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/mocks"
	appErrors "forgetful-backend/pkg/errors"
)

func seed(t *testing.T, repo *mocks.MockRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.CreateMemory(context.Background(), "u1", repository.CreateMemoryInput{
			Title: fmt.Sprintf("note %d", i), Content: "body", Importance: 5,
		})
		require.NoError(t, err)
	}
}

func TestRunReembedsEverythingAndValidates(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	seed(t, repo, 7)

	// Switch to a wider provider, as a model migration would.
	svc := NewService(repo, embedding.NewHashAdapter(64), nil, 3, zap.NewNop())

	var batches []Progress
	res, err := svc.Run(context.Background(), func(p Progress) { batches = append(batches, p) })
	require.NoError(t, err)

	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 7, res.Processed)
	assert.True(t, res.Validation.CountOK)
	assert.True(t, res.Validation.DimensionsOK)
	assert.True(t, res.Validation.SearchOK)
	assert.True(t, res.Validation.AllPassed)

	// page size 3 over 7 rows = 3 batches
	require.Len(t, batches, 3)
	assert.Equal(t, 7, batches[2].Processed)

	n, err := repo.CountEmbeddingsWithDimension(context.Background(), 64)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRunEmptyStore(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	svc := NewService(repo, embedding.NewHashAdapter(32), nil, 0, zap.NewNop())

	res, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.True(t, res.Validation.AllPassed)
}

func TestRunCancellationKeepsProgress(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	seed(t, repo, 6)
	svc := NewService(repo, embedding.NewHashAdapter(32), nil, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var res *Result
	var err error
	res, err = svc.Run(ctx, func(p Progress) {
		if p.Processed >= 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, res.Processed, 2)
	assert.Less(t, res.Processed, 6)

	// committed batches survive
	n, countErr := repo.CountEmbeddingsWithDimension(context.Background(), 32)
	require.NoError(t, countErr)
	assert.Equal(t, res.Processed, n)
}

func TestRunSurfacesResetFailure(t *testing.T) {
	repo := mocks.NewMockRepository(embedding.NewHashAdapter(32))
	seed(t, repo, 2)
	repo.SetError("ResetEmbeddingStorage", appErrors.NewInternal("ddl failed", nil))

	svc := NewService(repo, embedding.NewHashAdapter(32), nil, 0, zap.NewNop())
	_, err := svc.Run(context.Background(), nil)
	assert.Error(t, err)
}
