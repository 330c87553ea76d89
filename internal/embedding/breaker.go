package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "forgetful-backend/pkg/errors"
)

// BreakerAdapter wraps a provider with a circuit breaker so a flapping
// embedding endpoint fails fast instead of stalling every create and query.
type BreakerAdapter struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerAdapter decorates inner with a circuit breaker.
func NewBreakerAdapter(inner Adapter, logger *zap.Logger) *BreakerAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerAdapter{inner: inner, breaker: cb, logger: logger.Named("EmbeddingBreaker")}
}

// Dimensions returns the wrapped adapter's dimension.
func (a *BreakerAdapter) Dimensions() int { return a.inner.Dimensions() }

// GenerateEmbedding embeds through the breaker.
func (a *BreakerAdapter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.inner.GenerateEmbedding(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, appErrors.NewInternal("embedding provider unavailable", err)
		}
		return nil, err
	}
	return out.([]float32), nil
}

// GenerateEmbeddings embeds a batch through the breaker, falling back to
// per-item calls when the wrapped adapter has no batch endpoint.
func (a *BreakerAdapter) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	batch, ok := a.inner.(BatchAdapter)
	if !ok {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := a.GenerateEmbedding(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return batch.GenerateEmbeddings(ctx, texts)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, appErrors.NewInternal("embedding provider unavailable", err)
		}
		return nil, err
	}
	return out.([][]float32), nil
}
