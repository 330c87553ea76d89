// Package reembed regenerates every stored embedding after an embedding
// provider or model change. The run is destructive by design: the vector
// storage is reset up front, pages of memories are re-embedded and bulk
// written, and a validation pass checks the result. There is no automatic
// rollback; operators snapshot first and restore on failure.
package reembed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// DefaultPageSize is how many memories each batch re-embeds.
const DefaultPageSize = 50

// Progress reports one completed batch.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Batch     int `json:"batch"`
}

// ProgressFunc is invoked after every committed batch.
type ProgressFunc func(Progress)

// ValidationResult is the post-run health check.
type ValidationResult struct {
	CountOK      bool `json:"count_ok"`
	DimensionsOK bool `json:"dimensions_ok"`
	SearchOK     bool `json:"search_ok"`
	AllPassed    bool `json:"all_passed"`
}

// Result summarizes one re-embed run.
type Result struct {
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Validation ValidationResult `json:"validation"`
}

// Service orchestrates the re-embed pipeline.
type Service struct {
	repo     repository.Repository
	embedder embedding.Adapter
	bus      events.Recorder
	pageSize int
	logger   *zap.Logger
}

// NewService wires the orchestrator.
func NewService(repo repository.Repository, embedder embedding.Adapter, bus events.Recorder, pageSize int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NopRecorder{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		bus:      bus,
		pageSize: pageSize,
		logger:   logger.Named("reembed"),
	}
}

// Run executes count → reset → page → bulk write → validate. Cancellation
// between batches keeps committed progress and returns ctx.Err(); the
// operator re-runs or restores from a snapshot.
func (s *Service) Run(ctx context.Context, onProgress ProgressFunc) (*Result, error) {
	total, err := s.repo.CountAllMemories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, "counting memories")
	}

	dims := s.embedder.Dimensions()
	s.logger.Info("starting re-embed run",
		zap.Int("total", total), zap.Int("dimensions", dims), zap.Int("page_size", s.pageSize))
	s.bus.Record(events.Event{Action: events.ActionReembedStart,
		Detail: map[string]interface{}{"total": total, "dimensions": dims}})

	if err := s.repo.ResetEmbeddingStorage(ctx, dims); err != nil {
		return nil, appErrors.Wrap(err, "resetting embedding storage")
	}

	result := &Result{Total: total}
	for batch := 0; ; batch++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("re-embed cancelled, committed progress kept",
				zap.Int("processed", result.Processed))
			return result, err
		}

		page, err := s.repo.GetMemoriesForReembedding(ctx, s.pageSize, result.Processed)
		if err != nil {
			return result, appErrors.Wrap(err, fmt.Sprintf("fetching batch %d", batch))
		}
		if len(page) == 0 {
			break
		}

		updates, err := s.embedBatch(ctx, page)
		if err != nil {
			return result, err
		}
		if err := s.repo.BulkUpdateEmbeddings(ctx, updates); err != nil {
			return result, appErrors.Wrap(err, fmt.Sprintf("writing batch %d", batch))
		}

		result.Processed += len(page)
		if onProgress != nil {
			onProgress(Progress{Processed: result.Processed, Total: total, Batch: batch})
		}
	}

	result.Validation = s.validate(ctx, total, dims)
	s.bus.Record(events.Event{Action: events.ActionReembedDone,
		Detail: map[string]interface{}{"processed": result.Processed, "all_passed": result.Validation.AllPassed}})
	if !result.Validation.AllPassed {
		s.logger.Error("re-embed validation failed",
			zap.Bool("count_ok", result.Validation.CountOK),
			zap.Bool("dimensions_ok", result.Validation.DimensionsOK),
			zap.Bool("search_ok", result.Validation.SearchOK))
	}
	return result, nil
}

// embedBatch prefers the adapter's native batching and falls back to one call
// per memory.
func (s *Service) embedBatch(ctx context.Context, page []*domain.Memory) ([]repository.EmbeddingUpdate, error) {
	texts := make([]string, len(page))
	for i, m := range page {
		texts[i] = m.EmbeddingText()
	}

	var vectors [][]float32
	if batcher, ok := s.embedder.(embedding.BatchAdapter); ok {
		vs, err := batcher.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return nil, appErrors.Wrap(err, "batch embedding")
		}
		vectors = vs
	} else {
		vectors = make([][]float32, len(texts))
		for i, text := range texts {
			v, err := s.embedder.GenerateEmbedding(ctx, text)
			if err != nil {
				return nil, appErrors.Wrap(err, fmt.Sprintf("embedding memory %d", page[i].ID))
			}
			vectors[i] = v
		}
	}

	updates := make([]repository.EmbeddingUpdate, len(page))
	for i, m := range page {
		if err := embedding.CheckDimension(vectors[i], s.embedder.Dimensions()); err != nil {
			return nil, appErrors.Wrap(err, fmt.Sprintf("memory %d", m.ID))
		}
		updates[i] = repository.EmbeddingUpdate{MemoryID: m.ID, Embedding: vectors[i]}
	}
	return updates, nil
}

// validate runs the three post-run predicates. Predicate errors count as
// failures, not run errors.
func (s *Service) validate(ctx context.Context, total, dims int) ValidationResult {
	var v ValidationResult

	withDims, err := s.repo.CountEmbeddingsWithDimension(ctx, dims)
	if err != nil {
		s.logger.Warn("dimension count check failed", zap.Error(err))
	} else {
		v.DimensionsOK = withDims == total
	}
	if count, err := s.repo.CountAllMemories(ctx); err == nil {
		v.CountOK = count == total
	}

	// A representative search must come back non-empty once anything exists.
	if total == 0 {
		v.SearchOK = true
	} else {
		sample, err := s.repo.GetMemoriesForReembedding(ctx, 1, 0)
		if err == nil && len(sample) == 1 {
			rows, err := s.repo.SemanticSearch(ctx, sample[0].UserID, repository.SemanticSearchParams{
				Query: sample[0].EmbeddingText(), K: 1,
			})
			v.SearchOK = err == nil && len(rows) > 0
		}
	}

	v.AllPassed = v.CountOK && v.DimensionsOK && v.SearchOK
	return v
}
