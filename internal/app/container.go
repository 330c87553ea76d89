// Package app assembles the application dependency graph shared by the API
// server and the MCP server.
package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/config"
	"forgetful-backend/internal/embedding"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/repository"
	"forgetful-backend/internal/repository/postgres"
	"forgetful-backend/internal/repository/sqlitevec"
	"forgetful-backend/internal/rerank"
	"forgetful-backend/internal/retrieval"
	"forgetful-backend/internal/service/backup"
	entitysvc "forgetful-backend/internal/service/entity"
	graphsvc "forgetful-backend/internal/service/graph"
	memorysvc "forgetful-backend/internal/service/memory"
	reembedsvc "forgetful-backend/internal/service/reembed"
	"forgetful-backend/internal/tokenizer"
	"forgetful-backend/internal/tools"
	"forgetful-backend/pkg/observability"
)

// Container holds every constructed dependency.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Embedder   embedding.Adapter
	Repository repository.Repository
	Backup     backup.Service
	Bus        *events.Bus
	Pipeline   *retrieval.Pipeline
	Counter    tokenizer.Counter
	Memories   *memorysvc.Service
	Graph      *graphsvc.Service
	Entities   *entitysvc.Service
	Reembed    *reembedsvc.Service
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	Resolver   auth.UserResolver
	Metrics    *observability.Metrics
}

// NewContainer wires the full graph from configuration. The embedding
// dimension is checked against the adapter before any store is touched; a
// mismatch is a startup failure.
func NewContainer(cfg *config.Config) (*Container, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	// The stored vector dimension is fixed at table creation; a provider
	// emitting a different length would corrupt search. Refuse to start.
	if embedder.Dimensions() != cfg.Embedding.Dimensions {
		return nil, fmt.Errorf("embedding provider emits %d dimensions, configuration expects %d",
			embedder.Dimensions(), cfg.Embedding.Dimensions)
	}

	repo, backups, err := openStore(cfg.Storage, embedder, logger)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(cfg.Activity.BufferSize, logger,
		events.WithTrackReads(cfg.Activity.TrackReads))

	pipelineOpts := []retrieval.Option{retrieval.WithFanout(cfg.Retrieval.Fanout)}
	if cfg.Retrieval.LexicalEnabled {
		if lex, ok := repo.(retrieval.LexicalSearcher); ok {
			pipelineOpts = append(pipelineOpts, retrieval.WithLexical(lex))
		}
	}
	if cfg.Rerank.Enabled {
		pipelineOpts = append(pipelineOpts, retrieval.WithReranker(rerank.NewHTTPAdapter(rerank.HTTPConfig{
			URL:   cfg.Rerank.BaseURL,
			Model: cfg.Rerank.Model,
		}, logger)))
	}
	pipeline := retrieval.NewPipeline(repo, logger, pipelineOpts...)

	counter := buildCounter(logger)

	memSvc := memorysvc.NewService(repo, pipeline, counter, bus, memorysvc.Config{
		AutoLinkCount:      cfg.Query.AutoLinkCount,
		DefaultTokenBudget: cfg.Query.TokenBudget,
		DefaultMaxMemories: cfg.Query.DefaultMaxMemories,
	}, logger)
	graphSvc := graphsvc.NewService(repo, logger)
	entitySvc := entitysvc.NewService(repo, bus, logger)
	reembedSvc := reembedsvc.NewService(repo, embedder, bus, reembedsvc.DefaultPageSize, logger)

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, tools.Services{
		Memory: memSvc,
		Graph:  graphSvc,
		Entity: entitySvc,
		Users:  repo,
	})

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Embedder:   embedder,
		Repository: repo,
		Backup:     backups,
		Bus:        bus,
		Pipeline:   pipeline,
		Counter:    counter,
		Memories:   memSvc,
		Graph:      graphSvc,
		Entities:   entitySvc,
		Reembed:    reembedSvc,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, cfg.Tools.InstanceScope, logger),
		Resolver:   auth.NewBearerResolver(repo, logger),
		Metrics:    observability.NewMetrics(bus.Dropped),
	}, nil
}

// Close releases the container's resources.
func (c *Container) Close() error {
	err := c.Repository.Close()
	_ = c.Logger.Sync()
	return err
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// buildEmbedder selects the embedding provider. Everything non-hash speaks
// the OpenAI embedding protocol, which covers Ollama and vLLM too.
func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Adapter, error) {
	switch cfg.Provider {
	case "hash":
		return embedding.NewHashAdapter(cfg.Dimensions), nil
	case "openai", "ollama":
		inner, err := embedding.NewOpenAIAdapter(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return embedding.NewBreakerAdapter(inner, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// buildCounter prefers real BPE token counts, falling back to the heuristic
// when the encoding tables cannot be loaded (e.g. offline).
func buildCounter(logger *zap.Logger) tokenizer.Counter {
	counter, err := tokenizer.NewTiktokenCounter("cl100k_base")
	if err != nil {
		logger.Warn("BPE tokenizer unavailable, using heuristic counter", zap.Error(err))
		return tokenizer.NewHeuristicCounter()
	}
	return counter
}

// openStore opens the configured backend and pairs it with the matching
// backup strategy.
func openStore(cfg config.StorageConfig, embedder embedding.Adapter, logger *zap.Logger) (repository.Repository, backup.Service, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlitevec.Open(cfg.SQLitePath, embedder, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, backup.NewFileBackup(store.Path(), logger), nil
	case config.BackendPostgres:
		store, err := postgres.Open(cfg.PostgresDSN, embedder, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, backup.NewPgDumpBackup(cfg.PostgresDSN, logger), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
