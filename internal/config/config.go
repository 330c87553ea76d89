// Package config loads the server configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence. In
// development the watcher hot-reloads the YAML file on change.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment names the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Backend selects the storage implementation.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the full server configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"oneof=development staging production"`

	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Query     QueryConfig     `yaml:"query"`
	Tools     ToolsConfig     `yaml:"tools"`
	Activity  ActivityConfig  `yaml:"activity"`
	Backup    BackupConfig    `yaml:"backup"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig sizes the REST listener.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Addr renders host:port for the listener.
func (c HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// StorageConfig selects and parameterizes the backend.
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

// EmbeddingConfig selects the embedding provider. The hash provider is the
// offline default; real deployments point at an embedding API.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=hash openai ollama"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions" validate:"min=1"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
}

// RerankConfig configures the optional cross-encoder stage.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" validate:"required_if=Enabled true"`
	Model   string `yaml:"model"`
}

// RetrievalConfig tunes the staged search pipeline.
type RetrievalConfig struct {
	Fanout         int  `yaml:"fanout" validate:"min=1"`
	LexicalEnabled bool `yaml:"lexical_enabled"`
}

// QueryConfig tunes composition and auto-linking.
type QueryConfig struct {
	AutoLinkCount      int `yaml:"auto_link_count" validate:"min=0"`
	TokenBudget        int `yaml:"token_budget" validate:"min=1"`
	DefaultMaxMemories int `yaml:"default_max_memories" validate:"min=1"`
}

// ToolsConfig bounds what the tool surface may expose.
type ToolsConfig struct {
	InstanceScope string `yaml:"instance_scope"`
}

// ActivityConfig sizes the in-memory activity feed.
type ActivityConfig struct {
	BufferSize int  `yaml:"buffer_size" validate:"min=1"`
	TrackReads bool `yaml:"track_reads"`
}

// BackupConfig locates snapshot storage.
type BackupConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig shapes the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Default returns the development defaults every other source overlays.
func Default() *Config {
	return &Config{
		Environment: Development,
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: "forgetful.db",
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 384,
		},
		Retrieval: RetrievalConfig{
			Fanout:         20,
			LexicalEnabled: true,
		},
		Query: QueryConfig{
			AutoLinkCount:      3,
			TokenBudget:        4000,
			DefaultMaxMemories: 10,
		},
		Tools: ToolsConfig{
			InstanceScope: "*",
		},
		Activity: ActivityConfig{
			BufferSize: 1000,
		},
		Backup: BackupConfig{
			Dir: "backups",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
