package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader assembles configuration from layered sources. Loading order, lowest
// to highest priority:
//  1. Default values (in code)
//  2. Base configuration file (base.yaml)
//  3. Environment-specific file (e.g. production.yaml)
//  4. Local overrides file (local.yaml, development only)
//  5. Environment variables
type Loader struct {
	basePath    string
	environment Environment
	sources     []string
}

// NewLoader creates a loader rooted at basePath (default "config").
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{basePath: basePath, environment: env}
}

// Load assembles and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	cfg.Environment = l.environment
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to load local config: %v\n", err)
		}
	}

	l.applyEnvironment(cfg)
	l.sources = append(l.sources, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sources reports where configuration was loaded from, in order.
func (l *Loader) Sources() []string { return l.sources }

func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

// applyEnvironment overlays environment variables, the highest-priority
// source.
func (l *Loader) applyEnvironment(cfg *Config) {
	setString(&cfg.HTTP.Host, "HTTP_HOST")
	setInt(&cfg.HTTP.Port, "HTTP_PORT")
	setDuration(&cfg.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDuration(&cfg.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	setDuration(&cfg.HTTP.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT")
	if val := os.Getenv("HTTP_ALLOWED_ORIGINS"); val != "" {
		cfg.HTTP.AllowedOrigins = splitCSV(val)
	}

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "POSTGRES_DSN")

	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimensions, "EMBEDDING_DIMENSIONS")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")

	setBool(&cfg.Rerank.Enabled, "RERANK_ENABLED")
	setString(&cfg.Rerank.BaseURL, "RERANK_BASE_URL")
	setString(&cfg.Rerank.Model, "RERANK_MODEL")

	setInt(&cfg.Retrieval.Fanout, "K_FANOUT")
	setBool(&cfg.Retrieval.LexicalEnabled, "LEXICAL_SEARCH_ENABLED")

	setInt(&cfg.Query.AutoLinkCount, "N_AUTO_LINK")
	setInt(&cfg.Query.TokenBudget, "QUERY_TOKEN_BUDGET")
	setInt(&cfg.Query.DefaultMaxMemories, "QUERY_MAX_MEMORIES")

	setString(&cfg.Tools.InstanceScope, "FORGETFUL_SCOPES")

	setInt(&cfg.Activity.BufferSize, "ACTIVITY_BUFFER_SIZE")
	setBool(&cfg.Activity.TrackReads, "ACTIVITY_TRACK_READS")

	setString(&cfg.Backup.Dir, "BACKUP_DIR")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvironment resolves the deployment environment from APP_ENV.
func getEnvironment() Environment {
	switch strings.ToLower(os.Getenv("APP_ENV")) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// Load loads the configuration from the default locations. This is the entry
// point main() uses.
func Load() (*Config, error) {
	basePath := os.Getenv("CONFIG_DIR")
	return NewLoader(basePath, getEnvironment()).Load()
}
