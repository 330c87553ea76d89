// Package postgres implements the repository contract on PostgreSQL with the
// pgvector extension. Vector search runs in the database against an HNSW
// index, and graph traversal uses a recursive CTE over a unified edge view,
// so both stay one round trip regardless of fan-out.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"forgetful-backend/internal/embedding"
	appErrors "forgetful-backend/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL backend.
type Store struct {
	db       *sqlx.DB
	embedder embedding.Adapter
	logger   *zap.Logger
}

// Open connects, verifies reachability, and applies pending migrations.
func Open(dsn string, embedder embedding.Adapter, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, appErrors.NewInternal("connect to postgres", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, appErrors.NewInternal("set migration dialect", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, appErrors.NewInternal("apply migrations", err)
	}
	return &Store{db: db, embedder: embedder, logger: logger.Named("postgres")}, nil
}

// DB exposes the underlying pool for the pg_dump backup service's
// connectivity checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// q rebinds ?-style placeholders to $N for the pq driver, keeping query text
// shared in spirit with the embedded backend.
func (s *Store) q(query string) string { return s.db.Rebind(query) }

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.NewInternal("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return appErrors.NewInternal("commit transaction", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	// 23505 = unique_violation
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func marshalList(ss []string) []byte {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return b
}

func unmarshalList(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func now() time.Time { return time.Now().UTC() }
