// Package sqlitevec implements the repository contract on an embedded SQLite
// database. Vectors are stored as little-endian float32 blobs in the memories
// table and ranked with brute-force cosine distance in application code, which
// keeps the backend dependency-light and byte-for-byte portable: the whole
// store is one file plus its WAL sidecars.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"forgetful-backend/internal/embedding"
	appErrors "forgetful-backend/pkg/errors"
)

func init() {
	// Registers the sqlite-vec extension with every connection the mattn
	// driver opens, so migrations and ad-hoc tooling can use vec_* SQL
	// functions against the same file.
	sqlite_vec.Auto()
}

// Store is the embedded backend. Safe for concurrent use; SQLite serializes
// writers internally and the busy timeout absorbs short contention.
type Store struct {
	db       *sqlx.DB
	path     string
	embedder embedding.Adapter
	logger   *zap.Logger
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(path string, embedder embedding.Adapter, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, appErrors.NewInternal("open sqlite database", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, embedder: embedder, logger: logger.Named("sqlitevec")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location, used by the backup service.
func (s *Store) Path() string { return s.path }

// Ping verifies the file is reachable and writable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	idp_metadata BLOB,
	notes        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL REFERENCES users(id),
	title           TEXT NOT NULL,
	content         TEXT NOT NULL,
	context         TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '[]',
	tags            TEXT NOT NULL DEFAULT '[]',
	importance      INTEGER NOT NULL,
	embedding       BLOB,
	is_obsolete     INTEGER NOT NULL DEFAULT 0,
	obsolete_reason TEXT NOT NULL DEFAULT '',
	superseded_by   INTEGER REFERENCES memories(id),
	obsoleted_at    TIMESTAMP,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, is_obsolete);

CREATE TABLE IF NOT EXISTS memory_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES users(id),
	source_id  INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id  INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(source_id, target_id),
	CHECK(source_id < target_id)
);
CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);

CREATE TABLE IF NOT EXISTS projects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL REFERENCES users(id),
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES users(id),
	title      TEXT NOT NULL,
	uri        TEXT NOT NULL DEFAULT '',
	project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS code_artifacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES users(id),
	name       TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	language   TEXT NOT NULL DEFAULT '',
	project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL REFERENCES users(id),
	name        TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	custom_type TEXT NOT NULL DEFAULT '',
	aka         TEXT NOT NULL DEFAULT '[]',
	notes       TEXT NOT NULL DEFAULT '',
	project_id  INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_relationships (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL REFERENCES users(id),
	source_entity_id  INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_entity_id  INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	strength          REAL,
	confidence        REAL,
	metadata          BLOB,
	created_at        TIMESTAMP NOT NULL,
	UNIQUE(source_entity_id, target_entity_id, relationship_type)
);

CREATE TABLE IF NOT EXISTS memory_projects (
	memory_id  INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	PRIMARY KEY(memory_id, project_id)
);
CREATE TABLE IF NOT EXISTS memory_documents (
	memory_id   INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	PRIMARY KEY(memory_id, document_id)
);
CREATE TABLE IF NOT EXISTS memory_code_artifacts (
	memory_id        INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	code_artifact_id INTEGER NOT NULL REFERENCES code_artifacts(id) ON DELETE CASCADE,
	PRIMARY KEY(memory_id, code_artifact_id)
);
CREATE TABLE IF NOT EXISTS memory_entities (
	memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	PRIMARY KEY(memory_id, entity_id)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return appErrors.NewInternal("apply sqlite schema", err)
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
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

// --- vector and JSON column helpers ---

func serializeVector(vec []float32) ([]byte, error) {
	if vec == nil {
		return nil, nil
	}
	return sqlite_vec.SerializeFloat32(vec)
}

func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// cosineDistance assumes neither vector is all-zero; a zero vector ranks last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func marshalList(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !asSQLiteError(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func asSQLiteError(err error, target *sqlite3.Error) bool {
	for err != nil {
		if serr, ok := err.(sqlite3.Error); ok {
			*target = serr
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows || strings.Contains(err.Error(), sql.ErrNoRows.Error())
}

func now() time.Time { return time.Now().UTC() }
