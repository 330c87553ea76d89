// Package backup snapshots and restores the store, per backend. Its main
// customer is the re-embed pipeline: a failed run has no rollback, so the
// operator snapshots first and restores on failure.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	appErrors "forgetful-backend/pkg/errors"
)

// Service is implemented once per backend.
type Service interface {
	// Snapshot writes a restorable backup into dir and returns its path.
	Snapshot(ctx context.Context, dir string) (string, error)
	// Restore replaces the live store with the named snapshot.
	Restore(ctx context.Context, path string) error
}

// sidecarSuffixes are SQLite's write-ahead companions. They are copied when
// present so a snapshot taken mid-checkpoint stays consistent.
var sidecarSuffixes = []string{"-wal", "-shm"}

// FileBackup snapshots an embedded SQLite database by copying its files.
type FileBackup struct {
	dbPath string
	logger *zap.Logger
}

// NewFileBackup builds a backup service for the database at dbPath.
func NewFileBackup(dbPath string, logger *zap.Logger) *FileBackup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBackup{dbPath: dbPath, logger: logger.Named("backup")}
}

// Snapshot copies the database file plus any WAL/SHM sidecars into a
// timestamped directory under dir.
func (b *FileBackup) Snapshot(ctx context.Context, dir string) (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	dest := filepath.Join(dir, "snapshot-"+stamp)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", appErrors.Wrap(err, "creating snapshot directory")
	}

	if err := copyFile(ctx, b.dbPath, filepath.Join(dest, filepath.Base(b.dbPath))); err != nil {
		return "", appErrors.Wrap(err, "copying database file")
	}
	for _, suffix := range sidecarSuffixes {
		src := b.dbPath + suffix
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(ctx, src, filepath.Join(dest, filepath.Base(src))); err != nil {
			return "", appErrors.Wrap(err, "copying sidecar "+suffix)
		}
	}

	b.logger.Info("snapshot written", zap.String("path", dest))
	return dest, nil
}

// Restore copies the snapshot files back over the live database. The caller
// must have closed the repository first.
func (b *FileBackup) Restore(ctx context.Context, path string) error {
	base := filepath.Base(b.dbPath)
	src := filepath.Join(path, base)
	if _, err := os.Stat(src); err != nil {
		return appErrors.NewNotFoundf("snapshot %s does not contain %s", path, base)
	}

	// stale sidecars of the live DB would corrupt the restored file
	for _, suffix := range sidecarSuffixes {
		if err := os.Remove(b.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return appErrors.Wrap(err, "removing live sidecar "+suffix)
		}
	}

	if err := copyFile(ctx, src, b.dbPath); err != nil {
		return appErrors.Wrap(err, "restoring database file")
	}
	for _, suffix := range sidecarSuffixes {
		snap := filepath.Join(path, base+suffix)
		if _, err := os.Stat(snap); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(ctx, snap, b.dbPath+suffix); err != nil {
			return appErrors.Wrap(err, "restoring sidecar "+suffix)
		}
	}

	b.logger.Info("snapshot restored", zap.String("path", path))
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PgDumpBackup snapshots a PostgreSQL database by shelling out to pg_dump
// and restores with pg_restore.
type PgDumpBackup struct {
	dsn    string
	logger *zap.Logger
}

// NewPgDumpBackup builds a backup service for the database named by dsn.
func NewPgDumpBackup(dsn string, logger *zap.Logger) *PgDumpBackup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgDumpBackup{dsn: dsn, logger: logger.Named("backup")}
}

// Snapshot runs pg_dump in custom format.
func (b *PgDumpBackup) Snapshot(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErrors.Wrap(err, "creating snapshot directory")
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	dest := filepath.Join(dir, fmt.Sprintf("snapshot-%s.dump", stamp))

	cmd := exec.CommandContext(ctx, "pg_dump", "--format=custom", "--file", dest, "--dbname", b.dsn)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", appErrors.NewInternal(fmt.Sprintf("pg_dump failed: %s", out), err)
	}

	b.logger.Info("snapshot written", zap.String("path", dest))
	return dest, nil
}

// Restore runs pg_restore with --clean so the snapshot replaces live data.
func (b *PgDumpBackup) Restore(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return appErrors.NewNotFoundf("snapshot %s not found", path)
	}
	cmd := exec.CommandContext(ctx, "pg_restore", "--clean", "--if-exists", "--dbname", b.dsn, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return appErrors.NewInternal(fmt.Sprintf("pg_restore failed: %s", out), err)
	}
	b.logger.Info("snapshot restored", zap.String("path", path))
	return nil
}
