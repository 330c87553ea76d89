package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "forgetful-backend/pkg/errors"
)

func TestFileBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0o644))

	b := NewFileBackup(dbPath, zap.NewNop())
	snap, err := b.Snapshot(context.Background(), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	// mutate, then restore
	require.NoError(t, os.WriteFile(dbPath, []byte("v2"), 0o644))
	require.NoError(t, b.Restore(context.Background(), snap))

	got, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	wal, err := os.ReadFile(dbPath + "-wal")
	require.NoError(t, err)
	assert.Equal(t, "wal", string(wal))
}

func TestFileBackupSkipsMissingSidecars(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	b := NewFileBackup(dbPath, zap.NewNop())
	snap, err := b.Snapshot(context.Background(), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	entries, err := os.ReadDir(snap)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackupRestoreMissingSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")
	b := NewFileBackup(dbPath, zap.NewNop())
	err := b.Restore(context.Background(), filepath.Join(dir, "nope"))
	assert.True(t, appErrors.IsNotFound(err))
}

func TestFileBackupRestoreRemovesStaleSidecars(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	b := NewFileBackup(dbPath, zap.NewNop())
	snap, err := b.Snapshot(context.Background(), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	// live DB grows a WAL after the snapshot was taken
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("stale"), 0o644))
	require.NoError(t, b.Restore(context.Background(), snap))

	_, err = os.Stat(dbPath + "-wal")
	assert.True(t, os.IsNotExist(err))
}
