package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLiteIsRepeatable(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, SQLite))
	require.NoError(t, Migrate(ctx, db, SQLite))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'events', 'reservations')`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestMigrateUnknownDialect(t *testing.T) {
	assert.Error(t, Migrate(context.Background(), nil, Dialect("oracle")))
}

func TestLockSuffix(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", MySQL.LockSuffix())
	assert.Empty(t, SQLite.LockSuffix())
}
