package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmart/plugmart/pkg/config"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:   "sqlite3",
		URL:      "file:" + t.Name() + "?mode=memory&cache=shared",
		MaxConns: 2,
		MinConns: 1,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	// Running migrations twice must not fail
	require.NoError(t, Migrate(context.Background(), db))
}

func TestSchema_PurchaseUniqueness(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"u1", "dev@plugmart.io", "dev", "x", now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, author_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"p1", "formatter", "u1", now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, plugin_id, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		"pur1", "u1", "p1", 499, now)
	require.NoError(t, err)

	// Second purchase of the same plugin by the same user violates the
	// uniqueness constraint
	_, err = db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, plugin_id, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		"pur2", "u1", "p1", 499, now)
	assert.Error(t, err)
}

func TestSchema_RatingUniqueness(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"u1", "dev@plugmart.io", "dev", "x", now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, author_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"p1", "formatter", "u1", now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO ratings (id, plugin_id, user_id, score, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"r1", "p1", "u1", 4, now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO ratings (id, plugin_id, user_id, score, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"r2", "p1", "u1", 5, now, now)
	assert.Error(t, err)
}
