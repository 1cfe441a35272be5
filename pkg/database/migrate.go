package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// schema holds the marketplace schema. Statements are written in the
// dialect subset shared by PostgreSQL and SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS api_tokens (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	token_hash   TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP,
	expires_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS plugins (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	author_id      TEXT NOT NULL REFERENCES users(id),
	price_cents    BIGINT NOT NULL DEFAULT 0,
	category       TEXT NOT NULL DEFAULT '',
	latest_version TEXT NOT NULL DEFAULT '',
	featured       BOOLEAN NOT NULL DEFAULT FALSE,
	download_count BIGINT NOT NULL DEFAULT 0,
	rating_mean    DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating_count   BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	deleted_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS plugin_versions (
	id          TEXT PRIMARY KEY,
	plugin_id   TEXT NOT NULL REFERENCES plugins(id),
	version     TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (plugin_id, version)
);

CREATE TABLE IF NOT EXISTS purchases (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	plugin_id    TEXT NOT NULL REFERENCES plugins(id),
	amount_cents BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	UNIQUE (user_id, plugin_id)
);

CREATE TABLE IF NOT EXISTS ratings (
	id         TEXT PRIMARY KEY,
	plugin_id  TEXT NOT NULL REFERENCES plugins(id),
	user_id    TEXT NOT NULL REFERENCES users(id),
	score      INTEGER NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (plugin_id, user_id)
);

CREATE TABLE IF NOT EXISTS plugin_stats_daily (
	plugin_id TEXT NOT NULL REFERENCES plugins(id),
	day       DATE NOT NULL,
	downloads BIGINT NOT NULL DEFAULT 0,
	purchases BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (plugin_id, day)
);

CREATE INDEX IF NOT EXISTS idx_plugins_category ON plugins(category);
CREATE INDEX IF NOT EXISTS idx_plugins_author ON plugins(author_id);
CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id);
CREATE INDEX IF NOT EXISTS idx_ratings_plugin ON ratings(plugin_id);
CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);
`

// Migrate applies the schema. All statements are idempotent, so running
// it on every startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(schema) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// splitStatements splits a script on semicolons at statement boundaries
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			stmts = append(stmts, trimmed)
		}
	}
	return stmts
}
