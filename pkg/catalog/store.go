package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/errs"
)

const pluginColumns = `id, name, description, author_id, price_cents, category,
	latest_version, featured, download_count, rating_mean, rating_count,
	created_at, updated_at`

// Store persists plugins and their versions
type Store struct {
	db *sql.DB
}

// NewStore creates a new catalog store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert creates a new plugin row
func (s *Store) Insert(ctx context.Context, p *Plugin) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, description, author_id, price_cents, category,
			latest_version, featured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Description, p.AuthorID, p.PriceCents, p.Category,
		p.LatestVersion, p.Featured, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert plugin: %w", err)
	}
	return nil
}

// GetByID fetches a plugin. Soft-deleted plugins are not visible.
func (s *Store) GetByID(ctx context.Context, id string) (*Plugin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pluginColumns+` FROM plugins WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanPlugin(row)
}

// List returns plugins matching the given options
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Plugin, error) {
	var (
		where = []string{"deleted_at IS NULL"}
		args  []interface{}
	)

	if opts.Category != "" {
		args = append(args, opts.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+strings.ToLower(opts.Search)+"%")
		where = append(where, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}
	if opts.FeaturedOnly {
		where = append(where, "featured = TRUE")
	}

	args = append(args, opts.Limit)
	limitPos := len(args)
	args = append(args, opts.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`SELECT %s FROM plugins WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		pluginColumns, strings.Join(where, " AND "), orderClause(opts.Sort), limitPos, offsetPos)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	return scanPlugins(rows)
}

// orderClause maps a sort key to a safe ORDER BY expression. Unknown
// keys fall back to newest-first.
func orderClause(sort string) string {
	switch sort {
	case "name":
		return "name ASC"
	case "downloads":
		return "download_count DESC"
	case "rating":
		return "rating_mean DESC, rating_count DESC"
	default:
		return "created_at DESC"
	}
}

// ListByAuthor returns all live plugins owned by a user
func (s *Store) ListByAuthor(ctx context.Context, authorID string) ([]*Plugin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pluginColumns+` FROM plugins
		 WHERE author_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins by author: %w", err)
	}
	defer rows.Close()

	return scanPlugins(rows)
}

// Update applies the non-nil fields of req to a plugin
func (s *Store) Update(ctx context.Context, id string, req UpdatePluginRequest) (*Plugin, error) {
	var (
		sets = []string{}
		args []interface{}
	)

	if req.Description != nil {
		args = append(args, *req.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if req.PriceCents != nil {
		args = append(args, *req.PriceCents)
		sets = append(sets, fmt.Sprintf("price_cents = $%d", len(args)))
	}
	if req.Category != nil {
		args = append(args, *req.Category)
		sets = append(sets, fmt.Sprintf("category = $%d", len(args)))
	}
	if req.Featured != nil {
		args = append(args, *req.Featured)
		sets = append(sets, fmt.Sprintf("featured = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE plugins SET %s WHERE id = $%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update plugin: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errs.NotFoundf("plugin %s", id)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete hides a plugin from the catalog. The row stays so purchase
// and rating records keep their referential integrity.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFoundf("plugin %s", id)
	}
	return nil
}

// InsertVersion records a released artifact and promotes it to the
// plugin's latest version
func (s *Store) InsertVersion(ctx context.Context, v *Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plugin_versions (id, plugin_id, version, storage_key, checksum, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.PluginID, v.Version, v.StorageKey, v.Checksum, v.SizeBytes, v.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("version %s already exists: %w", v.Version, errs.ErrConflict)
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE plugins SET latest_version = $1, updated_at = $2 WHERE id = $3`,
		v.Version, time.Now().UTC(), v.PluginID)
	if err != nil {
		return fmt.Errorf("failed to update latest version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}
	return nil
}

// GetVersion fetches a specific released version of a plugin
func (s *Store) GetVersion(ctx context.Context, pluginID, version string) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, plugin_id, version, storage_key, checksum, size_bytes, created_at
		 FROM plugin_versions WHERE plugin_id = $1 AND version = $2`, pluginID, version)
	return scanVersion(row)
}

// ListVersions returns all released versions of a plugin, newest first
func (s *Store) ListVersions(ctx context.Context, pluginID string) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plugin_id, version, storage_key, checksum, size_bytes, created_at
		 FROM plugin_versions WHERE plugin_id = $1 ORDER BY created_at DESC`, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.PluginID, &v.Version, &v.StorageKey, &v.Checksum, &v.SizeBytes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// IncrementDownloads bumps the denormalized download counter
func (s *Store) IncrementDownloads(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET download_count = download_count + 1 WHERE id = $1`, pluginID)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	return nil
}

func scanPlugin(row *sql.Row) (*Plugin, error) {
	var p Plugin
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.AuthorID, &p.PriceCents, &p.Category,
		&p.LatestVersion, &p.Featured, &p.DownloadCount, &p.RatingMean, &p.RatingCount,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("plugin")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan plugin: %w", err)
	}
	return &p, nil
}

func scanPlugins(rows *sql.Rows) ([]*Plugin, error) {
	var plugins []*Plugin
	for rows.Next() {
		var p Plugin
		err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.AuthorID, &p.PriceCents, &p.Category,
			&p.LatestVersion, &p.Featured, &p.DownloadCount, &p.RatingMean, &p.RatingCount,
			&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin: %w", err)
		}
		plugins = append(plugins, &p)
	}
	return plugins, rows.Err()
}

func scanVersion(row *sql.Row) (*Version, error) {
	var v Version
	err := row.Scan(&v.ID, &v.PluginID, &v.Version, &v.StorageKey, &v.Checksum, &v.SizeBytes, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("version")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	return &v, nil
}

// NewID returns a fresh plugin or version ID
func NewID() string {
	return uuid.NewString()
}
