package ratings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plugmart/plugmart/pkg/errs"
)

// Store persists ratings and the denormalized aggregate
type Store struct {
	db *sql.DB
}

// NewStore creates a new ratings store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert writes the user's score and refreshes the plugin's aggregate
// in one transaction, so mean and count never drift from the rows they
// summarize. Returns the resulting aggregate.
func (s *Store) Upsert(ctx context.Context, pluginID, userID string, score int, comment string) (*Aggregate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, plugin_id, user_id, score, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (plugin_id, user_id)
		 DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment,
		               updated_at = EXCLUDED.updated_at`,
		uuid.NewString(), pluginID, userID, score, comment, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rating: %w", err)
	}

	agg := &Aggregate{PluginID: pluginID}
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(CAST(score AS REAL)), 0), COUNT(*)
		 FROM ratings WHERE plugin_id = $1`, pluginID).
		Scan(&agg.Mean, &agg.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to compute aggregate: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE plugins SET rating_mean = $1, rating_count = $2 WHERE id = $3`,
		agg.Mean, agg.Count, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to update aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rating: %w", err)
	}
	return agg, nil
}

// GetUserRating fetches the caller's own rating of a plugin
func (s *Store) GetUserRating(ctx context.Context, pluginID, userID string) (*Rating, error) {
	var r Rating
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plugin_id, user_id, score, comment, created_at, updated_at
		 FROM ratings WHERE plugin_id = $1 AND user_id = $2`, pluginID, userID).
		Scan(&r.ID, &r.PluginID, &r.UserID, &r.Score, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("rating")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan rating: %w", err)
	}
	return &r, nil
}

// GetAggregate reads the stored aggregate for a plugin
func (s *Store) GetAggregate(ctx context.Context, pluginID string) (*Aggregate, error) {
	agg := &Aggregate{PluginID: pluginID}
	err := s.db.QueryRowContext(ctx,
		`SELECT rating_mean, rating_count FROM plugins WHERE id = $1 AND deleted_at IS NULL`,
		pluginID).
		Scan(&agg.Mean, &agg.Count)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("plugin %s", pluginID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan aggregate: %w", err)
	}
	return agg, nil
}
