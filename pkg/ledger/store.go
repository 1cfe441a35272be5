package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plugmart/plugmart/pkg/errs"
)

// Store persists purchase records
type Store struct {
	db *sql.DB
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// TryInsert attempts to append a purchase. A concurrent or earlier
// purchase of the same plugin by the same user is absorbed by the
// uniqueness constraint; the caller re-reads to get the winning record.
func (s *Store) TryInsert(ctx context.Context, userID, pluginID string, amountCents int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, plugin_id, amount_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, plugin_id) DO NOTHING`,
		uuid.NewString(), userID, pluginID, amountCents, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// Get fetches the purchase record for a user and plugin
func (s *Store) Get(ctx context.Context, userID, pluginID string) (*Purchase, error) {
	var p Purchase
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, plugin_id, amount_cents, created_at
		 FROM purchases WHERE user_id = $1 AND plugin_id = $2`, userID, pluginID).
		Scan(&p.ID, &p.UserID, &p.PluginID, &p.AmountCents, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("purchase")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}
	return &p, nil
}

// Exists reports whether the user has purchased the plugin
func (s *Store) Exists(ctx context.Context, userID, pluginID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM purchases WHERE user_id = $1 AND plugin_id = $2`, userID, pluginID).
		Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return true, nil
}

// ListByUser returns the user's purchase history, newest first, with
// plugin metadata joined in. Soft-deleted plugins still appear; the
// ledger never forgets.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*PurchaseDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pu.id, pu.user_id, pu.plugin_id, pu.amount_cents, pu.created_at,
			pl.name, pl.latest_version
		 FROM purchases pu
		 JOIN plugins pl ON pl.id = pu.plugin_id
		 WHERE pu.user_id = $1
		 ORDER BY pu.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*PurchaseDetail
	for rows.Next() {
		var d PurchaseDetail
		err := rows.Scan(&d.ID, &d.UserID, &d.PluginID, &d.AmountCents, &d.CreatedAt,
			&d.PluginName, &d.LatestVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, &d)
	}
	return purchases, rows.Err()
}
