// Package ledger implements the purchase ledger. Purchases are
// append-only and idempotent: buying the same plugin twice yields the
// original record.
package ledger

import "time"

// Purchase is one ledger entry. AmountCents snapshots the price at
// purchase time; later price changes never rewrite history.
type Purchase struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PluginID    string    `json:"plugin_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// PurchaseDetail is a ledger entry joined with its plugin listing for
// purchase-history views
type PurchaseDetail struct {
	Purchase
	PluginName    string `json:"plugin_name"`
	LatestVersion string `json:"latest_version"`
}
