// Package analytics computes daily marketplace statistics. The
// aggregator runs on a schedule and folds the purchase ledger into the
// per-plugin daily stats table.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plugmart/plugmart/pkg/observability"
)

// Aggregator rolls up daily statistics
type Aggregator struct {
	db      *sql.DB
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewAggregator creates a new analytics aggregator
func NewAggregator(db *sql.DB, log *logrus.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{db: db, log: log, metrics: metrics}
}

// Run aggregates statistics for the previous UTC day and refreshes the
// catalog size gauge
func (a *Aggregator) Run(ctx context.Context) error {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	if err := a.AggregateDay(ctx, day); err != nil {
		return err
	}
	return a.RefreshCatalogGauge(ctx)
}

// AggregateDay folds the ledger entries of one UTC day into
// plugin_stats_daily. Re-running for the same day overwrites the
// purchase counts instead of double counting.
func (a *Aggregator) AggregateDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO plugin_stats_daily (plugin_id, day, downloads, purchases)
		 SELECT plugin_id, $1, 0, COUNT(*)
		 FROM purchases
		 WHERE created_at >= $2 AND created_at < $3
		 GROUP BY plugin_id
		 ON CONFLICT (plugin_id, day) DO UPDATE SET purchases = EXCLUDED.purchases`,
		day, day, next)
	if err != nil {
		return fmt.Errorf("failed to aggregate purchases for %s: %w", day.Format("2006-01-02"), err)
	}

	rows, _ := res.RowsAffected()
	a.log.WithFields(logrus.Fields{
		"day":     day.Format("2006-01-02"),
		"plugins": rows,
	}).Info("daily purchase stats aggregated")
	return nil
}

// RefreshCatalogGauge updates the visible-plugin gauge from the catalog
func (a *Aggregator) RefreshCatalogGauge(ctx context.Context) error {
	var count int64
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plugins WHERE deleted_at IS NULL`).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count plugins: %w", err)
	}
	a.metrics.PluginsTotal.Set(float64(count))

	a.log.WithField("plugins", count).Info("catalog gauge refreshed")
	return nil
}

// TopDownloads reports the most-downloaded plugins over the trailing
// window, for the daily summary log
func (a *Aggregator) TopDownloads(ctx context.Context, since time.Time, limit int) ([]PluginStat, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT s.plugin_id, p.name, SUM(s.downloads), SUM(s.purchases)
		 FROM plugin_stats_daily s
		 JOIN plugins p ON p.id = s.plugin_id
		 WHERE s.day >= $1
		 GROUP BY s.plugin_id, p.name
		 ORDER BY SUM(s.downloads) DESC
		 LIMIT $2`, since.UTC().Truncate(24*time.Hour), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top downloads: %w", err)
	}
	defer rows.Close()

	var stats []PluginStat
	for rows.Next() {
		var s PluginStat
		if err := rows.Scan(&s.PluginID, &s.Name, &s.Downloads, &s.Purchases); err != nil {
			return nil, fmt.Errorf("failed to scan plugin stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LogSummary writes the trailing-week leaderboard to the log
func (a *Aggregator) LogSummary(ctx context.Context) {
	stats, err := a.TopDownloads(ctx, time.Now().UTC().AddDate(0, 0, -7), 5)
	if err != nil {
		a.log.WithError(err).Warn("failed to compute weekly summary")
		return
	}
	for i, s := range stats {
		a.log.WithFields(logrus.Fields{
			"rank":      i + 1,
			"plugin_id": s.PluginID,
			"name":      s.Name,
			"downloads": s.Downloads,
			"purchases": s.Purchases,
		}).Info("weekly leaderboard")
	}
}

// PluginStat is one row of the download leaderboard
type PluginStat struct {
	PluginID  string `json:"plugin_id"`
	Name      string `json:"name"`
	Downloads int64  `json:"downloads"`
	Purchases int64  `json:"purchases"`
}
