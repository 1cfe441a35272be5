package analytics

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmart/plugmart/pkg/config"
	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/observability"
)

func newAggregator(t *testing.T) (*Aggregator, *sql.DB, *observability.Metrics) {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:   "sqlite3",
		URL:      "file:" + t.Name() + "?mode=memory&cache=shared",
		MaxConns: 2,
		MinConns: 1,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	log := logrus.New()
	log.SetOutput(io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewAggregator(db, log, metrics), db, metrics
}

func seed(t *testing.T, db *sql.DB, day time.Time) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES ('u1', 'dev@plugmart.io', 'dev', 'x', $1, $2)`, now, now)
	require.NoError(t, err)

	for _, p := range []string{"p1", "p2"} {
		_, err = db.ExecContext(ctx,
			`INSERT INTO plugins (id, name, author_id, created_at, updated_at)
			 VALUES ($1, $2, 'u1', $3, $4)`, p, "plugin "+p, now, now)
		require.NoError(t, err)
	}

	// Two purchases of p1 (by distinct synthetic users) and one of p2,
	// all inside the target day
	for i, row := range []struct{ id, user, plugin string }{
		{"pur1", "u1", "p1"},
		{"pur2", "u2", "p1"},
		{"pur3", "u1", "p2"},
	} {
		_, err = db.ExecContext(ctx,
			`INSERT INTO purchases (id, user_id, plugin_id, amount_cents, created_at)
			 VALUES ($1, $2, $3, 100, $4)`,
			row.id, row.user, row.plugin, day.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
}

func TestAggregateDay(t *testing.T) {
	agg, db, _ := newAggregator(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, day)

	require.NoError(t, agg.AggregateDay(context.Background(), day))

	var p1, p2 int64
	require.NoError(t, db.QueryRow(`SELECT purchases FROM plugin_stats_daily WHERE plugin_id = 'p1'`).Scan(&p1))
	require.NoError(t, db.QueryRow(`SELECT purchases FROM plugin_stats_daily WHERE plugin_id = 'p2'`).Scan(&p2))
	assert.Equal(t, int64(2), p1)
	assert.Equal(t, int64(1), p2)
}

func TestAggregateDay_Rerun(t *testing.T) {
	agg, db, _ := newAggregator(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, day)
	ctx := context.Background()

	require.NoError(t, agg.AggregateDay(ctx, day))
	require.NoError(t, agg.AggregateDay(ctx, day))

	// Re-running must not double count
	var p1 int64
	require.NoError(t, db.QueryRow(`SELECT purchases FROM plugin_stats_daily WHERE plugin_id = 'p1'`).Scan(&p1))
	assert.Equal(t, int64(2), p1)
}

func TestAggregateDay_IgnoresOtherDays(t *testing.T) {
	agg, db, _ := newAggregator(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, day)

	require.NoError(t, agg.AggregateDay(context.Background(), day.AddDate(0, 0, 1)))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM plugin_stats_daily`).Scan(&count))
	assert.Zero(t, count)
}

func TestRefreshCatalogGauge(t *testing.T) {
	agg, db, metrics := newAggregator(t)
	seed(t, db, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, agg.RefreshCatalogGauge(context.Background()))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PluginsTotal))

	// Soft-deleted plugins drop out of the gauge
	_, err := db.Exec(`UPDATE plugins SET deleted_at = CURRENT_TIMESTAMP WHERE id = 'p2'`)
	require.NoError(t, err)
	require.NoError(t, agg.RefreshCatalogGauge(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PluginsTotal))
}

func TestTopDownloads(t *testing.T) {
	agg, db, _ := newAggregator(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, day)
	ctx := context.Background()

	for _, row := range []struct {
		plugin    string
		downloads int64
	}{{"p1", 10}, {"p2", 25}} {
		_, err := db.ExecContext(ctx,
			`INSERT INTO plugin_stats_daily (plugin_id, day, downloads, purchases)
			 VALUES ($1, $2, $3, 0)`, row.plugin, day, row.downloads)
		require.NoError(t, err)
	}

	stats, err := agg.TopDownloads(ctx, day.AddDate(0, 0, -1), 5)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "p2", stats[0].PluginID)
	assert.Equal(t, int64(25), stats[0].Downloads)
}
