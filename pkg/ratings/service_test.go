package ratings

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmart/plugmart/pkg/catalog"
	"github.com/plugmart/plugmart/pkg/config"
	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/storage"
)

// newTestService runs against an in-memory SQLite database so the
// upsert and aggregate SQL is exercised for real.
func newTestService(t *testing.T, redisClient *redis.Client) (*Service, *sql.DB) {
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

	artifacts, err := storage.NewFileSystemStorage(t.TempDir())
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cat := catalog.NewService(catalog.NewStore(db), artifacts, logger, metrics)
	return NewService(NewStore(db), cat, redisClient, logger, metrics), db
}

func seedPlugin(t *testing.T, db *sql.DB, pluginID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		"author-"+pluginID, pluginID+"@plugmart.io", "author", "x", now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		pluginID, "formatter", "author-"+pluginID, now, now)
	require.NoError(t, err)
}

func TestSubmit_InvalidScore(t *testing.T) {
	svc, _ := newTestService(t, nil)

	for _, score := range []int{0, -1, 6, 100} {
		_, err := svc.Submit(context.Background(), "u1", "p1", score, "")
		assert.ErrorIs(t, err, errs.ErrInvalidScore, "score %d", score)
	}
}

func TestSubmit_UnknownPlugin(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Submit(context.Background(), "u1", "missing", 4, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSubmit_FirstRating(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlugin(t, db, "p1")

	agg, err := svc.Submit(context.Background(), "u1", "p1", 4, "")
	require.NoError(t, err)
	assert.Equal(t, &Aggregate{PluginID: "p1", Mean: 4, Count: 1}, agg)
}

func TestSubmit_ResubmissionOverwrites(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlugin(t, db, "p1")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", "p1", 5, "great")
	require.NoError(t, err)

	// The same user rating again replaces the score; the count stays 1
	agg, err := svc.Submit(ctx, "u1", "p1", 2, "regressed in 2.0")
	require.NoError(t, err)
	assert.Equal(t, float64(2), agg.Mean)
	assert.Equal(t, int64(1), agg.Count)

	rating, err := svc.GetUserRating(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, rating.Score)
	assert.Equal(t, "regressed in 2.0", rating.Comment)
}

func TestSubmit_MeanAcrossUsers(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlugin(t, db, "p1")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", "p1", 5, "")
	require.NoError(t, err)
	agg, err := svc.Submit(ctx, "u2", "p1", 2, "")
	require.NoError(t, err)

	assert.Equal(t, 3.5, agg.Mean)
	assert.Equal(t, int64(2), agg.Count)

	// The denormalized listing columns were updated in the same
	// transaction
	var mean float64
	var count int64
	require.NoError(t, db.QueryRow(`SELECT rating_mean, rating_count FROM plugins WHERE id = 'p1'`).
		Scan(&mean, &count))
	assert.Equal(t, 3.5, mean)
	assert.Equal(t, int64(2), count)
}

func TestGetAggregate_ZeroValueWhenUnrated(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlugin(t, db, "p1")

	agg, err := svc.GetAggregate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, &Aggregate{PluginID: "p1", Mean: 0, Count: 0}, agg)
}

func TestGetAggregate_UnknownPlugin(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.GetAggregate(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetUserRating_NotFound(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlugin(t, db, "p1")

	_, err := svc.GetUserRating(context.Background(), "u1", "p1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetAggregate_ServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	svc, db := newTestService(t, redisClient)
	seedPlugin(t, db, "p1")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", "p1", 4, "")
	require.NoError(t, err)

	// Submit refreshed the cache; a direct DB change without cache
	// refresh is invisible until the TTL lapses, proving the read path
	// hits Redis
	_, err = db.ExecContext(ctx, `UPDATE plugins SET rating_mean = 1, rating_count = 99 WHERE id = 'p1'`)
	require.NoError(t, err)

	agg, err := svc.GetAggregate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(4), agg.Mean)
	assert.Equal(t, int64(1), agg.Count)

	// After expiry the database value shows through
	mr.FastForward(aggregateCacheTTL + time.Second)
	agg, err = svc.GetAggregate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), agg.Count)
}
