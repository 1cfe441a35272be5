package download

import (
	"context"
	"database/sql"
	"io"
	"strings"
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
	"github.com/plugmart/plugmart/pkg/ledger"
	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/storage"
)

type fixture struct {
	svc *Service
	db  *sql.DB
}

func newFixture(t *testing.T, tokens TokenStore) *fixture {
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
	led := ledger.NewService(ledger.NewStore(db), cat, logger, metrics)

	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &fixture{
		svc: NewService(db, tokens, cat, led, artifacts, logger, metrics),
		db:  db,
	}
}

// seed creates an author, a buyer, a plugin with one stored archive, and
// a purchase for the buyer
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, u := range []string{"author-1", "buyer-1", "visitor-1"} {
		_, err := f.db.ExecContext(ctx,
			`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			u, u+"@plugmart.io", u, "x", now, now)
		require.NoError(t, err)
	}

	_, err := f.db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, author_id, price_cents, latest_version, created_at, updated_at)
		 VALUES ('p1', 'formatter', 'author-1', 499, '1.0.0', $1, $2)`, now, now)
	require.NoError(t, err)

	key, checksum, size, err := f.svc.artifacts.PutArchive(ctx, "p1", "1.0.0", strings.NewReader("PK jar bytes"))
	require.NoError(t, err)
	_, err = f.db.ExecContext(ctx,
		`INSERT INTO plugin_versions (id, plugin_id, version, storage_key, checksum, size_bytes, created_at)
		 VALUES ('v1', 'p1', '1.0.0', $1, $2, $3, $4)`, key, checksum, size, now)
	require.NoError(t, err)

	_, err = f.db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, plugin_id, amount_cents, created_at)
		 VALUES ('pur1', 'buyer-1', 'p1', 499, $1)`, now)
	require.NoError(t, err)
}

func TestAuthorize_PurchaserGetsToken(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	token, err := f.svc.Authorize(context.Background(), "buyer-1", "p1", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
}

func TestAuthorize_AuthorNeedsNoPurchase(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	token, err := f.svc.Authorize(context.Background(), "author-1", "p1", "1.0.0")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthorize_VisitorForbidden(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	_, err := f.svc.Authorize(context.Background(), "visitor-1", "p1", "")
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAuthorize_UnknownPlugin(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	_, err := f.svc.Authorize(context.Background(), "buyer-1", "missing", "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAuthorize_UnknownVersion(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	_, err := f.svc.Authorize(context.Background(), "buyer-1", "p1", "9.9.9")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRedeem_StreamsArtifactOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	ctx := context.Background()

	token, err := f.svc.Authorize(ctx, "buyer-1", "p1", "")
	require.NoError(t, err)

	grant, body, err := f.svc.Redeem(ctx, token)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	assert.Equal(t, "PK jar bytes", string(data))
	assert.Equal(t, "formatter", grant.PluginName)
	assert.Equal(t, "1.0.0", grant.Version)

	// Counters were bumped
	var count int64
	require.NoError(t, f.db.QueryRow(`SELECT download_count FROM plugins WHERE id = 'p1'`).Scan(&count))
	assert.Equal(t, int64(1), count)

	var daily int64
	require.NoError(t, f.db.QueryRow(`SELECT downloads FROM plugin_stats_daily WHERE plugin_id = 'p1'`).Scan(&daily))
	assert.Equal(t, int64(1), daily)

	// Tokens are single-use
	_, _, err = f.svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRedeem_UnknownToken(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.svc.Redeem(context.Background(), "plugdl_bogus")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRedisTokenStore_ExpiryAndSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisTokenStore(client)
	ctx := context.Background()

	token, err := store.Issue(ctx, &Grant{PluginID: "p1", Version: "1.0.0"})
	require.NoError(t, err)

	grant, err := store.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "p1", grant.PluginID)

	_, err = store.Redeem(ctx, token)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// A fresh token expires after the TTL
	token, err = store.Issue(ctx, &Grant{PluginID: "p1"})
	require.NoError(t, err)
	mr.FastForward(TokenTTL + time.Second)
	_, err = store.Redeem(ctx, token)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
