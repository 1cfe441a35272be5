package download

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/plugmart/plugmart/pkg/catalog"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/ledger"
	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/storage"
)

// Service implements download authorization and delivery
type Service struct {
	db        *sql.DB
	tokens    TokenStore
	catalog   *catalog.Service
	ledger    *ledger.Service
	artifacts storage.ArtifactStorage
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewService creates a new download service
func NewService(db *sql.DB, tokens TokenStore, cat *catalog.Service, led *ledger.Service,
	artifacts storage.ArtifactStorage, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		db:        db,
		tokens:    tokens,
		catalog:   cat,
		ledger:    led,
		artifacts: artifacts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Authorize checks the caller's entitlement to a plugin and, when
// entitled, issues a single-use download token for the requested
// version (latest when version is empty). Authors are always entitled
// to their own plugins.
func (s *Service) Authorize(ctx context.Context, userID, pluginID, version string) (string, error) {
	plugin, err := s.catalog.Get(ctx, pluginID)
	if err != nil {
		s.metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		return "", err
	}

	if plugin.AuthorID != userID {
		owned, err := s.ledger.HasPurchased(ctx, userID, pluginID)
		if err != nil {
			return "", err
		}
		if !owned {
			s.metrics.DownloadsTotal.WithLabelValues("forbidden").Inc()
			return "", errs.Forbiddenf("plugin %s has not been purchased", pluginID)
		}
	}

	if version == "" {
		version = plugin.LatestVersion
	}
	v, err := s.versionRecord(ctx, pluginID, version)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, &Grant{
		UserID:     userID,
		PluginID:   pluginID,
		PluginName: plugin.Name,
		Version:    v.Version,
		StorageKey: v.StorageKey,
		Checksum:   v.Checksum,
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue download token: %w", err)
	}

	s.metrics.DownloadTokensIssued.Inc()
	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"plugin_id": pluginID,
		"version":   v.Version,
	}).Info("download authorized")
	return token, nil
}

// Redeem consumes a download token and returns the artifact stream
// along with its grant. Counters are bumped on successful redemption.
func (s *Service) Redeem(ctx context.Context, token string) (*Grant, io.ReadCloser, error) {
	grant, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		s.metrics.DownloadsTotal.WithLabelValues("bad_token").Inc()
		return nil, nil, err
	}

	body, err := s.artifacts.GetArchive(ctx, grant.StorageKey)
	if err != nil {
		s.metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return nil, nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	s.recordDownload(ctx, grant.PluginID)
	s.metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	return grant, body, nil
}

// recordDownload bumps the listing counter and the per-day stats row.
// Counting failures never block a download that was already authorized.
func (s *Service) recordDownload(ctx context.Context, pluginID string) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET download_count = download_count + 1 WHERE id = $1`, pluginID); err != nil {
		s.logger.WithError(err).Warn("failed to bump download counter")
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO plugin_stats_daily (plugin_id, day, downloads, purchases)
		 VALUES ($1, $2, 1, 0)
		 ON CONFLICT (plugin_id, day) DO UPDATE SET downloads = plugin_stats_daily.downloads + 1`,
		pluginID, day); err != nil {
		s.logger.WithError(err).Warn("failed to bump daily download stats")
	}
}

// versionRecord looks up a released version row
func (s *Service) versionRecord(ctx context.Context, pluginID, version string) (*catalog.Version, error) {
	versions, err := s.catalog.Versions(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, errs.NotFoundf("version %s of plugin %s", version, pluginID)
}
