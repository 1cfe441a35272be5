package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service implements catalog operations
type Service struct {
	store     *Store
	artifacts storage.ArtifactStorage
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewService creates a new catalog service
func NewService(store *Store, artifacts storage.ArtifactStorage, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, artifacts: artifacts, logger: logger, metrics: metrics}
}

// List returns catalog listings for the given options
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Plugin, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultPageSize
	}
	if opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.store.List(ctx, opts)
}

// Get returns a single plugin. Soft-deleted plugins report not found.
func (s *Service) Get(ctx context.Context, id string) (*Plugin, error) {
	return s.store.GetByID(ctx, id)
}

// Featured returns the curated featured listings
func (s *Service) Featured(ctx context.Context, limit int) ([]*Plugin, error) {
	return s.List(ctx, ListOptions{FeaturedOnly: true, Sort: "downloads", Limit: limit})
}

// ListByAuthor returns the caller's own plugins, including unpublished
// metadata visible only to them
func (s *Service) ListByAuthor(ctx context.Context, authorID string) ([]*Plugin, error) {
	return s.store.ListByAuthor(ctx, authorID)
}

// Create publishes a new plugin with its first artifact
func (s *Service) Create(ctx context.Context, identity *auth.Identity, req CreatePluginRequest, archive io.Reader) (*Plugin, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	plugin := &Plugin{
		ID:            NewID(),
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		AuthorID:      identity.UserID,
		PriceCents:    req.PriceCents,
		Category:      strings.TrimSpace(req.Category),
		LatestVersion: req.Version,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	key, checksum, size, err := s.artifacts.PutArchive(ctx, plugin.ID, req.Version, archive)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	if err := s.store.Insert(ctx, plugin); err != nil {
		return nil, err
	}
	if err := s.store.InsertVersion(ctx, &Version{
		ID:         NewID(),
		PluginID:   plugin.ID,
		Version:    req.Version,
		StorageKey: key,
		Checksum:   checksum,
		SizeBytes:  size,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	s.metrics.PluginsTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"plugin_id": plugin.ID,
		"author_id": identity.UserID,
		"version":   req.Version,
	}).Info("plugin published")

	return plugin, nil
}

// AddVersion releases a new artifact for an existing plugin. Only the
// author may release versions.
func (s *Service) AddVersion(ctx context.Context, identity *auth.Identity, pluginID, version string, archive io.Reader) (*Version, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errs.InvalidArgumentf("version is required")
	}

	plugin, err := s.store.GetByID(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if plugin.AuthorID != identity.UserID {
		return nil, errs.Forbiddenf("only the author may release versions of plugin %s", pluginID)
	}

	key, checksum, size, err := s.artifacts.PutArchive(ctx, pluginID, version, archive)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	v := &Version{
		ID:         NewID(),
		PluginID:   pluginID,
		Version:    version,
		StorageKey: key,
		Checksum:   checksum,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertVersion(ctx, v); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"plugin_id": pluginID,
		"version":   version,
	}).Info("version released")
	return v, nil
}

// Update modifies listing metadata. Only the author may update.
func (s *Service) Update(ctx context.Context, identity *auth.Identity, pluginID string, req UpdatePluginRequest) (*Plugin, error) {
	plugin, err := s.store.GetByID(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if plugin.AuthorID != identity.UserID {
		return nil, errs.Forbiddenf("only the author may update plugin %s", pluginID)
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return nil, errs.InvalidArgumentf("price_cents must not be negative")
	}
	return s.store.Update(ctx, pluginID, req)
}

// Delete soft-deletes a listing. Existing purchases and ratings keep
// referencing the hidden row.
func (s *Service) Delete(ctx context.Context, identity *auth.Identity, pluginID string) error {
	plugin, err := s.store.GetByID(ctx, pluginID)
	if err != nil {
		return err
	}
	if plugin.AuthorID != identity.UserID {
		return errs.Forbiddenf("only the author may delete plugin %s", pluginID)
	}

	if err := s.store.SoftDelete(ctx, pluginID); err != nil {
		return err
	}
	s.logger.WithField("plugin_id", pluginID).Info("plugin delisted")
	return nil
}

// Versions lists released versions of a plugin
func (s *Service) Versions(ctx context.Context, pluginID string) ([]*Version, error) {
	if _, err := s.store.GetByID(ctx, pluginID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, pluginID)
}

func validateCreate(req CreatePluginRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errs.InvalidArgumentf("name is required")
	}
	if strings.TrimSpace(req.Version) == "" {
		return errs.InvalidArgumentf("version is required")
	}
	if req.PriceCents < 0 {
		return errs.InvalidArgumentf("price_cents must not be negative")
	}
	return nil
}
