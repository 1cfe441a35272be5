package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/plugmart/plugmart/pkg/catalog"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
)

// Service implements purchase operations
type Service struct {
	store   *Store
	catalog *catalog.Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a new ledger service
func NewService(store *Store, cat *catalog.Service, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, catalog: cat, logger: logger, metrics: metrics}
}

// RecordPurchase appends a purchase for userID, or returns the existing
// record if the plugin was already bought. The insert-then-read sequence
// is retried once; losing the race twice reports a conflict rather than
// ever producing a duplicate ledger entry.
func (s *Service) RecordPurchase(ctx context.Context, userID, pluginID string) (*Purchase, error) {
	plugin, err := s.catalog.Get(ctx, pluginID)
	if err != nil {
		s.metrics.PurchasesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := s.store.TryInsert(ctx, userID, pluginID, plugin.PriceCents); err != nil {
			s.metrics.PurchasesTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		purchase, err := s.store.Get(ctx, userID, pluginID)
		if err == nil {
			s.metrics.PurchasesTotal.WithLabelValues("ok").Inc()
			s.logger.WithFields(map[string]interface{}{
				"user_id":   userID,
				"plugin_id": pluginID,
			}).Info("purchase recorded")
			return purchase, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			s.metrics.PurchasesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		// The row vanished between insert and read; one more pass
	}

	s.metrics.PurchasesTotal.WithLabelValues("conflict").Inc()
	return nil, fmt.Errorf("purchase of plugin %s did not settle: %w", pluginID, errs.ErrConflict)
}

// HasPurchased reports whether the user owns the plugin
func (s *Service) HasPurchased(ctx context.Context, userID, pluginID string) (bool, error) {
	return s.store.Exists(ctx, userID, pluginID)
}

// History returns the user's purchases, newest first
func (s *Service) History(ctx context.Context, userID string) ([]*PurchaseDetail, error) {
	return s.store.ListByUser(ctx, userID)
}
