package ratings

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/plugmart/plugmart/pkg/cache"
	"github.com/plugmart/plugmart/pkg/catalog"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
)

const aggregateCacheTTL = 5 * time.Minute

// Service implements rating operations
type Service struct {
	store   *Store
	catalog *catalog.Service
	redis   *redis.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a new ratings service. redis may be nil.
func NewService(store *Store, cat *catalog.Service, redisClient *redis.Client, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, catalog: cat, redis: redisClient, logger: logger, metrics: metrics}
}

// Submit records the user's score and optional comment for a plugin.
// Resubmitting overwrites the previous rating; the plugin's count does
// not grow.
func (s *Service) Submit(ctx context.Context, userID, pluginID string, score int, comment string) (*Aggregate, error) {
	if score < 1 || score > 5 {
		s.metrics.RatingsTotal.WithLabelValues("invalid").Inc()
		return nil, errs.ErrInvalidScore
	}

	if _, err := s.catalog.Get(ctx, pluginID); err != nil {
		s.metrics.RatingsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	agg, err := s.store.Upsert(ctx, pluginID, userID, score, comment)
	if err != nil {
		s.metrics.RatingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// Refresh rather than invalidate so hot plugins keep serving from
	// cache; a failed write only delays readers by the TTL
	if err := cache.SetJSON(ctx, s.redis, aggregateKey(pluginID), agg, aggregateCacheTTL); err != nil {
		s.logger.WithError(err).Warn("failed to refresh aggregate cache")
	}

	s.metrics.RatingsTotal.WithLabelValues("ok").Inc()
	s.logger.WithFields(map[string]interface{}{
		"plugin_id": pluginID,
		"user_id":   userID,
		"score":     score,
	}).Info("rating submitted")
	return agg, nil
}

// GetAggregate returns a plugin's rating summary, serving from cache
// when possible
func (s *Service) GetAggregate(ctx context.Context, pluginID string) (*Aggregate, error) {
	var cached Aggregate
	hit, err := cache.GetJSON(ctx, s.redis, aggregateKey(pluginID), &cached)
	if err != nil {
		s.logger.WithError(err).Warn("aggregate cache read failed")
	} else if hit {
		s.metrics.CacheHitsTotal.WithLabelValues("rating_aggregate").Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.WithLabelValues("rating_aggregate").Inc()

	agg, err := s.store.GetAggregate(ctx, pluginID)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.redis, aggregateKey(pluginID), agg, aggregateCacheTTL); err != nil {
		s.logger.WithError(err).Warn("failed to populate aggregate cache")
	}
	return agg, nil
}

// GetUserRating returns the caller's own rating of a plugin
func (s *Service) GetUserRating(ctx context.Context, userID, pluginID string) (*Rating, error) {
	return s.store.GetUserRating(ctx, pluginID, userID)
}

func aggregateKey(pluginID string) string {
	return fmt.Sprintf("rating:aggregate:%s", pluginID)
}
