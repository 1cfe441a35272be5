// Package entitlement is the façade tying purchases, ratings and
// downloads together behind one API surface. Every operation takes the
// caller's identity explicitly; nothing is read from ambient state.
package entitlement

import (
	"context"
	"io"

	"github.com/plugmart/plugmart/pkg/download"
	"github.com/plugmart/plugmart/pkg/ledger"
	"github.com/plugmart/plugmart/pkg/ratings"
)

// Service composes the entitlement operations
type Service struct {
	ledger    *ledger.Service
	ratings   *ratings.Service
	downloads *download.Service
}

// NewService creates a new entitlement service
func NewService(led *ledger.Service, rat *ratings.Service, dl *download.Service) *Service {
	return &Service{ledger: led, ratings: rat, downloads: dl}
}

// Purchase buys a plugin for the user. Buying twice returns the
// original ledger record.
func (s *Service) Purchase(ctx context.Context, userID, pluginID string) (*ledger.Purchase, error) {
	return s.ledger.RecordPurchase(ctx, userID, pluginID)
}

// Purchases returns the user's purchase history, newest first
func (s *Service) Purchases(ctx context.Context, userID string) ([]*ledger.PurchaseDetail, error) {
	return s.ledger.History(ctx, userID)
}

// AuthorizeDownload issues a download token when the user is entitled
// to the plugin
func (s *Service) AuthorizeDownload(ctx context.Context, userID, pluginID, version string) (string, error) {
	return s.downloads.Authorize(ctx, userID, pluginID, version)
}

// RedeemDownload consumes a download token for the artifact stream
func (s *Service) RedeemDownload(ctx context.Context, token string) (*download.Grant, io.ReadCloser, error) {
	return s.downloads.Redeem(ctx, token)
}

// Rate records the user's score and optional comment for a plugin and
// returns the updated aggregate
func (s *Service) Rate(ctx context.Context, userID, pluginID string, score int, comment string) (*ratings.Aggregate, error) {
	return s.ratings.Submit(ctx, userID, pluginID, score, comment)
}

// RatingAggregate returns a plugin's rating summary
func (s *Service) RatingAggregate(ctx context.Context, pluginID string) (*ratings.Aggregate, error) {
	return s.ratings.GetAggregate(ctx, pluginID)
}

// UserRating returns the user's own rating of a plugin
func (s *Service) UserRating(ctx context.Context, userID, pluginID string) (*ratings.Rating, error) {
	return s.ratings.GetUserRating(ctx, userID, pluginID)
}
