// Package users implements profile endpoints for marketplace accounts.
package users

import (
	"context"
	"strings"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
)

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// Service implements profile operations
type Service struct {
	store  *auth.Store
	logger *observability.Logger
}

// NewService creates a new users service
func NewService(store *auth.Store, logger *observability.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Profile returns the user's account record
func (s *Service) Profile(ctx context.Context, userID string) (*auth.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile updates the user's editable fields
func (s *Service) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*auth.User, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, errs.InvalidArgumentf("display_name is required")
	}

	user, err := s.store.UpdateUser(ctx, userID, displayName)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", userID).Info("profile updated")
	return user, nil
}
