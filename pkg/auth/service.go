package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/plugmart/plugmart/pkg/contextkeys"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
)

// DefaultTokenTTL is how long a login session token stays valid
const DefaultTokenTTL = 30 * 24 * time.Hour

// Service implements account and session operations
type Service struct {
	store  *Store
	logger *observability.Logger
}

// NewService creates a new auth service
func NewService(store *Store, logger *observability.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Register creates a new account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errs.InvalidArgumentf("invalid email address")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, errs.InvalidArgumentf("display_name is required")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, errs.InvalidArgumentf("%s", err.Error())
	}

	user, err := s.store.CreateUser(ctx, email, strings.TrimSpace(req.DisplayName), hash)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return user, nil
}

// Login verifies credentials and issues a bearer token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Same response as a bad password so login probes cannot
			// enumerate accounts
			return nil, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthenticated)
		}
		return nil, err
	}

	if !CheckPassword(user.PasswordHash, req.Password) {
		return nil, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthenticated)
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(DefaultTokenTTL)
	if _, err := s.store.CreateToken(ctx, user.ID, tokenHash, "session", &expiresAt); err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("user logged in")
	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      Identity{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName},
	}, nil
}

// Authenticate resolves a bearer token to an identity
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), errs.ErrUnauthenticated)
	}

	tokenHash := HashToken(token)
	identity, err := s.store.IdentityByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	// Advisory only; an update failure must not fail the request
	if err := s.store.TouchToken(ctx, tokenHash); err != nil {
		s.logger.WithError(err).Warn("failed to record token use")
	}
	return identity, nil
}

// IdentityFromContext returns the authenticated identity set by the auth
// middleware, or ErrUnauthenticated when the request carries none
func IdentityFromContext(ctx context.Context) (*Identity, error) {
	if identity, ok := ctx.Value(contextkeys.AuthKey).(*Identity); ok && identity != nil {
		return identity, nil
	}
	return nil, errs.ErrUnauthenticated
}
