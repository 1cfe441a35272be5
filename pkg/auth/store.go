package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/errs"
)

// Store persists users and API tokens
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a new user account
func (s *Store) CreateUser(ctx context.Context, email, displayName, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("email %s already registered: %w", email, errs.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail fetches a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

// GetUserByID fetches a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("user")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// UpdateUser updates mutable profile fields
func (s *Store) UpdateUser(ctx context.Context, id, displayName string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET display_name = $1, updated_at = $2 WHERE id = $3`,
		displayName, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errs.NotFoundf("user %s", id)
	}
	return s.GetUserByID(ctx, id)
}

// CreateToken stores the hash of a newly issued bearer token
func (s *Store) CreateToken(ctx context.Context, userID, tokenHash, name string, expiresAt *time.Time) (*APIToken, error) {
	token := &APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (id, user_id, token_hash, name, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.TokenHash, token.Name, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// IdentityByTokenHash resolves a token hash to its owner, rejecting
// expired tokens
func (s *Store) IdentityByTokenHash(ctx context.Context, tokenHash string) (*Identity, error) {
	var (
		identity  Identity
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.display_name, t.expires_at
		 FROM api_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token_hash = $1`, tokenHash).
		Scan(&identity.UserID, &identity.Email, &identity.DisplayName, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrUnauthenticated
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now().UTC()) {
		return nil, fmt.Errorf("token expired: %w", errs.ErrUnauthenticated)
	}
	return &identity, nil
}

// TouchToken records the last use of a token. Failures are ignored by
// callers since this is advisory metadata.
func (s *Store) TouchToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE token_hash = $2`,
		time.Now().UTC(), tokenHash)
	return err
}

// RevokeToken deletes a stored token
func (s *Store) RevokeToken(ctx context.Context, userID, tokenID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`, tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFoundf("token %s", tokenID)
	}
	return nil
}
