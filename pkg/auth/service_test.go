package auth

import (
	"context"
	"database/sql"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmart/plugmart/pkg/contextkeys"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/observability"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewService(NewStore(db), logger), mock
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", DisplayName: "dev", Password: "longenough"}},
		{"missing display name", RegisterRequest{Email: "dev@plugmart.io", Password: "longenough"}},
		{"short password", RegisterRequest{Email: "dev@plugmart.io", DisplayName: "dev", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}

func TestRegister_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "dev@plugmart.io", "dev", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "Dev@PlugMart.io",
		DisplayName: "dev",
		Password:    "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "dev@plugmart.io", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&duplicateErr{})

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "dev@plugmart.io",
		DisplayName: "dev",
		Password:    "longenough",
	})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

type duplicateErr struct{}

func (e *duplicateErr) Error() string {
	return `pq: duplicate key value violates unique constraint "users_email_key"`
}

func TestLogin_Success(t *testing.T) {
	svc, mock := newTestService(t)

	hash, err := HashPassword("longenough")
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, display_name, password_hash, created_at, updated_at")).
		WithArgs("dev@plugmart.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "created_at", "updated_at"}).
			AddRow("u1", "dev@plugmart.io", "dev", hash, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO api_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "dev@plugmart.io", Password: "longenough"})
	require.NoError(t, err)
	assert.Contains(t, resp.Token, TokenPrefix)
	assert.Equal(t, "u1", resp.User.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mock := newTestService(t)

	hash, err := HashPassword("longenough")
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, display_name, password_hash")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "created_at", "updated_at"}).
			AddRow("u1", "dev@plugmart.io", "dev", hash, now, now))

	_, err = svc.Login(context.Background(), LoginRequest{Email: "dev@plugmart.io", Password: "wrong-password"})
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, display_name, password_hash")).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "nobody@plugmart.io", Password: "whatever123"})
	// Indistinguishable from a wrong password
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestAuthenticate_Success(t *testing.T) {
	svc, mock := newTestService(t)

	token, tokenHash, err := GenerateToken()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens")).
		WithArgs(tokenHash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "expires_at"}).
			AddRow("u1", "dev@plugmart.io", "dev", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens SET last_used_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	identity, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate_BadFormat(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Authenticate(context.Background(), "other_wrongprefix")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestAuthenticate_Expired(t *testing.T) {
	svc, mock := newTestService(t)

	token, _, err := GenerateToken()
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "expires_at"}).
			AddRow("u1", "dev@plugmart.io", "dev", expired))

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestAuthenticate_UnknownToken(t *testing.T) {
	svc, mock := newTestService(t)

	token, _, err := GenerateToken()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens")).
		WillReturnError(sql.ErrNoRows)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestIdentityFromContext(t *testing.T) {
	_, err := IdentityFromContext(context.Background())
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	want := &Identity{UserID: "u1", Email: "dev@plugmart.io"}
	ctx := contextkeys.WithAuth(context.Background(), want)
	got, err := IdentityFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
