// Package download implements entitlement-gated plugin downloads.
// Authorized callers receive a short-lived single-use token which they
// redeem for the artifact bytes.
package download

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/plugmart/plugmart/pkg/errs"
)

const (
	// TokenPrefix identifies download tokens
	TokenPrefix = "plugdl_"
	// TokenTTL is how long an issued token stays redeemable
	TokenTTL = 5 * time.Minute
)

// Grant is everything needed to serve a download once a token is
// redeemed, so redemption requires no further entitlement checks
type Grant struct {
	UserID     string `json:"user_id"`
	PluginID   string `json:"plugin_id"`
	PluginName string `json:"plugin_name"`
	Version    string `json:"version"`
	StorageKey string `json:"storage_key"`
	Checksum   string `json:"checksum"`
}

// TokenStore issues and redeems single-use download tokens
type TokenStore interface {
	// Issue stores a grant and returns its token
	Issue(ctx context.Context, grant *Grant) (string, error)
	// Redeem consumes a token. A second redemption of the same token
	// fails with ErrNotFound.
	Redeem(ctx context.Context, token string) (*Grant, error)
}

// newToken mints a token and the hash it is stored under
func newToken() (token, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(token))
	return token, hex.EncodeToString(sum[:]), nil
}

// RedisTokenStore keeps tokens in Redis so any instance can redeem a
// token issued by another
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a Redis-backed token store
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func redisTokenKey(hash string) string {
	return "download:token:" + hash
}

// Issue implements TokenStore.Issue
func (s *RedisTokenStore) Issue(ctx context.Context, grant *Grant) (string, error) {
	token, hash, err := newToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := s.client.Set(ctx, redisTokenKey(hash), data, TokenTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Redeem implements TokenStore.Redeem. GETDEL makes consumption atomic;
// two racing redemptions cannot both win.
func (s *RedisTokenStore) Redeem(ctx context.Context, token string) (*Grant, error) {
	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])

	data, err := s.client.GetDel(ctx, redisTokenKey(hash)).Result()
	if err == redis.Nil {
		return nil, errs.NotFoundf("download token")
	} else if err != nil {
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	var grant Grant
	if err := json.Unmarshal([]byte(data), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &grant, nil
}

// MemoryTokenStore keeps tokens in an expiring in-process LRU. Used when
// Redis is disabled; tokens are then only redeemable on the instance
// that issued them.
type MemoryTokenStore struct {
	mu     sync.Mutex
	grants *expirable.LRU[string, *Grant]
}

// NewMemoryTokenStore creates an in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		grants: expirable.NewLRU[string, *Grant](8192, nil, TokenTTL),
	}
}

// Issue implements TokenStore.Issue
func (s *MemoryTokenStore) Issue(ctx context.Context, grant *Grant) (string, error) {
	token, hash, err := newToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.grants.Add(hash, grant)
	s.mu.Unlock()
	return token, nil
}

// Redeem implements TokenStore.Redeem
func (s *MemoryTokenStore) Redeem(ctx context.Context, token string) (*Grant, error) {
	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants.Get(hash)
	if !ok {
		return nil, errs.NotFoundf("download token")
	}
	s.grants.Remove(hash)
	return grant, nil
}
