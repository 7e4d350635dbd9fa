package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/platform/crypto"
)

const tokenKeyPrefix = "aura:token:"

// TokenObserver receives the outcome of every store operation.
type TokenObserver interface {
	Observe(backend, operation string, err error)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string, error) {}

// TokenStore persists the identity token set as sealed JSON under one key per app.
type TokenStore struct {
	rdb      goredis.Cmdable
	key      string
	sealer   crypto.Sealer
	observer TokenObserver
}

var _ domain.TokenStore = (*TokenStore)(nil)

func NewTokenStore(rdb goredis.Cmdable, appID string, sealer crypto.Sealer, observer TokenObserver) *TokenStore {
	if sealer == nil {
		sealer = crypto.Plaintext{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &TokenStore{rdb: rdb, key: tokenKeyPrefix + appID, sealer: sealer, observer: observer}
}

func (s *TokenStore) Load(ctx context.Context) (token *domain.StoredToken, err error) {
	defer func() { s.observer.Observe("redis", "load", err) }()

	sealed, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	data, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored token: %w", err)
	}

	token = &domain.StoredToken{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	return token, nil
}

func (s *TokenStore) Save(ctx context.Context, token domain.StoredToken) (err error) {
	defer func() { s.observer.Observe("redis", "save", err) }()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, sealed, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) (err error) {
	defer func() { s.observer.Observe("redis", "clear", err) }()

	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
