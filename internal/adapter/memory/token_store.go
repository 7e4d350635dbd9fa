package memory

import (
	"context"
	"sync"

	"github.com/pscheid92/aurahealth/internal/domain"
)

// TokenStore keeps the token set in process memory. A restart forgets it.
type TokenStore struct {
	mu    sync.RWMutex
	token *domain.StoredToken
}

var _ domain.TokenStore = (*TokenStore)(nil)

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Load(context.Context) (*domain.StoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, domain.ErrTokenNotFound
	}
	token := *s.token
	return &token, nil
}

func (s *TokenStore) Save(_ context.Context, token domain.StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &token
	return nil
}

func (s *TokenStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}
