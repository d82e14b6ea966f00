package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rentora/rentora/internal/models"
)

// MemoryRefreshTokenStore is a map-backed store for tests and local
// development. Operations are individually atomic under one mutex, matching
// the contract the durable drivers provide.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		tokens: make(map[string]models.RefreshToken),
	}
}

func (r *MemoryRefreshTokenStore) Put(_ context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.Value]; exists {
		return ErrDuplicateToken
	}
	r.tokens[token.Value] = token
	return nil
}

func (r *MemoryRefreshTokenStore) FindByValue(_ context.Context, value string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.tokens[value]
	if !exists || !token.ExpiresAt.After(time.Now()) {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (r *MemoryRefreshTokenStore) DeleteByValue(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, value)
	return nil
}

func (r *MemoryRefreshTokenStore) DeleteAllForPrincipal(_ context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for value, token := range r.tokens {
		if token.PrincipalID == principalID {
			delete(r.tokens, value)
		}
	}
	return nil
}

// Len reports the number of live records; used by tests.
func (r *MemoryRefreshTokenStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
