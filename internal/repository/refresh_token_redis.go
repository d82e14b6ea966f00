package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rentora/rentora/internal/models"
	"github.com/sirupsen/logrus"
)

// RedisRefreshTokenStore keeps refresh-token records as JSON blobs with a
// TTL matching the record expiry, plus a per-principal index set so bulk
// revocation does not scan the keyspace.
type RedisRefreshTokenStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisRefreshTokenStore(client *redis.Client, logger *logrus.Logger) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client: client,
		logger: logger,
	}
}

func refreshTokenKey(value string) string {
	return "refresh_token:" + value
}

func principalTokensKey(principalID string) string {
	return "principal_tokens:" + principalID
}

func (r *RedisRefreshTokenStore) Put(ctx context.Context, token models.RefreshToken) error {
	dataJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	set, err := r.client.SetNX(ctx, refreshTokenKey(token.Value), dataJSON, ttl).Result()
	if err != nil {
		r.logger.WithError(err).Error("Failed to store refresh token in Redis")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if !set {
		return ErrDuplicateToken
	}

	indexKey := principalTokensKey(token.PrincipalID)
	if err := r.client.SAdd(ctx, indexKey, token.Value).Err(); err != nil {
		return fmt.Errorf("failed to index refresh token: %w", err)
	}
	// Keep the index alive at least as long as its longest-lived member.
	// Best effort: a stale index entry only costs a no-op delete later.
	if err := r.client.Expire(ctx, indexKey, ttl).Err(); err != nil {
		r.logger.WithError(err).Debug("Failed to refresh principal token index TTL")
	}

	return nil
}

func (r *RedisRefreshTokenStore) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	dataJSON, err := r.client.Get(ctx, refreshTokenKey(value)).Result()
	if err == redis.Nil {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var token models.RefreshToken
	if err := json.Unmarshal([]byte(dataJSON), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	if !token.ExpiresAt.After(time.Now()) {
		return nil, ErrTokenNotFound
	}

	return &token, nil
}

func (r *RedisRefreshTokenStore) DeleteByValue(ctx context.Context, value string) error {
	// Look the record up first so the principal index stays consistent.
	// A missing record means there is nothing to unindex either.
	dataJSON, err := r.client.Get(ctx, refreshTokenKey(value)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get refresh token for delete: %w", err)
	}

	if err := r.client.Del(ctx, refreshTokenKey(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	var token models.RefreshToken
	if err := json.Unmarshal([]byte(dataJSON), &token); err == nil && token.PrincipalID != "" {
		// Best effort: the record itself is already gone.
		if err := r.client.SRem(ctx, principalTokensKey(token.PrincipalID), value).Err(); err != nil {
			r.logger.WithError(err).Debug("Failed to unindex deleted refresh token")
		}
	}

	return nil
}

func (r *RedisRefreshTokenStore) DeleteAllForPrincipal(ctx context.Context, principalID string) error {
	indexKey := principalTokensKey(principalID)

	values, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list refresh tokens for principal: %w", err)
	}

	for _, value := range values {
		if err := r.client.Del(ctx, refreshTokenKey(value)).Err(); err != nil {
			r.logger.WithError(err).WithField("principal_id", principalID).Error("Failed to delete refresh token during bulk revocation")
			return fmt.Errorf("failed to delete refresh token: %w", err)
		}
	}

	if err := r.client.Del(ctx, indexKey).Err(); err != nil {
		return fmt.Errorf("failed to delete principal token index: %w", err)
	}

	return nil
}
