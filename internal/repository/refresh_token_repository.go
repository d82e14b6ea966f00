package repository

import (
	"context"
	"errors"

	"github.com/rentora/rentora/internal/models"
)

var (
	// ErrTokenNotFound is returned by FindByValue when no live record backs
	// the token value. Expired-but-undeleted records are reported the same
	// way; the store never lets them authenticate.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrDuplicateToken is returned by Put when the exact token value is
	// already stored. Signing randomness makes this practically unreachable,
	// but Put must never silently overwrite an existing record.
	ErrDuplicateToken = errors.New("refresh token already exists")
)

// RefreshTokenStore is the durable mapping from refresh-token value to owning
// principal. Each operation is individually atomic at the storage layer;
// callers never rely on cross-operation transactions. Rotation is always
// insert-new then delete-old, never update-in-place.
type RefreshTokenStore interface {
	// Put inserts a new record. Fails with ErrDuplicateToken if the exact
	// value already exists.
	Put(ctx context.Context, token models.RefreshToken) error

	// FindByValue returns the live record for the token value, or
	// ErrTokenNotFound.
	FindByValue(ctx context.Context, value string) (*models.RefreshToken, error)

	// DeleteByValue removes a record. Deleting an absent token is not an
	// error.
	DeleteByValue(ctx context.Context, value string) error

	// DeleteAllForPrincipal removes every record owned by the principal.
	// Used for "log out everywhere" and compromise response.
	DeleteAllForPrincipal(ctx context.Context, principalID string) error
}
