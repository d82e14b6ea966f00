package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rentora/rentora/internal/config"
	"github.com/sirupsen/logrus"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrTokenMalformed means the token cannot be parsed, its signature does
	// not check out, or it was signed for a different kind. Callers treat it
	// as "no credential presented".
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenExpired means the token is well-formed and signature-valid but
	// past its expiry. Verify still returns the embedded principal ID so
	// callers can make downstream decisions, but that identity must never be
	// treated as authenticated.
	ErrTokenExpired = errors.New("token expired")
)

type Claims struct {
	PrincipalID string `json:"pid"`
	Kind        string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the two token kinds. It is stateless:
// purely a function of the configured secrets, expiries and the clock.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
	logger        *logrus.Logger
}

func NewTokenService(cfg *config.TokenConfig, logger *logrus.Logger) (*TokenService, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, fmt.Errorf("signing secrets must be at least 32 bytes")
	}

	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		now:           time.Now,
		logger:        logger,
	}, nil
}

func (s *TokenService) AccessExpiry() time.Duration {
	return s.accessExpiry
}

func (s *TokenService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

func (s *TokenService) secretFor(kind TokenKind) []byte {
	if kind == TokenKindRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

func (s *TokenService) expiryFor(kind TokenKind) time.Duration {
	if kind == TokenKindRefresh {
		return s.refreshExpiry
	}
	return s.accessExpiry
}

// Issue produces a signed token for the principal. Each call embeds the
// issuance time and a fresh JTI, so two tokens for the same principal differ.
func (s *TokenService) Issue(principalID string, kind TokenKind) (string, error) {
	now := s.now()
	claims := &Claims{
		PrincipalID: principalID,
		Kind:        string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiryFor(kind))),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretFor(kind))
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Failed to sign token")
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return tokenString, nil
}

// Verify checks the token against the secret for kind and returns the
// embedded principal ID. The two failure modes are distinguished: signature
// or structural problems yield ErrTokenMalformed with an empty principal,
// while an expired-but-otherwise-valid token yields ErrTokenExpired together
// with the principal it names.
func (s *TokenService) Verify(tokenString string, kind TokenKind) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretFor(kind), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims.Kind == string(kind) {
			return claims.PrincipalID, ErrTokenExpired
		}
		return "", ErrTokenMalformed
	}

	if !token.Valid || claims.Kind != string(kind) || claims.PrincipalID == "" {
		return "", ErrTokenMalformed
	}

	return claims.PrincipalID, nil
}
