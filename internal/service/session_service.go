package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rentora/rentora/internal/models"
	"github.com/rentora/rentora/internal/repository"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidCredentials is returned by Login and Signup when the
	// submitted secret does not match, or the user is unknown. Callers get
	// one error for both so responses do not leak which emails exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshReuse is returned by Rotate when a signature-valid refresh
	// token has no backing store record: it was already rotated away,
	// revoked, or forged with a leaked secret.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrNotAuthenticated is returned by Rotate when the presented refresh
	// token fails verification outright.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Outcome is the resolved authentication state of one inbound request.
type Outcome int

const (
	// OutcomeAnonymous: no usable credential; proceed unauthenticated.
	OutcomeAnonymous Outcome = iota
	// OutcomeAuthenticated: the access token verified; fast path, the store
	// was not consulted.
	OutcomeAuthenticated
	// OutcomeRejected: the refresh token was malformed; any store record
	// matching the raw value was deleted defensively.
	OutcomeRejected
	// OutcomeReuseSuspected: a signature-valid refresh token had no store
	// record. Treated as anonymous, and every record for the embedded
	// principal is revoked.
	OutcomeReuseSuspected
	// OutcomeRotated: the refresh token verified and was found in the store;
	// a fresh access token was minted. The refresh record is untouched.
	OutcomeRotated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	case OutcomeReuseSuspected:
		return "reuse_suspected"
	case OutcomeRotated:
		return "rotated"
	default:
		return "anonymous"
	}
}

// Result is the tagged outcome of one authentication pass. PrincipalID is
// set only for Authenticated and Rotated; NewAccessToken only for Rotated.
type Result struct {
	Outcome        Outcome
	PrincipalID    string
	NewAccessToken string
}

// Authenticated reports whether the request carries a resolved identity.
func (r Result) Authenticated() bool {
	return r.Outcome == OutcomeAuthenticated || r.Outcome == OutcomeRotated
}

// SessionService orchestrates the token codec and the refresh-token store to
// answer "who is making this request, and what tokens should the client now
// hold?". It is a function of (tokens, store, clock, secrets); it keeps no
// per-request state and takes no locks.
type SessionService struct {
	tokens *TokenService
	store  repository.RefreshTokenStore
	users  repository.UserRepository
	now    func() time.Time
	logger *logrus.Logger
}

func NewSessionService(tokens *TokenService, store repository.RefreshTokenStore, users repository.UserRepository, logger *logrus.Logger) *SessionService {
	return &SessionService{
		tokens: tokens,
		store:  store,
		users:  users,
		now:    time.Now,
		logger: logger,
	}
}

// Authenticate resolves one inbound request. The precedence order is fixed;
// the first matching row wins:
//
//  1. neither token present               -> Anonymous
//  2. access token verifies               -> Authenticated (store untouched)
//  3. no refresh token present            -> Anonymous
//  4. refresh token malformed             -> Rejected (raw value deleted)
//  5. refresh valid but not in store      -> ReuseSuspected (principal revoked)
//  6. refresh valid and found             -> Rotated (new access token)
//
// An expired access token is treated the same as an absent one and control
// falls through to the refresh token. Every failure path, including store
// unavailability, degrades to an anonymous result; Authenticate never
// returns an error and never panics the request pipeline.
func (s *SessionService) Authenticate(ctx context.Context, accessToken, refreshToken string) Result {
	if accessToken == "" && refreshToken == "" {
		return Result{Outcome: OutcomeAnonymous}
	}

	if accessToken != "" {
		principalID, err := s.tokens.Verify(accessToken, TokenKindAccess)
		if err == nil {
			return Result{Outcome: OutcomeAuthenticated, PrincipalID: principalID}
		}
		// Expired or malformed: either way the access token is unusable and
		// the refresh token decides what happens next.
	}

	if refreshToken == "" {
		return Result{Outcome: OutcomeAnonymous}
	}

	principalID, err := s.tokens.Verify(refreshToken, TokenKindRefresh)
	switch {
	case errors.Is(err, ErrTokenMalformed):
		// A forged value may still have been planted in the store; remove
		// anything matching the raw value before proceeding unauthenticated.
		if delErr := s.store.DeleteByValue(ctx, refreshToken); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to delete malformed refresh token from store")
		}
		return Result{Outcome: OutcomeRejected}
	case errors.Is(err, ErrTokenExpired):
		return Result{Outcome: OutcomeAnonymous}
	case err != nil:
		return Result{Outcome: OutcomeAnonymous}
	}

	record, err := s.store.FindByValue(ctx, refreshToken)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return s.suspectReuse(ctx, principalID)
	}
	if err != nil {
		// Store unavailable: fail into the anonymous path rather than hang
		// or abort the request.
		s.logger.WithError(err).Error("Refresh token lookup failed")
		return Result{Outcome: OutcomeAnonymous}
	}

	newAccessToken, err := s.tokens.Issue(record.PrincipalID, TokenKindAccess)
	if err != nil {
		s.logger.WithError(err).Error("Failed to mint access token during rotation")
		return Result{Outcome: OutcomeAnonymous}
	}

	return Result{
		Outcome:        OutcomeRotated,
		PrincipalID:    record.PrincipalID,
		NewAccessToken: newAccessToken,
	}
}

// suspectReuse handles a signature-valid refresh token with no backing
// record: the replay/compromise signal. The request proceeds anonymous and
// every live record for the embedded principal is revoked.
func (s *SessionService) suspectReuse(ctx context.Context, principalID string) Result {
	s.logger.WithFields(logrus.Fields{
		"principal_id": principalID,
		"event":        "refresh_token_reuse",
	}).Warn("Signature-valid refresh token not found in store; revoking all sessions for principal")

	if err := s.store.DeleteAllForPrincipal(ctx, principalID); err != nil {
		s.logger.WithError(err).WithField("principal_id", principalID).Error("Failed to revoke sessions after suspected reuse")
	}

	return Result{Outcome: OutcomeReuseSuspected}
}

// Signup creates a user with a bcrypt-hashed password and issues the first
// token pair.
func (s *SessionService) Signup(ctx context.Context, email, name, password string) (*models.User, *models.TokenPair, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// Login verifies credentials and issues a fresh token pair, persisting the
// refresh token. Other live records for the principal are left alone;
// multiple simultaneous sessions are permitted by design.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.User, *models.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// Rotate is the explicit rotation event: it exchanges a live refresh token
// for a brand new pair. The new record is inserted before the old one is
// deleted, so an aborted rotation can briefly leave two live records but
// never zero. Two requests racing to rotate the same value have exactly one
// winner; the loser surfaces ErrRefreshReuse.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	principalID, err := s.tokens.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	record, err := s.store.FindByValue(ctx, refreshToken)
	if errors.Is(err, repository.ErrTokenNotFound) {
		s.suspectReuse(ctx, principalID)
		return nil, ErrRefreshReuse
	}
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup failed: %w", err)
	}

	pair, err := s.issuePair(ctx, record.PrincipalID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteByValue(ctx, refreshToken); err != nil {
		// The old record still expires naturally; log and move on.
		s.logger.WithError(err).Warn("Failed to delete rotated refresh token")
	}

	return pair, nil
}

// Logout deletes the presented refresh token's record. Deleting an absent or
// bogus value is not an error; the client discards its cookies regardless.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.store.DeleteByValue(ctx, refreshToken)
}

// LogoutAll revokes every live refresh token for the principal.
func (s *SessionService) LogoutAll(ctx context.Context, principalID string) error {
	return s.store.DeleteAllForPrincipal(ctx, principalID)
}

// AccessExpiry exposes the access-token lifetime for cookie max-age.
func (s *SessionService) AccessExpiry() time.Duration {
	return s.tokens.AccessExpiry()
}

// RefreshExpiry exposes the refresh-token lifetime for cookie max-age.
func (s *SessionService) RefreshExpiry() time.Duration {
	return s.tokens.RefreshExpiry()
}

func (s *SessionService) issuePair(ctx context.Context, principalID string) (*models.TokenPair, error) {
	accessToken, err := s.tokens.Issue(principalID, TokenKindAccess)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.Issue(principalID, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := models.RefreshToken{
		Value:       refreshToken,
		PrincipalID: principalID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.tokens.RefreshExpiry()),
	}

	if err := s.store.Put(ctx, record); err != nil {
		// ErrDuplicateToken here is an invariant violation (signing
		// randomness should make collisions unreachable); it fails this
		// request but not the process.
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
	}, nil
}
