package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/rentora/rentora/internal/middleware"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewAuthHandlers(sessions *service.SessionService, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions: sessions,
		logger:   logger,
	}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         UserResponse `json:"user"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(email) {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
		return
	}

	if len(req.Password) < 8 {
		h.respondWithError(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters")
		return
	}

	user, pair, err := h.sessions.Signup(r.Context(), email, strings.TrimSpace(req.Name), req.Password)
	if errors.Is(err, repository.ErrUserExists) {
		h.respondWithError(w, http.StatusConflict, "USER_EXISTS", "An account with this email already exists")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to sign up user")
		h.respondWithError(w, http.StatusInternalServerError, "SIGNUP_FAILED", "Failed to create account")
		return
	}

	h.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	h.respondWithJSON(w, http.StatusCreated, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User: UserResponse{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(email) {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
		return
	}

	user, pair, err := h.sessions.Login(r.Context(), email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Login failed")
		h.respondWithError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to log in")
		return
	}

	h.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	h.respondWithJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User: UserResponse{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	})
}

// Refresh is the explicit rotation endpoint: the presented refresh token is
// exchanged for a brand new pair and its store record replaced. Reuse of an
// already-rotated value is rejected and revokes the principal's sessions.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, middleware.RefreshTokenCookie)
	if refreshToken == "" {
		// No cookie: fall back to the body. A decode failure just leaves
		// the token empty and trips the guard below.
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		refreshToken = req.RefreshToken
	}

	if refreshToken == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
		return
	}

	pair, err := h.sessions.Rotate(r.Context(), refreshToken)
	if errors.Is(err, service.ErrRefreshReuse) || errors.Is(err, service.ErrNotAuthenticated) {
		h.clearSessionCookies(w)
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to rotate refresh token")
		h.respondWithError(w, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to refresh tokens")
		return
	}

	h.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	h.respondWithJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, middleware.RefreshTokenCookie)

	if err := h.sessions.Logout(r.Context(), refreshToken); err != nil {
		h.logger.WithError(err).Warn("Failed to delete refresh token on logout")
	}

	h.clearSessionCookies(w)
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// LogoutAll revokes every live session for the authenticated principal.
func (h *AuthHandlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principalID := middleware.PrincipalFromContext(r.Context())
	if principalID == "" {
		h.respondWithError(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated")
		return
	}

	if err := h.sessions.LogoutAll(r.Context(), principalID); err != nil {
		h.logger.WithError(err).Error("Failed to revoke sessions for principal")
		h.respondWithError(w, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to log out everywhere")
		return
	}

	h.clearSessionCookies(w)
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out everywhere",
	})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principalID := middleware.PrincipalFromContext(r.Context())
	if principalID == "" {
		h.respondWithError(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"principal_id": principalID,
	})
}

func (h *AuthHandlers) setSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.sessions.AccessExpiry().Seconds()),
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.sessions.RefreshExpiry().Seconds()),
		HttpOnly: true,
	})
}

func (h *AuthHandlers) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func isValidEmail(email string) bool {
	matched, _ := regexp.MatchString(`^[^@\s]+@[^@\s]+\.[^@\s]+$`, email)
	return matched
}
