package middleware

import (
	"context"
	"net/http"

	"github.com/rentora/rentora/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenCookie  = "access-token"
	RefreshTokenCookie = "refresh-token"
)

type contextKey string

const principalContextKey contextKey = "principal_id"

// PrincipalFromContext returns the resolved principal ID for the request, or
// "" when the caller is anonymous.
func PrincipalFromContext(ctx context.Context) string {
	principalID, _ := ctx.Value(principalContextKey).(string)
	return principalID
}

type AuthMiddleware struct {
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewAuthMiddleware(sessions *service.SessionService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

// Resolve runs the session authenticator on every request. It never blocks a
// request: the worst outcome of any failure is that the request proceeds
// unauthenticated and protected handlers reject it downstream. On rotation
// the replacement access token rides back on the response as a cookie.
func (m *AuthMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := cookieValue(r, AccessTokenCookie)
		refreshToken := cookieValue(r, RefreshTokenCookie)

		result := m.sessions.Authenticate(r.Context(), accessToken, refreshToken)

		if result.Outcome == service.OutcomeRotated {
			http.SetCookie(w, &http.Cookie{
				Name:     AccessTokenCookie,
				Value:    result.NewAccessToken,
				Path:     "/",
				MaxAge:   int(m.sessions.AccessExpiry().Seconds()),
				HttpOnly: true,
			})
		}

		if result.Authenticated() {
			ctx := context.WithValue(r.Context(), principalContextKey, result.PrincipalID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth guards protected routes. It assumes Resolve already ran.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == "" {
			m.respondUnauthorized(w, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"NOT_AUTHENTICATED","message":"` + message + `"}}`))
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
