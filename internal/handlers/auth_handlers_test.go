package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rentora/rentora/internal/config"
	"github.com/rentora/rentora/internal/middleware"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tokens, err := service.NewTokenService(&config.TokenConfig{
		AccessSecret:  "access-secret-0123456789-0123456789",
		RefreshSecret: "refresh-secret-0123456789-0123456789",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	}, logger)
	require.NoError(t, err)

	store := repository.NewMemoryRefreshTokenStore()
	users := repository.NewMemoryUserRepository()
	sessions := service.NewSessionService(tokens, store, users, logger)

	authHandlers := NewAuthHandlers(sessions, logger)
	authMiddleware := middleware.NewAuthMiddleware(sessions, logger)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware.Resolve)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", authHandlers.Signup).Methods("POST")
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("POST")
	auth.HandleFunc("/logout", authHandlers.Logout).Methods("POST")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/auth/logout-all", authHandlers.LogoutAll).Methods("POST")
	protected.HandleFunc("/me", authHandlers.Me).Methods("GET")

	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, cookie := range rec.Result().Cookies() {
		out[cookie.Name] = cookie
	}
	return out
}

func signupAlice(t *testing.T, router *mux.Router) map[string]*http.Cookie {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", SignupRequest{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return cookiesByName(rec)
}

func TestSignupIssuesBothCookies(t *testing.T) {
	router := newTestRouter(t)

	cookies := signupAlice(t, router)
	require.Contains(t, cookies, middleware.AccessTokenCookie)
	require.Contains(t, cookies, middleware.RefreshTokenCookie)
	require.NotEmpty(t, cookies[middleware.AccessTokenCookie].Value)
	require.NotEmpty(t, cookies[middleware.RefreshTokenCookie].Value)
}

func TestSignupDuplicateEmail(t *testing.T) {
	router := newTestRouter(t)
	signupAlice(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", SignupRequest{
		Email:    "alice@example.com",
		Password: "password123",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "USER_EXISTS")
}

func TestSignupRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", SignupRequest{
		Email:    "not-an-email",
		Password: "password123",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", SignupRequest{
		Email:    "bob@example.com",
		Password: "short",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "WEAK_PASSWORD")
}

func TestLoginWrongPassword(t *testing.T) {
	router := newTestRouter(t)
	signupAlice(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
}

func TestMeRequiresAuthentication(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeWithAccessCookie(t *testing.T) {
	router := newTestRouter(t)
	cookies := signupAlice(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/me", nil, []*http.Cookie{
		cookies[middleware.AccessTokenCookie],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["principal_id"])
}

func TestMeWithRefreshCookieRotatesAccessToken(t *testing.T) {
	router := newTestRouter(t)
	cookies := signupAlice(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/me", nil, []*http.Cookie{
		cookies[middleware.RefreshTokenCookie],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rotated := cookiesByName(rec)
	require.Contains(t, rotated, middleware.AccessTokenCookie)
	require.NotEqual(t, cookies[middleware.AccessTokenCookie].Value, rotated[middleware.AccessTokenCookie].Value)
}

func TestRefreshRotatesAndOldTokenDies(t *testing.T) {
	router := newTestRouter(t)
	cookies := signupAlice(t, router)
	oldRefresh := cookies[middleware.RefreshTokenCookie]

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, []*http.Cookie{oldRefresh})
	require.Equal(t, http.StatusOK, rec.Code)

	var body RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	require.NotEqual(t, oldRefresh.Value, body.RefreshToken)

	// Replaying the rotated-away refresh token is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, []*http.Cookie{oldRefresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestRefreshWithoutTokenIsBadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "MISSING_TOKEN")
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	router := newTestRouter(t)
	cookies := signupAlice(t, router)
	refresh := cookies[middleware.RefreshTokenCookie]

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/logout", nil, []*http.Cookie{refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	// Cookies are cleared on the way out.
	for _, cookie := range rec.Result().Cookies() {
		require.Less(t, cookie.MaxAge, 0)
	}

	// The revoked refresh token no longer authenticates.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/me", nil, []*http.Cookie{refresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAllRevokesEveryDevice(t *testing.T) {
	router := newTestRouter(t)
	first := signupAlice(t, router)

	// Second device logs in.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := cookiesByName(rec)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/logout-all", nil, []*http.Cookie{
		first[middleware.AccessTokenCookie],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Neither device's refresh token works any more.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/me", nil, []*http.Cookie{
		first[middleware.RefreshTokenCookie],
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/me", nil, []*http.Cookie{
		second[middleware.RefreshTokenCookie],
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
