package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/database/testutil"
	"github.com/argushq/argus/internal/middleware"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/ratelimit"
	"github.com/argushq/argus/internal/services"
	"github.com/argushq/argus/pkg/crypto"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	apiKeys, err := iauth.NewAPIKeyService(db, iauth.APIKeyConfig{})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "argus-test"})
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	tokens, err := iauth.NewTokenService(db, jwtSvc, audit, iauth.TokenConfig{})
	require.NoError(t, err)
	local, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	require.NoError(t, err)
	totp, err := mfa.NewTOTPService(db, mfa.TOTPConfig{EncryptionKey: "router-test-mfa-key"})
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter()
	t.Cleanup(limiter.Close)

	resolver, err := iauth.NewResolver(apiKeys, sessions, jwtSvc, limiter)
	require.NoError(t, err)

	router, err := NewRouter(Services{
		DB:       db,
		Resolver: resolver,
		APIKeys:  apiKeys,
		Sessions: sessions,
		Tokens:   tokens,
		Local:    local,
		TOTP:     totp,
		Audit:    audit,
	})
	require.NoError(t, err)

	return router, db
}

func seedRouterUser(t *testing.T, db *gorm.DB, username, password string, admin bool) *models.User {
	t.Helper()

	hash, err := crypto.HashSecret(password)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		IsActive: true,
		IsAdmin:  admin,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName {
			return cookie
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBrowserLoginFlow(t *testing.T) {
	router, db := newTestRouter(t)
	seedRouterUser(t, db, "alice", "hunter2hunter2", false)

	// Wrong password: 401, no cookie.
	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"username": "alice", "password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Result().Cookies())

	// Correct password sets the session cookie.
	w = doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"username": "alice", "password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	require.True(t, cookie.HttpOnly)

	// The cookie authenticates /api/auth/me.
	w = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")

	// Logout clears the session; the cookie stops working.
	w = doJSON(t, router, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMobileTokenFlow(t *testing.T) {
	router, db := newTestRouter(t)
	seedRouterUser(t, db, "mobile", "hunter2hunter2", false)

	w := doJSON(t, router, http.MethodPost, "/api/auth/mobile/login", gin.H{
		"username": "mobile", "password": "hunter2hunter2", "device_id": "phone-1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var loginBody struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int    `json:"expires_in"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginBody))
	require.NotEmpty(t, loginBody.Data.AccessToken)
	require.NotEmpty(t, loginBody.Data.RefreshToken)
	require.Positive(t, loginBody.Data.ExpiresIn)

	// The access token authenticates as a bearer credential.
	w = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+loginBody.Data.AccessToken)
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Refresh rotates the token.
	w = doJSON(t, router, http.MethodPost, "/api/auth/mobile/refresh", gin.H{
		"refresh_token": loginBody.Data.RefreshToken, "device_id": "phone-1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var refreshBody struct {
		Data struct {
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshBody))
	require.NotEmpty(t, refreshBody.Data.RefreshToken)
	require.NotEqual(t, loginBody.Data.RefreshToken, refreshBody.Data.RefreshToken)

	// Logout revokes the current token; a later refresh is rejected.
	w = doJSON(t, router, http.MethodPost, "/api/auth/mobile/logout", gin.H{
		"refresh_token": refreshBody.Data.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/auth/mobile/refresh", gin.H{
		"refresh_token": refreshBody.Data.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyLifecycleOverHTTP(t *testing.T) {
	router, db := newTestRouter(t)
	seedRouterUser(t, db, "root", "hunter2hunter2", true)
	seedRouterUser(t, db, "pleb", "hunter2hunter2", false)

	login := func(username string) *http.Cookie {
		w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"username": username, "password": "hunter2hunter2",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return sessionCookie(t, w)
	}

	adminCookie := login("root")
	plebCookie := login("pleb")

	// Non-admins cannot mint keys.
	w := doJSON(t, router, http.MethodPost, "/api/keys", gin.H{
		"name": "nope", "scopes": []string{"read:events"},
	}, func(r *http.Request) { r.AddCookie(plebCookie) })
	require.Equal(t, http.StatusForbidden, w.Code)

	// Admin mints a key; plaintext appears exactly once, in this response.
	w = doJSON(t, router, http.MethodPost, "/api/keys", gin.H{
		"name": "ingest", "scopes": []string{"read:events"},
	}, func(r *http.Request) { r.AddCookie(adminCookie) })
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.Key)

	// The key authenticates requests and carries rate limit headers.
	w = doJSON(t, router, http.MethodGet, "/api/sessions", nil, func(r *http.Request) {
		r.Header.Set(middleware.APIKeyHeader, created.Data.Key)
	})
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))

	// Listing keys never exposes hashes or plaintext.
	w = doJSON(t, router, http.MethodGet, "/api/keys", nil, func(r *http.Request) {
		r.AddCookie(adminCookie)
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), created.Data.Key)
	require.NotContains(t, w.Body.String(), "secret_hash")

	// Revocation kills the key.
	w = doJSON(t, router, http.MethodDelete, "/api/keys/"+created.Data.ID, nil, func(r *http.Request) {
		r.AddCookie(adminCookie)
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/sessions", nil, func(r *http.Request) {
		r.Header.Set(middleware.APIKeyHeader, created.Data.Key)
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
