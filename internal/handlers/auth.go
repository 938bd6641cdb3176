package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/middleware"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/services"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// AuthHandler manages the browser flows: cookie login, logout, and identity.
type AuthHandler struct {
	db           *gorm.DB
	local        *providers.LocalProvider
	sessions     *iauth.SessionService
	totp         *mfa.TOTPService
	audit        *services.AuditService
	cookieSecure bool
	cookieMaxAge int
}

// AuthHandlerConfig bundles cookie behaviour for the browser endpoints.
type AuthHandlerConfig struct {
	CookieSecure bool
	CookieMaxAge int
}

func NewAuthHandler(db *gorm.DB, local *providers.LocalProvider, sessions *iauth.SessionService, totp *mfa.TOTPService, audit *services.AuditService, cfg AuthHandlerConfig) *AuthHandler {
	maxAge := cfg.CookieMaxAge
	if maxAge <= 0 {
		maxAge = int(iauth.DefaultSessionTTL.Seconds())
	}
	return &AuthHandler{
		db:           db,
		local:        local,
		sessions:     sessions,
		totp:         totp,
		audit:        audit,
		cookieSecure: cfg.CookieSecure,
		cookieMaxAge: maxAge,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.local.Authenticate(requestContext(c), req.Username, req.Password, c.ClientIP())
	if err != nil {
		h.auditLogin(c, nil, req.Username, "denied")
		// Lockouts surface distinctly; everything else normalises to 401.
		if errors.Is(err, providers.ErrAccountLocked) {
			response.Error(c, appErrors.New("ACCOUNT_LOCKED", "Account temporarily locked", http.StatusForbidden))
			return
		}
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	if user.MFAEnabled {
		if req.MFACode == "" {
			response.Error(c, appErrors.ErrMFARequired)
			return
		}
		if err := h.totp.Verify(requestContext(c), user.ID, req.MFACode); err != nil {
			h.auditLogin(c, &user.ID, user.Username, "denied")
			response.Error(c, appErrors.ErrMFAInvalid)
			return
		}
	}

	session, secret, err := h.sessions.Create(requestContext(c), iauth.CreateSessionInput{
		UserID:    user.ID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.setSessionCookie(c, secret, h.cookieMaxAge)
	h.auditLogin(c, &user.ID, user.Username, "success")

	response.Success(c, http.StatusOK, gin.H{
		"session_id": session.ID,
		"expires_at": session.ExpiresAt,
		"user":       userPayload(user),
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok || principal.Session == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Revoke(requestContext(c), principal.Session.ID, principal.UserID); err != nil &&
		!errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.setSessionCookie(c, "", -1)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok || principal.Session == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	removed, err := h.sessions.RevokeAll(requestContext(c), principal.UserID, principal.Session.ID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": removed})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).Take(&user, "id = ?", userID).Error; err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, userPayload(&user))
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, value, maxAge, "/", "", h.cookieSecure, true)
}

func (h *AuthHandler) auditLogin(c *gin.Context, userID *string, username, result string) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Log(requestContext(c), services.AuditEntry{
		UserID:    userID,
		Username:  username,
		Action:    "auth.login",
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"is_admin":     user.IsAdmin,
		"is_active":    user.IsActive,
		"mfa_enabled":  user.MFAEnabled,
	}
}
