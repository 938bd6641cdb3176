package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/models"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// TokenHandler serves the mobile credential flow: password login for a token
// pair, single-use refresh, and logout.
type TokenHandler struct {
	local  *providers.LocalProvider
	tokens *iauth.TokenService
	totp   *mfa.TOTPService
}

func NewTokenHandler(local *providers.LocalProvider, tokens *iauth.TokenService, totp *mfa.TOTPService) *TokenHandler {
	return &TokenHandler{local: local, tokens: tokens, totp: totp}
}

type tokenLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// POST /api/tokens/login
func (h *TokenHandler) Login(c *gin.Context) {
	var req tokenLoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.local.Authenticate(requestContext(c), req.Username, req.Password, c.ClientIP())
	if err != nil {
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
			response.Error(c, appErrors.ErrMFAInvalid)
			return
		}
	}

	pair, _, err := h.tokens.CreatePair(requestContext(c), user.ID, req.DeviceID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(pair.AccessTokenTTL.Seconds()),
	})
}

type tokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	DeviceID     string `json:"device_id"`
}

// POST /api/tokens/refresh
//
// A rotated refresh includes a new refresh_token; a benign replay inside the
// grace window returns only a fresh access token and the client keeps the
// refresh token it already rotated to.
func (h *TokenHandler) Refresh(c *gin.Context) {
	var req tokenRefreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, _, err := h.tokens.Refresh(requestContext(c), req.RefreshToken, req.DeviceID)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenPairResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int(result.AccessTokenTTL.Seconds()),
	})
}

type tokenLogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/tokens/logout
func (h *TokenHandler) Logout(c *gin.Context) {
	var req tokenLogoutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.tokens.Revoke(requestContext(c), req.RefreshToken, models.RevokeReasonLogout); err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
