package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/services"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// APIKeyHandler manages issuance and lifecycle of programmatic API keys.
type APIKeyHandler struct {
	apiKeys *iauth.APIKeyService
	audit   *services.AuditService
}

func NewAPIKeyHandler(apiKeys *iauth.APIKeyService, audit *services.AuditService) *APIKeyHandler {
	return &APIKeyHandler{apiKeys: apiKeys, audit: audit}
}

type createKeyRequest struct {
	Name               string     `json:"name" validate:"required,max=128"`
	Scopes             []string   `json:"scopes" validate:"required,min=1"`
	ExpiresAt          *time.Time `json:"expires_at"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
}

// POST /api/keys
//
// The response is the only place the plaintext key ever appears.
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req createKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	key, plaintext, err := h.apiKeys.Generate(requestContext(c), iauth.GenerateKeyInput{
		Name:               req.Name,
		Scopes:             req.Scopes,
		ExpiresAt:          req.ExpiresAt,
		RateLimitPerMinute: req.RateLimitPerMinute,
		CreatedBy:          currentUserID(c),
	})
	if err != nil {
		if errors.Is(err, iauth.ErrUnknownScope) {
			response.Error(c, appErrors.NewBadRequest(err.Error()))
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.auditKey(c, "apikey.create", key.ID, "success")

	response.Success(c, http.StatusCreated, gin.H{
		"key":       plaintext,
		"id":        key.ID,
		"name":      key.Name,
		"prefix":    key.Prefix,
		"scopes":    key.Scopes,
		"expires_at": key.ExpiresAt,
	})
}

// GET /api/keys
func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.apiKeys.List(requestContext(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, keys)
}

// GET /api/keys/:id
func (h *APIKeyHandler) Get(c *gin.Context) {
	key, err := h.apiKeys.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, key)
}

// GET /api/keys/:id/usage
func (h *APIKeyHandler) Usage(c *gin.Context) {
	key, err := h.apiKeys.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":           key.ID,
		"usage_count":  key.UsageCount,
		"last_used_at": key.LastUsedAt,
		"last_used_ip": key.LastUsedIP,
	})
}

// DELETE /api/keys/:id
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	id := c.Param("id")

	err := h.apiKeys.Revoke(requestContext(c), id, currentUserID(c))
	if err != nil {
		if errors.Is(err, iauth.ErrKeyNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.auditKey(c, "apikey.revoke", id, "success")

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

func (h *APIKeyHandler) auditKey(c *gin.Context, action, keyID, result string) {
	if h.audit == nil {
		return
	}

	entry := services.AuditEntry{
		Action:    action,
		Resource:  "api_key:" + keyID,
		Result:    result,
		IPAddress: c.ClientIP(),
	}
	if userID := currentUserID(c); userID != "" {
		entry.UserID = &userID
	}
	_ = h.audit.Log(requestContext(c), entry)
}
