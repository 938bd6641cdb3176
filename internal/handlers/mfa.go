package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argushq/argus/internal/auth/mfa"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// MFAHandler manages TOTP enrollment for the current user.
type MFAHandler struct {
	totp *mfa.TOTPService
}

func NewMFAHandler(totp *mfa.TOTPService) *MFAHandler {
	return &MFAHandler{totp: totp}
}

type enrollRequest struct {
	AccountName string `json:"account_name" validate:"required"`
}

// POST /api/mfa/enroll
func (h *MFAHandler) Enroll(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req enrollRequest
	if !bindAndValidate(c, &req) {
		return
	}

	enrollment, err := h.totp.Enroll(requestContext(c), userID, req.AccountName)
	if err != nil {
		if errors.Is(err, mfa.ErrAlreadyActivated) {
			response.Error(c, appErrors.NewBadRequest("multi-factor authentication is already active"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"secret":  enrollment.Secret,
		"url":     enrollment.URL,
		"qr_png":  base64.StdEncoding.EncodeToString(enrollment.QRPNG),
	})
}

type activateRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// POST /api/mfa/activate
func (h *MFAHandler) Activate(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req activateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.totp.Activate(requestContext(c), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, mfa.ErrInvalidCode):
			response.Error(c, appErrors.ErrMFAInvalid)
		case errors.Is(err, mfa.ErrNotEnrolled):
			response.Error(c, appErrors.NewBadRequest("no pending enrollment"))
		case errors.Is(err, mfa.ErrAlreadyActivated):
			response.Error(c, appErrors.NewBadRequest("multi-factor authentication is already active"))
		default:
			response.Error(c, appErrors.ErrInternalServer)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"activated": true})
}

// DELETE /api/mfa
func (h *MFAHandler) Disable(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.totp.Disable(requestContext(c), userID); err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"disabled": true})
}
