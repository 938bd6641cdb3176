package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/argushq/argus/internal/auth"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// SessionHandler lets a user inspect and revoke their own sessions.
type SessionHandler struct {
	sessions *iauth.SessionService
}

func NewSessionHandler(sessions *iauth.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.sessions.List(requestContext(c), userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, sessions)
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Revoke(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	err := h.sessions.Revoke(requestContext(c), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/sessions/revoke-others
//
// Revokes every session of the current user except the one backing this
// request, so a bearer-token caller clears all of them.
func (h *SessionHandler) RevokeOthers(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok || principal.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var exceptID string
	if principal.Session != nil {
		exceptID = principal.Session.ID
	}

	revoked, err := h.sessions.RevokeAll(requestContext(c), principal.UserID, exceptID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}
