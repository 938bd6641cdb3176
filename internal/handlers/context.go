package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentPrincipal returns the authenticated principal set by the auth middleware.
func currentPrincipal(c *gin.Context) (*iauth.Principal, bool) {
	return middleware.PrincipalFromContext(c)
}

// currentUserID returns the user behind the request, empty for API key principals.
func currentUserID(c *gin.Context) string {
	principal, ok := currentPrincipal(c)
	if !ok {
		return ""
	}
	return principal.UserID
}
