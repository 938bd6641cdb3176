package api

import (
	"github.com/gin-gonic/gin"

	"github.com/argushq/argus/internal/handlers"
)

// registerSessionRoutes mounts self-service session management.
func registerSessionRoutes(api *gin.RouterGroup, svc Services) {
	sessionHandler := handlers.NewSessionHandler(svc.Sessions)

	sessions := api.Group("/sessions")
	{
		sessions.GET("", sessionHandler.List)
		sessions.DELETE("/:id", sessionHandler.Revoke)
		sessions.POST("/revoke-others", sessionHandler.RevokeOthers)
	}
}

// registerMFARoutes mounts TOTP enrollment for the current user.
func registerMFARoutes(api *gin.RouterGroup, svc Services) {
	mfaHandler := handlers.NewMFAHandler(svc.TOTP)

	mfaGroup := api.Group("/auth/mfa")
	{
		mfaGroup.POST("/enroll", mfaHandler.Enroll)
		mfaGroup.POST("/activate", mfaHandler.Activate)
		mfaGroup.DELETE("", mfaHandler.Disable)
	}
}
