package api

import (
	"github.com/gin-gonic/gin"

	"github.com/argushq/argus/internal/handlers"
)

// registerAuthRoutes mounts the public browser login endpoint.
func registerAuthRoutes(r *gin.Engine, authHandler *handlers.AuthHandler, throttle gin.HandlerFunc) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", throttle, authHandler.Login)
	}
}

// registerTokenRoutes mounts the mobile token flow. Refresh and logout carry
// their credential in the body, so the group is public.
func registerTokenRoutes(r *gin.Engine, svc Services, throttle gin.HandlerFunc) {
	tokenHandler := handlers.NewTokenHandler(svc.Local, svc.Tokens, svc.TOTP)

	tokens := r.Group("/api/auth/mobile")
	{
		tokens.POST("/login", throttle, tokenHandler.Login)
		tokens.POST("/refresh", tokenHandler.Refresh)
		tokens.POST("/logout", tokenHandler.Logout)
	}
}
