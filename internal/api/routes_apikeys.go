package api

import (
	"github.com/gin-gonic/gin"

	"github.com/argushq/argus/internal/handlers"
	"github.com/argushq/argus/internal/middleware"
)

// registerAPIKeyRoutes mounts key management, restricted to admins.
func registerAPIKeyRoutes(api *gin.RouterGroup, svc Services) {
	keyHandler := handlers.NewAPIKeyHandler(svc.APIKeys, svc.Audit)
	requireAdmin := middleware.RequireAdmin(svc.DB)

	keys := api.Group("/keys")
	{
		keys.POST("", requireAdmin, keyHandler.Create)
		keys.GET("", requireAdmin, keyHandler.List)
		keys.GET("/:id", requireAdmin, keyHandler.Get)
		keys.GET("/:id/usage", requireAdmin, keyHandler.Usage)
		keys.DELETE("/:id", requireAdmin, keyHandler.Revoke)
	}
}
