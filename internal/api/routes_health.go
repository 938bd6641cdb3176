package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argushq/argus/internal/handlers"
)

// registerHealthRoutes mounts the public health and metrics endpoints.
func registerHealthRoutes(r *gin.Engine, svc Services) {
	r.GET("/health", handlers.Health(svc.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
