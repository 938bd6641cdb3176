package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/handlers"
	"github.com/argushq/argus/internal/middleware"
	"github.com/argushq/argus/internal/ratelimit"
	"github.com/argushq/argus/internal/services"
)

// DefaultLoginAttemptsPerMinute bounds credential guessing per client IP.
const DefaultLoginAttemptsPerMinute = 10

// Services bundles the wired credential services the router mounts.
type Services struct {
	DB       *gorm.DB
	Resolver *iauth.Resolver
	APIKeys  *iauth.APIKeyService
	Sessions *iauth.SessionService
	Tokens   *iauth.TokenService
	Local    *providers.LocalProvider
	TOTP     *mfa.TOTPService
	Audit    *services.AuditService

	// LoginLimiter throttles credential guessing across replicas. Nil
	// disables the throttle (single-process tests).
	LoginLimiter *ratelimit.SharedLimiter

	CookieSecure bool
}

func (s Services) validate() error {
	switch {
	case s.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case s.Resolver == nil:
		return fmt.Errorf("auth resolver must be provided")
	case s.APIKeys == nil:
		return fmt.Errorf("api key service must be provided")
	case s.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case s.Tokens == nil:
		return fmt.Errorf("token service must be provided")
	case s.Local == nil:
		return fmt.Errorf("local provider must be provided")
	case s.TOTP == nil:
		return fmt.Errorf("totp service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(svc Services) (*gin.Engine, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	authHandler := handlers.NewAuthHandler(svc.DB, svc.Local, svc.Sessions, svc.TOTP, svc.Audit, handlers.AuthHandlerConfig{
		CookieSecure: svc.CookieSecure,
	})

	loginThrottle := middleware.LoginThrottle(svc.LoginLimiter, DefaultLoginAttemptsPerMinute)

	registerHealthRoutes(r, svc)
	registerAuthRoutes(r, authHandler, loginThrottle)
	registerTokenRoutes(r, svc, loginThrottle)

	requireAuth := middleware.Authenticate(svc.Resolver)
	api := r.Group("/api")
	api.Use(requireAuth)

	registerSessionRoutes(api, svc)
	registerAPIKeyRoutes(api, svc)
	registerMFARoutes(api, svc)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)
	api.POST("/auth/logout-all", authHandler.LogoutAll)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
