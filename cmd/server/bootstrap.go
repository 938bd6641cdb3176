package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/argushq/argus/internal/api"
	"github.com/argushq/argus/internal/app"
	"github.com/argushq/argus/internal/app/maintenance"
	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/cache"
	"github.com/argushq/argus/internal/database"
	"github.com/argushq/argus/internal/ratelimit"
	"github.com/argushq/argus/internal/services"
	"github.com/argushq/argus/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    cache.Store
	Sessions *iauth.SessionService
	Tokens   *iauth.TokenService
	APIKeys  *iauth.APIKeyService
	Audit    *services.AuditService
	Limiter  *ratelimit.Limiter
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, caches, credential services, and
// the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Audit, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionService(stack.DB, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.Tokens, err = iauth.NewTokenService(stack.DB, jwtSvc, stack.Audit, cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	stack.APIKeys, err = iauth.NewAPIKeyService(stack.DB, iauth.APIKeyConfig{})
	if err != nil {
		return nil, fmt.Errorf("initialise api key service: %w", err)
	}

	local, err := providers.NewLocalProvider(stack.DB, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	totpSvc, err := mfa.NewTOTPService(stack.DB, cfg.Auth.TOTPServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise totp service: %w", err)
	}

	stack.Limiter = ratelimit.NewLimiter()

	resolver, err := iauth.NewResolver(stack.APIKeys, stack.Sessions, jwtSvc, stack.Limiter)
	if err != nil {
		return nil, fmt.Errorf("initialise auth resolver: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Sessions, stack.Tokens, stack.Audit)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	var loginStore cache.Store = dbStore
	if stack.Redis != nil {
		loginStore = stack.Redis
	}

	stack.Router, err = api.NewRouter(api.Services{
		DB:           stack.DB,
		Resolver:     resolver,
		APIKeys:      stack.APIKeys,
		Sessions:     stack.Sessions,
		Tokens:       stack.Tokens,
		Local:        local,
		TOTP:         totpSvc,
		Audit:        stack.Audit,
		LoginLimiter: ratelimit.NewSharedLimiter(loginStore, ratelimit.DefaultWindow),
		CookieSecure: cfg.Server.CookieSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Limiter != nil {
		s.Limiter.Close()
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConfig()
	dbCfg.Driver = strings.ToLower(strings.TrimSpace(dbCfg.Driver))
	if dbCfg.Driver == "" {
		dbCfg.Driver = "sqlite"
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
