// Package maintenance schedules the background sweeps that keep credential
// tables bounded: expired sessions, rotated-out refresh tokens past their
// retention, stale cache entries, and old audit rows.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/services"
	"github.com/argushq/argus/pkg/logger"
)

const (
	defaultAuditRetention = 90 * 24 * time.Hour
	defaultSessionSpec    = "@hourly"
	defaultTokenSpec      = "@daily"
	defaultAuditSpec      = "@daily"
	defaultCacheSpec      = "@hourly"
)

// Cleaner coordinates background maintenance tasks. Any nil dependency
// results in the corresponding job being skipped.
type Cleaner struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	tokens   *iauth.TokenService
	audit    *services.AuditService
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger

	auditRetention  time.Duration
	sessionSchedule string
	tokenSchedule   string
	auditSchedule   string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetention adjusts how long audit logs are retained.
func WithAuditRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.auditRetention = retention
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for refresh token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, tokens *iauth.TokenService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		sessions:        sessions,
		tokens:          tokens,
		audit:           audit,
		now:             time.Now,
		auditRetention:  defaultAuditRetention,
		sessionSchedule: defaultSessionSpec,
		tokenSchedule:   defaultTokenSpec,
		auditSchedule:   defaultAuditSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	type job struct {
		spec    string
		enabled bool
		run     func(context.Context) error
		name    string
	}

	jobs := []job{
		{c.sessionSchedule, c.sessions != nil, c.cleanSessions, "sessions"},
		{c.tokenSchedule, c.tokens != nil, c.cleanTokens, "tokens"},
		{c.auditSchedule, c.audit != nil && c.auditRetention > 0, c.cleanAudit, "audit"},
		{c.cacheSchedule, c.db != nil, c.cleanCache, "cache"},
	}

	scheduled := false
	for _, j := range jobs {
		if !j.enabled {
			continue
		}
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			if err := j.run(context.Background()); err != nil {
				c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
		scheduled = true
	}

	if scheduled {
		c.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		errs = multierr.Append(errs, c.cleanSessions(ctx))
	}
	if c.tokens != nil {
		errs = multierr.Append(errs, c.cleanTokens(ctx))
	}
	if c.audit != nil && c.auditRetention > 0 {
		errs = multierr.Append(errs, c.cleanAudit(ctx))
	}
	if c.db != nil {
		errs = multierr.Append(errs, c.cleanCache(ctx))
	}

	return errs
}

func (c *Cleaner) cleanSessions(ctx context.Context) error {
	removed, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("expired sessions removed", zap.Int64("count", removed))
	}
	return nil
}

func (c *Cleaner) cleanTokens(ctx context.Context) error {
	removed, err := c.tokens.Cleanup(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("retired refresh tokens purged", zap.Int64("count", removed))
	}
	return nil
}

func (c *Cleaner) cleanAudit(ctx context.Context) error {
	removed, err := c.audit.Purge(ctx, c.auditRetention)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("stale audit entries purged", zap.Int64("count", removed))
	}
	return nil
}

func (c *Cleaner) cleanCache(ctx context.Context) error {
	result := c.db.WithContext(ctx).
		Where("expires_at < ?", c.now()).
		Delete(&models.CacheEntry{})
	return result.Error
}
