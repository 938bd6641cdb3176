// Package providers implements first-factor authentication against the
// user store.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/pkg/crypto"
	"github.com/argushq/argus/pkg/logger"
)

// Lockout defaults.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

var (
	// ErrInvalidCredentials covers unknown usernames and wrong passwords
	// uniformly, so the response does not reveal which one failed.
	ErrInvalidCredentials = errors.New("local: invalid credentials")
	// ErrAccountLocked is returned while a lockout is in effect.
	ErrAccountLocked = errors.New("local: account locked")
	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("local: account disabled")
)

// LocalConfig describes tunable lockout behaviour.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// LocalProvider verifies username/password credentials with a failed-attempt
// lockout.
type LocalProvider struct {
	db        *gorm.DB
	threshold int
	duration  time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewLocalProvider constructs a password authenticator over the user store.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		threshold: threshold,
		duration:  duration,
		now:       clock,
		log:       logger.WithModule("auth.local"),
	}, nil
}

// Authenticate verifies the password for the named user. A success resets the
// failure counter and records the login; each failure increments it, and
// crossing the threshold locks the account for the configured duration.
func (p *LocalProvider) Authenticate(ctx context.Context, username, password, ip string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := p.db.WithContext(ctx).Take(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: find user: %w", err)
	}

	now := p.now()

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if !crypto.VerifySecret(user.Password, password) {
		if err := p.recordFailure(ctx, &user, now); err != nil {
			p.log.Warn("failure bookkeeping failed", zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}

	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   ip,
	}
	if err := p.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		p.log.Warn("login bookkeeping failed", zap.Error(err))
	}

	return &user, nil
}

func (p *LocalProvider) recordFailure(ctx context.Context, user *models.User, now time.Time) error {
	attempts := user.FailedAttempts + 1

	updates := map[string]any{"failed_attempts": attempts}
	if attempts >= p.threshold {
		until := now.Add(p.duration)
		updates["locked_until"] = until
		updates["failed_attempts"] = 0
		p.log.Warn("account locked after repeated failures",
			zap.String("user_id", user.ID),
			zap.Time("locked_until", until),
		)
	}

	return p.db.WithContext(ctx).Model(user).Updates(updates).Error
}

// SetPassword hashes and stores a new password, clearing any lockout.
func (p *LocalProvider) SetPassword(ctx context.Context, userID, password string) error {
	if len(password) < 8 {
		return errors.New("local provider: password must be at least 8 characters")
	}

	hash, err := crypto.HashSecret(password)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}

	err = p.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password":        hash,
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error
	if err != nil {
		return fmt.Errorf("local provider: set password: %w", err)
	}
	return nil
}
