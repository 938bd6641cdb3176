package auth

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
	"github.com/argushq/argus/pkg/metrics"
)

// Session defaults.
const (
	DefaultSessionTTL     = 24 * time.Hour
	DefaultMaxSessions    = 5
	defaultSessionSecrets = 32
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
	SecretLen   int
	Clock       func() time.Time
}

// CreateSessionInput captures the request context recorded with a new session.
type CreateSessionInput struct {
	UserID     string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// SessionService manages cookie-backed interactive sessions: creation under a
// per-user concurrency cap, digest-based lookup with lazy expiry, activity
// touches, and owner-scoped revocation.
type SessionService struct {
	db          *gorm.DB
	ttl         time.Duration
	maxSessions int
	secretLen   int
	now         func() time.Time
	log         *zap.Logger
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	secretLen := cfg.SecretLen
	if secretLen <= 0 {
		secretLen = defaultSessionSecrets
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:          db,
		ttl:         ttl,
		maxSessions: maxSessions,
		secretLen:   secretLen,
		now:         clock,
		log:         logger.WithModule("session"),
	}, nil
}

// Create opens a new session and returns the record plus the plaintext cookie
// value. When the user is already at the concurrency cap, the oldest session
// by creation time is evicted to make room.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*models.Session, string, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, "", errors.New("session service: user id is required")
	}

	secret, err := crypto.GenerateToken(s.secretLen)
	if err != nil {
		return nil, "", fmt.Errorf("session service: generate secret: %w", err)
	}

	now := s.now()

	session := &models.Session{
		UserID:       input.UserID,
		TokenHash:    crypto.DigestToken(secret),
		DeviceInfo:   input.DeviceInfo,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live []models.Session
		err := tx.Where("user_id = ? AND expires_at > ?", input.UserID, now).
			Order("created_at ASC").
			Find(&live).Error
		if err != nil {
			return err
		}

		if excess := len(live) - s.maxSessions + 1; excess > 0 {
			evict := make([]string, 0, excess)
			for _, old := range live[:excess] {
				evict = append(evict, old.ID)
			}
			if err := tx.Delete(&models.Session{}, "id IN ?", evict).Error; err != nil {
				return err
			}
			s.log.Info("session cap reached, evicting oldest",
				zap.String("user_id", input.UserID),
				zap.Int("evicted", len(evict)),
			)
		}

		return tx.Create(session).Error
	})
	if err != nil {
		return nil, "", fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	return session, secret, nil
}

// Lookup resolves a presented cookie value to its live session. Expired rows
// are deleted on read rather than waiting for the sweeper.
func (s *SessionService) Lookup(ctx context.Context, secret string) (*models.Session, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	err := s.db.WithContext(ctx).
		Take(&session, "token_hash = ?", crypto.DigestToken(secret)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: lookup: %w", err)
	}

	if session.Expired(s.now()) {
		if err := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", session.ID).Error; err != nil {
			s.log.Warn("expired session delete failed", zap.Error(err))
		} else {
			metrics.ActiveSessions.Dec()
		}
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// Touch records activity on a session. The absolute expiry never moves; only
// LastActiveAt advances.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("last_active_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("session service: touch: %w", err)
	}
	return nil
}

// Revoke deletes a session by ID, scoped to its owner so one user cannot
// revoke another's session by guessing IDs.
func (s *SessionService) Revoke(ctx context.Context, sessionID, ownerUserID string) error {
	result := s.db.WithContext(ctx).
		Delete(&models.Session{}, "id = ? AND user_id = ?", sessionID, ownerUserID)
	if result.Error != nil {
		return fmt.Errorf("session service: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	metrics.ActiveSessions.Dec()
	return nil
}

// RevokeAll deletes every session for a user, optionally sparing one (the
// caller's own, for a "log out everywhere else" action).
func (s *SessionService) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int64, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if exceptSessionID != "" {
		query = query.Where("id <> ?", exceptSessionID)
	}

	result := query.Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke all: %w", result.Error)
	}

	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

// List returns a user's live sessions, newest first.
func (s *SessionService) List(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, s.now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list: %w", err)
	}
	return sessions, nil
}

// CleanupExpired sweeps sessions whose absolute lifetime has passed.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
