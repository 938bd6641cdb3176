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

// DefaultKeyRateLimit is the per-minute budget applied when issuance does not
// specify one.
const DefaultKeyRateLimit = 60

// APIKeyConfig describes tunable behaviour for the APIKeyService.
type APIKeyConfig struct {
	Clock func() time.Time
}

// GenerateKeyInput captures the parameters for issuing a new API key.
type GenerateKeyInput struct {
	Name               string
	Scopes             []string
	ExpiresAt          *time.Time
	RateLimitPerMinute int
	CreatedBy          string
}

// APIKeyService issues, verifies, and revokes programmatic API keys.
type APIKeyService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger
}

// NewAPIKeyService constructs an API key manager backed by the provided database.
func NewAPIKeyService(db *gorm.DB, cfg APIKeyConfig) (*APIKeyService, error) {
	if db == nil {
		return nil, errors.New("apikey service: db is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &APIKeyService{
		db:  db,
		now: clock,
		log: logger.WithModule("apikey"),
	}, nil
}

// Generate issues a new key and returns the record together with the
// plaintext secret. The plaintext is returned exactly once; only the prefix
// and the bcrypt hash are persisted.
func (s *APIKeyService) Generate(ctx context.Context, input GenerateKeyInput) (*models.APIKey, string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", errors.New("apikey service: name is required")
	}
	if len(input.Scopes) == 0 {
		return nil, "", errors.New("apikey service: at least one scope is required")
	}
	for _, scope := range input.Scopes {
		if !scopeKnown(scope) {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
		}
	}

	plaintext, prefix, err := crypto.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("apikey service: generate secret: %w", err)
	}

	secretHash, err := crypto.HashSecret(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("apikey service: hash secret: %w", err)
	}

	rateLimit := input.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = DefaultKeyRateLimit
	}

	key := &models.APIKey{
		Name:               name,
		Prefix:             prefix,
		SecretHash:         secretHash,
		Scopes:             append([]string(nil), input.Scopes...),
		Status:             models.APIKeyStatusActive,
		ExpiresAt:          input.ExpiresAt,
		RateLimitPerMinute: rateLimit,
		CreatedBy:          input.CreatedBy,
	}

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return nil, "", fmt.Errorf("apikey service: create key: %w", err)
	}

	return key, plaintext, nil
}

// Verify resolves a presented plaintext key to its stored record.
//
// The lookup is two-stage: a cheap shape check plus plaintext-prefix filter
// narrows the candidate set to the handful of keys sharing the first eight
// random characters (typically zero or one), and only those candidates
// pay the bcrypt comparison. This keeps the stored secret irreversible
// without an O(active keys) slow-hash scan per request.
func (s *APIKeyService) Verify(ctx context.Context, plaintext string) (*models.APIKey, error) {
	prefix, err := crypto.SplitAPIKey(plaintext)
	if err != nil {
		metrics.APIKeyVerifications.WithLabelValues("invalid_format").Inc()
		return nil, ErrKeyInvalidFormat
	}

	var candidates []models.APIKey
	err = s.db.WithContext(ctx).
		Where("prefix = ?", prefix).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("apikey service: lookup by prefix: %w", err)
	}

	now := s.now()

	for i := range candidates {
		key := &candidates[i]
		if !crypto.VerifySecret(key.SecretHash, plaintext) {
			continue
		}

		// Hash matched; revocation and expiry checks still apply.
		if key.Revoked() {
			metrics.APIKeyVerifications.WithLabelValues("revoked").Inc()
			return nil, ErrKeyRevoked
		}
		if key.Expired(now) {
			metrics.APIKeyVerifications.WithLabelValues("expired").Inc()
			return nil, ErrKeyExpired
		}

		metrics.APIKeyVerifications.WithLabelValues("success").Inc()
		return key, nil
	}

	metrics.APIKeyVerifications.WithLabelValues("not_found").Inc()
	return nil, ErrKeyNotFound
}

// HasScope reports whether the key grants the requested scope; "admin"
// implies every scope.
func (s *APIKeyService) HasScope(key *models.APIKey, scope string) bool {
	if key == nil {
		return false
	}
	return scopesGrant(key.Scopes, scope)
}

// Revoke soft-revokes a key. Revoking an already-revoked key is a no-op
// success so the operation can be retried safely.
func (s *APIKeyService) Revoke(ctx context.Context, id, revokedBy string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("apikey service: id is required")
	}

	now := s.now()

	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ? AND status = ?", id, models.APIKeyStatusActive).
		Updates(map[string]any{
			"status":     models.APIKeyStatusRevoked,
			"revoked_at": now,
			"revoked_by": revokedBy,
		})
	if result.Error != nil {
		return fmt.Errorf("apikey service: revoke key: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish "already revoked" (idempotent success) from "no such key".
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.APIKey{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return fmt.Errorf("apikey service: revoke key: %w", err)
		}
		if count == 0 {
			return ErrKeyNotFound
		}
	}

	return nil
}

// RecordUsage bumps the key's usage counters. Bookkeeping failures are logged
// and swallowed; a usage-stat write must never fail the request it decorates.
func (s *APIKeyService) RecordUsage(ctx context.Context, key *models.APIKey, ip string) {
	if key == nil {
		return
	}

	now := s.now()
	err := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", key.ID).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
			"last_used_ip": ip,
		}).Error
	if err != nil {
		s.log.Warn("usage recording failed",
			zap.String("key_id", key.ID),
			zap.Error(err),
		)
	}
}

// GetByID fetches a single key record.
func (s *APIKeyService) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).Take(&key, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apikey service: get key: %w", err)
	}
	return &key, nil
}

// List returns all keys ordered by creation time, newest first. Records never
// include plaintext secrets; serialization also omits the hash.
func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("apikey service: list keys: %w", err)
	}
	return keys, nil
}
