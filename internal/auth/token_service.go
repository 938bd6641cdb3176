package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/services"
	"github.com/argushq/argus/pkg/crypto"
	"github.com/argushq/argus/pkg/logger"
	"github.com/argushq/argus/pkg/metrics"
)

// Defaults for the rotation protocol.
const (
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultGraceWindow     = 30 * time.Second
	DefaultTokenRetention  = 7 * 24 * time.Hour
	defaultRefreshLength   = 32
)

// TokenConfig describes tunable behaviour for the TokenService.
type TokenConfig struct {
	RefreshTokenTTL time.Duration
	GraceWindow     time.Duration
	Retention       time.Duration
	RefreshLength   int
	Clock           func() time.Time
}

// RefreshOutcome tags the result of a refresh call.
type RefreshOutcome int

const (
	// OutcomeRotated means the presented token was valid: it has been
	// revoked and a successor refresh token issued in the same family.
	OutcomeRotated RefreshOutcome = iota
	// OutcomeReplayed means the presented token was revoked by a rotation
	// moments ago; the caller received a fresh access token but must keep
	// using the refresh token it was already rotated to.
	OutcomeReplayed
)

// RefreshResult carries the tokens produced by a refresh. RefreshToken is
// populated only when Outcome is OutcomeRotated; the tag, not an empty
// string, is the signal.
type RefreshResult struct {
	Outcome        RefreshOutcome
	AccessToken    string
	AccessTokenTTL time.Duration
	RefreshToken   string
}

// TokenPair is returned on login: a signed access token plus the plaintext
// refresh secret that starts a new token family.
type TokenPair struct {
	AccessToken    string
	AccessTokenTTL time.Duration
	RefreshToken   string
}

// TokenService manages mobile refresh-token families: issuance, single-use
// rotation with a bounded grace window, bulk revocation, and retention-aware
// cleanup.
type TokenService struct {
	db         *gorm.DB
	jwt        *JWTService
	audit      *services.AuditService
	refreshTTL time.Duration
	grace      time.Duration
	retention  time.Duration
	tokenLen   int
	now        func() time.Time
	log        *zap.Logger
}

// NewTokenService constructs a rotation service backed by the provided
// database and JWT issuer. The audit service is optional; reuse signals are
// only logged when it is present.
func NewTokenService(db *gorm.DB, jwtService *JWTService, audit *services.AuditService, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("token service: jwt service is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultTokenRetention
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &TokenService{
		db:         db,
		jwt:        jwtService,
		audit:      audit,
		refreshTTL: ttl,
		grace:      grace,
		retention:  retention,
		tokenLen:   length,
		now:        clock,
		log:        logger.WithModule("token"),
	}, nil
}

// CreatePair starts a new token family for a login: a fresh refresh secret
// (stored only as a digest) and a signed access token.
func (s *TokenService) CreatePair(ctx context.Context, userID, deviceID string) (TokenPair, *models.RefreshToken, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, nil, errors.New("token service: user id is required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return TokenPair{}, nil, errors.New("token service: device id is required")
	}

	secret, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: generate refresh secret: %w", err)
	}

	now := s.now()

	token := &models.RefreshToken{
		UserID:      userID,
		DeviceID:    deviceID,
		TokenHash:   crypto.DigestToken(secret),
		TokenFamily: uuid.NewString(),
		ExpiresAt:   now.Add(s.refreshTTL),
	}

	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: create refresh token: %w", err)
	}

	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:   userID,
		DeviceID: deviceID,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("token service: generate access token: %w", err)
	}

	return TokenPair{
		AccessToken:    accessToken,
		AccessTokenTTL: s.jwt.AccessTokenTTL(),
		RefreshToken:   secret,
	}, token, nil
}

// Refresh redeems a presented refresh secret. A valid token is rotated:
// revoked (reason=rotation) and replaced by a successor in the same family.
// A token revoked by rotation within the grace window is treated as a benign
// client retry: the caller gets a fresh access token bound to the family's
// current token but no new refresh secret. Anything else is rejected; reuse
// outside the grace window is additionally recorded as a security signal.
//
// The rotation itself runs in a transaction with a guarded revoke so that two
// concurrent redeems of the same secret produce one rotation; the loser
// reruns the read and lands in the grace path.
func (s *TokenService) Refresh(ctx context.Context, presentedSecret, deviceID string) (RefreshResult, *models.RefreshToken, error) {
	presentedSecret = strings.TrimSpace(presentedSecret)
	if presentedSecret == "" {
		return RefreshResult{}, nil, ErrTokenInvalid
	}

	hash := crypto.DigestToken(presentedSecret)

	for attempt := 0; attempt < 2; attempt++ {
		var token models.RefreshToken
		err := s.db.WithContext(ctx).Take(&token, "token_hash = ?", hash).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.TokenRotations.WithLabelValues("denied").Inc()
			return RefreshResult{}, nil, ErrTokenNotFound
		}
		if err != nil {
			return RefreshResult{}, nil, fmt.Errorf("token service: find token: %w", err)
		}

		now := s.now()

		if token.Revoked() {
			return s.handleRevoked(ctx, &token, deviceID, now)
		}

		if token.Expired(now) {
			metrics.TokenRotations.WithLabelValues("denied").Inc()
			return RefreshResult{}, nil, ErrTokenExpired
		}

		result, successor, rotated, err := s.rotate(ctx, &token, deviceID, now)
		if err != nil {
			return RefreshResult{}, nil, err
		}
		if rotated {
			return result, successor, nil
		}
		// Lost a concurrent rotation race; re-read and take the grace path.
	}

	metrics.TokenRotations.WithLabelValues("denied").Inc()
	return RefreshResult{}, nil, ErrTokenReused
}

// rotate revokes the presented token and issues its successor atomically.
// The guarded update makes the revocation single-winner: rotated=false means
// another request already revoked this token.
func (s *TokenService) rotate(ctx context.Context, token *models.RefreshToken, deviceID string, now time.Time) (RefreshResult, *models.RefreshToken, bool, error) {
	secret, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return RefreshResult{}, nil, false, fmt.Errorf("token service: generate refresh secret: %w", err)
	}

	device := strings.TrimSpace(deviceID)
	if device == "" {
		device = token.DeviceID
	}

	successor := &models.RefreshToken{
		UserID:      token.UserID,
		DeviceID:    device,
		TokenHash:   crypto.DigestToken(secret),
		TokenFamily: token.TokenFamily,
		ExpiresAt:   now.Add(s.refreshTTL),
	}

	rotated := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revoke := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", token.ID).
			Updates(map[string]any{
				"revoked_at":     now,
				"revoked_reason": models.RevokeReasonRotation,
			})
		if revoke.Error != nil {
			return revoke.Error
		}
		if revoke.RowsAffected == 0 {
			return nil
		}

		if err := tx.Create(successor).Error; err != nil {
			return err
		}

		rotated = true
		return nil
	})
	if err != nil {
		return RefreshResult{}, nil, false, fmt.Errorf("token service: rotate: %w", err)
	}
	if !rotated {
		return RefreshResult{}, nil, false, nil
	}

	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:   token.UserID,
		DeviceID: device,
	})
	if err != nil {
		return RefreshResult{}, nil, false, fmt.Errorf("token service: generate access token: %w", err)
	}

	metrics.TokenRotations.WithLabelValues("rotated").Inc()

	return RefreshResult{
		Outcome:        OutcomeRotated,
		AccessToken:    accessToken,
		AccessTokenTTL: s.jwt.AccessTokenTTL(),
		RefreshToken:   secret,
	}, successor, true, nil
}

// handleRevoked decides between the benign-retry grace path and the
// token-reuse rejection.
func (s *TokenService) handleRevoked(ctx context.Context, token *models.RefreshToken, deviceID string, now time.Time) (RefreshResult, *models.RefreshToken, error) {
	withinGrace := token.RevokedReason == models.RevokeReasonRotation &&
		token.RevokedAt != nil &&
		now.Sub(*token.RevokedAt) <= s.grace

	if !withinGrace {
		metrics.TokenRotations.WithLabelValues("denied").Inc()
		if token.RevokedReason == models.RevokeReasonRotation {
			// Reuse after the grace window is a theft signal, not a retry.
			metrics.TokenReuse.Inc()
			s.log.Warn("refresh token reused outside grace window",
				zap.String("user_id", token.UserID),
				zap.String("token_family", token.TokenFamily),
			)
			s.auditReuse(ctx, token, deviceID)
			return RefreshResult{}, nil, ErrTokenReused
		}
		return RefreshResult{}, nil, ErrTokenNotFound
	}

	// Benign race: the client retried a rotation it already won. Bind a new
	// access token to the family's current token, but do not rotate again.
	var current models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token_family = ? AND revoked_at IS NULL AND expires_at > ?", token.TokenFamily, now).
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.TokenRotations.WithLabelValues("denied").Inc()
		return RefreshResult{}, nil, ErrTokenNotFound
	}
	if err != nil {
		return RefreshResult{}, nil, fmt.Errorf("token service: find current token: %w", err)
	}

	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:   current.UserID,
		DeviceID: current.DeviceID,
	})
	if err != nil {
		return RefreshResult{}, nil, fmt.Errorf("token service: generate access token: %w", err)
	}

	metrics.TokenRotations.WithLabelValues("replayed").Inc()

	return RefreshResult{
		Outcome:        OutcomeReplayed,
		AccessToken:    accessToken,
		AccessTokenTTL: s.jwt.AccessTokenTTL(),
	}, &current, nil
}

// Revoke invalidates a single token by its plaintext secret. Already-invalid
// tokens are a no-op success.
func (s *TokenService) Revoke(ctx context.Context, presentedSecret, reason string) error {
	presentedSecret = strings.TrimSpace(presentedSecret)
	if presentedSecret == "" {
		return ErrTokenInvalid
	}
	if reason == "" {
		reason = models.RevokeReasonLogout
	}

	err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", crypto.DigestToken(presentedSecret)).
		Updates(map[string]any{
			"revoked_at":     s.now(),
			"revoked_reason": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("token service: revoke token: %w", err)
	}
	return nil
}

// RevokeDevice invalidates every live token for one of a user's devices,
// e.g. when the device is removed from the account.
func (s *TokenService) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND device_id = ? AND revoked_at IS NULL", userID, deviceID).
		Updates(map[string]any{
			"revoked_at":     s.now(),
			"revoked_reason": models.RevokeReasonDevice,
		}).Error
	if err != nil {
		return fmt.Errorf("token service: revoke device tokens: %w", err)
	}
	return nil
}

// RevokeUser invalidates every live token across all of a user's families,
// used on credential-wide security events such as a password change.
func (s *TokenService) RevokeUser(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{
			"revoked_at":     s.now(),
			"revoked_reason": models.RevokeReasonSecurity,
		}).Error
	if err != nil {
		return fmt.Errorf("token service: revoke user tokens: %w", err)
	}
	return nil
}

// Cleanup purges tokens that are both expired and revoked longer ago than the
// retention period. Merely-expired rows stay until they are also revoked past
// retention, preserving the forensic trail for reuse investigations.
func (s *TokenService) Cleanup(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()
	cutoff := now.Add(-s.retention)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? AND revoked_at IS NOT NULL AND revoked_at < ?", now, cutoff).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: cleanup: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *TokenService) auditReuse(ctx context.Context, token *models.RefreshToken, deviceID string) {
	if s.audit == nil {
		return
	}

	userID := token.UserID
	err := s.audit.Log(ctx, services.AuditEntry{
		UserID:   &userID,
		Action:   "token.reuse",
		Resource: "refresh_token:" + token.TokenFamily,
		Result:   "denied",
		Metadata: map[string]any{
			"device_id": deviceID,
			"family":    token.TokenFamily,
		},
	})
	if err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}
