package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	testutil "github.com/argushq/argus/internal/database/testutil"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/services"
	"github.com/argushq/argus/pkg/crypto"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	clock := fixedClock{current: time.Date(2026, 4, 18, 9, 0, 0, 0, time.UTC)}

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "cleanup-secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, iauth.SessionConfig{
		SessionTTL: time.Hour,
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	tokenSvc, err := iauth.NewTokenService(db, jwtSvc, auditSvc, iauth.TokenConfig{
		Clock: clock.Now,
	})
	require.NoError(t, err)

	user := seedUser(t, db, "cleanup-user")

	expiredSession, _, err := sessionSvc.Create(context.Background(), iauth.CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)

	activeSession, _, err := sessionSvc.Create(context.Background(), iauth.CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	// A refresh token revoked and expired long past the retention window,
	// plus a live one that must survive the sweep.
	_, retired, err := tokenSvc.CreatePair(context.Background(), user.ID, "old-phone")
	require.NoError(t, err)
	longAgo := clock.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("id = ?", retired.ID).
		Updates(map[string]any{
			"expires_at":     longAgo,
			"revoked_at":     longAgo,
			"revoked_reason": models.RevokeReasonLogout,
		}).Error)

	_, live, err := tokenSvc.CreatePair(context.Background(), user.ID, "new-phone")
	require.NoError(t, err)

	// Audit entry older than the retention window.
	require.NoError(t, auditSvc.Log(context.Background(), services.AuditEntry{
		Action:   "test.action",
		Username: "tester",
	}))
	var auditLog models.AuditLog
	require.NoError(t, db.First(&auditLog).Error)
	require.NoError(t, db.Model(&auditLog).Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "stale",
		Value:     []byte("x"),
		ExpiresAt: clock.Now().Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "fresh",
		Value:     []byte("y"),
		ExpiresAt: clock.Now().Add(time.Hour),
	}).Error)

	c := NewCleaner(db, sessionSvc, tokenSvc, auditSvc,
		WithNow(clock.Now),
		WithAuditRetention(7*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var s models.Session
	require.ErrorIs(t, db.First(&s, "id = ?", expiredSession.ID).Error, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&s, "id = ?", activeSession.ID).Error)

	var rt models.RefreshToken
	require.ErrorIs(t, db.First(&rt, "id = ?", retired.ID).Error, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&rt, "id = ?", live.ID).Error)

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.Equal(t, int64(0), auditCount)

	var entry models.CacheEntry
	require.ErrorIs(t, db.First(&entry, "key = ?", "stale").Error, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&entry, "key = ?", "fresh").Error)
}

func TestCleanerSkipsUnwiredJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "stale",
		Value:     []byte("x"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}).Error)

	c := NewCleaner(db, nil, nil, nil,
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := crypto.HashSecret("Password123!")
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
