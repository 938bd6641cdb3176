package mfa

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/database/testutil"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/pkg/crypto"
)

func newFixture(t *testing.T) (*TOTPService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	svc, err := NewTOTPService(db, TOTPConfig{
		Issuer:        "Argus Test",
		EncryptionKey: "unit-test-encryption-key",
	})
	require.NoError(t, err)
	return svc, db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := crypto.HashSecret("correct horse battery staple")
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

func TestEnrollStoresEncryptedSeed(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	enrollment, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.NotEmpty(t, enrollment.QRPNG)

	var stored models.MFASecret
	require.NoError(t, db.Take(&stored, "user_id = ?", user.ID).Error)
	require.False(t, stored.Activated)
	require.NotEqual(t, enrollment.Secret, stored.Secret)
	require.False(t, strings.Contains(stored.Secret, enrollment.Secret))
}

func TestActivateAndVerify(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	enrollment, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)

	// Verification is refused until activation.
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, svc.Verify(context.Background(), user.ID, code), ErrNotEnrolled)

	require.ErrorIs(t, svc.Activate(context.Background(), user.ID, "000000"), ErrInvalidCode)
	require.NoError(t, svc.Activate(context.Background(), user.ID, code))

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.MFAEnabled)

	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Verify(context.Background(), user.ID, code))
	require.ErrorIs(t, svc.Verify(context.Background(), user.ID, "123456"), ErrInvalidCode)
}

func TestEnrollTwiceBeforeActivationReplacesSeed(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	first, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	var count int64
	require.NoError(t, db.Model(&models.MFASecret{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEnrollAfterActivationRejected(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	enrollment, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Activate(context.Background(), user.ID, code))

	_, err = svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.ErrorIs(t, err, ErrAlreadyActivated)
}

func TestDisable(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	enrollment, err := svc.Enroll(context.Background(), user.ID, "alice@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Activate(context.Background(), user.ID, code))

	require.NoError(t, svc.Disable(context.Background(), user.ID))

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.False(t, stored.MFAEnabled)

	require.ErrorIs(t, svc.Verify(context.Background(), user.ID, code), ErrNotEnrolled)
}

func TestVerifyWithoutEnrollment(t *testing.T) {
	svc, db := newFixture(t)
	user := seedUser(t, db, "alice")

	require.ErrorIs(t, svc.Verify(context.Background(), user.ID, "123456"), ErrNotEnrolled)
}
