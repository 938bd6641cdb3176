package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/database/testutil"
	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/pkg/crypto"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) (*LocalProvider, *gorm.DB, *manualClock) {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
	db := testutil.MustOpenTestDB(t)

	provider, err := NewLocalProvider(db, LocalConfig{Clock: clock.Now})
	require.NoError(t, err)
	return provider, db, clock
}

func seedUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()

	hash, err := crypto.HashSecret(password)
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

func TestAuthenticateSuccess(t *testing.T) {
	provider, db, clock := newFixture(t)
	user := seedUser(t, db, "alice", "hunter2hunter2")

	got, err := provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "10.0.0.9")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, clock.Now().Unix(), stored.LastLoginAt.Unix())
	require.Equal(t, "10.0.0.9", stored.LastLoginIP)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	provider, db, _ := newFixture(t)
	user := seedUser(t, db, "alice", "hunter2hunter2")

	_, err := provider.Authenticate(context.Background(), "alice", "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.Equal(t, 1, stored.FailedAttempts)
}

func TestAuthenticateUnknownUserSameError(t *testing.T) {
	provider, _, _ := newFixture(t)

	_, err := provider.Authenticate(context.Background(), "nobody", "whatever", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateLockout(t *testing.T) {
	provider, db, clock := newFixture(t)
	seedUser(t, db, "alice", "hunter2hunter2")

	for i := 0; i < DefaultLockoutThreshold; i++ {
		_, err := provider.Authenticate(context.Background(), "alice", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the right password is rejected while locked.
	_, err := provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "")
	require.ErrorIs(t, err, ErrAccountLocked)

	clock.Advance(DefaultLockoutDuration + time.Minute)

	_, err = provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "")
	require.NoError(t, err)
}

func TestAuthenticateSuccessResetsCounter(t *testing.T) {
	provider, db, _ := newFixture(t)
	user := seedUser(t, db, "alice", "hunter2hunter2")

	for i := 0; i < DefaultLockoutThreshold-1; i++ {
		_, err := provider.Authenticate(context.Background(), "alice", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.Zero(t, stored.FailedAttempts)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	provider, db, _ := newFixture(t)
	user := seedUser(t, db, "alice", "hunter2hunter2")
	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, err := provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestSetPassword(t *testing.T) {
	provider, db, _ := newFixture(t)
	user := seedUser(t, db, "alice", "hunter2hunter2")

	require.Error(t, provider.SetPassword(context.Background(), user.ID, "short"))
	require.NoError(t, provider.SetPassword(context.Background(), user.ID, "a-new-passphrase"))

	_, err := provider.Authenticate(context.Background(), "alice", "hunter2hunter2", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = provider.Authenticate(context.Background(), "alice", "a-new-passphrase", "")
	require.NoError(t, err)
}
