package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/database/testutil"
	"github.com/argushq/argus/internal/models"
)

func newTestSessionService(t *testing.T, clock *manualClock, maxSessions int) (*SessionService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	svc, err := NewSessionService(db, SessionConfig{
		MaxSessions: maxSessions,
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return svc, db
}

func TestSessionCreateAndLookup(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	user := createTestUser(t, db, "operator")

	session, secret, err := svc.Create(context.Background(), CreateSessionInput{
		UserID:    user.ID,
		IPAddress: "10.0.0.5",
		UserAgent: "argus-web/1.0",
	})
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	// Only the digest is stored.
	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.NotEqual(t, secret, stored.TokenHash)
	require.Len(t, stored.TokenHash, 64)

	found, err := svc.Lookup(context.Background(), secret)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)
	require.Equal(t, user.ID, found.UserID)

	_, err = svc.Lookup(context.Background(), "bogus-cookie-value")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionLookupDeletesExpired(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	user := createTestUser(t, db, "operator")

	session, secret, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL + time.Minute)

	_, err = svc.Lookup(context.Background(), secret)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The expired row is gone, not just skipped.
	err = db.Take(&models.Session{}, "id = ?", session.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSessionCapEvictsOldest(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 2)
	user := createTestUser(t, db, "operator")

	first, _, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	second, _, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	third, _, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	// Oldest by creation time was evicted; the newer two survive.
	err = db.Take(&models.Session{}, "id = ?", first.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, db.Take(&models.Session{}, "id = ?", second.ID).Error)
	require.NoError(t, db.Take(&models.Session{}, "id = ?", third.ID).Error)

	sessions, err := svc.List(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestSessionCapIsPerUser(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 1)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	_, aliceSecret, err := svc.Create(context.Background(), CreateSessionInput{UserID: alice.ID})
	require.NoError(t, err)

	_, _, err = svc.Create(context.Background(), CreateSessionInput{UserID: bob.ID})
	require.NoError(t, err)

	// Bob's login does not evict Alice's session.
	_, err = svc.Lookup(context.Background(), aliceSecret)
	require.NoError(t, err)
}

func TestSessionTouchDoesNotExtendExpiry(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	user := createTestUser(t, db, "operator")

	session, _, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)
	originalExpiry := session.ExpiresAt

	clock.Advance(time.Hour)
	require.NoError(t, svc.Touch(context.Background(), session.ID))

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.Equal(t, clock.Now().Unix(), stored.LastActiveAt.Unix())
	require.Equal(t, originalExpiry.Unix(), stored.ExpiresAt.Unix())
}

func TestSessionRevokeIsOwnerScoped(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	session, secret, err := svc.Create(context.Background(), CreateSessionInput{UserID: alice.ID})
	require.NoError(t, err)

	// Bob cannot revoke Alice's session even with the right ID.
	err = svc.Revoke(context.Background(), session.ID, bob.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Lookup(context.Background(), secret)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), session.ID, alice.ID))

	_, err = svc.Lookup(context.Background(), secret)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRevokeAllExceptCurrent(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	user := createTestUser(t, db, "operator")

	current, currentSecret, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)
	_, otherSecret, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	removed, err := svc.RevokeAll(context.Background(), user.ID, current.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = svc.Lookup(context.Background(), currentSecret)
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), otherSecret)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCleanupExpired(t *testing.T) {
	clock := newManualClock()
	svc, db := newTestSessionService(t, clock, 5)
	user := createTestUser(t, db, "operator")

	_, _, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, liveSecret, err := svc.Create(context.Background(), CreateSessionInput{UserID: user.ID})
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL - time.Minute)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = svc.Lookup(context.Background(), liveSecret)
	require.NoError(t, err)
}
