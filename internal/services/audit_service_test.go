package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/database/testutil"
)

func TestAuditLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()

	require.Error(t, svc.Log(ctx, AuditEntry{}), "action is mandatory")

	earlier := time.Now().Add(-time.Minute)
	svc.now = func() time.Time { return earlier }
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action:   "apikey.create",
		Resource: "api_key:abc",
		Metadata: map[string]any{"scopes": []string{"read:events"}},
	}))

	svc.now = time.Now
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action:   "token.reuse",
		Resource: "refresh_token:family-1",
		Result:   "denied",
	}))

	entries, err := svc.List(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "token.reuse", entries[0].Action)
	require.Equal(t, "denied", entries[0].Result)
	require.Equal(t, "success", entries[1].Result)
	require.Contains(t, entries[1].Metadata, "read:events")

	filtered, err := svc.List(ctx, AuditFilter{Action: "apikey.create"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestAuditPurge(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	svc.now = func() time.Time { return past }
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "auth.login"}))

	svc.now = time.Now
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "auth.login"}))

	removed, err := svc.Purge(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	entries, err := svc.List(context.Background(), AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
