package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/database"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.False(t, cfg.Server.CookieSecure)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "argus", cfg.Database.Postgres.Database)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "argus-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, 12*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 3, cfg.Auth.Session.MaxSessions)
	require.Equal(t, 48, cfg.Auth.Session.SecretLen)

	require.Equal(t, 360*time.Hour, cfg.Auth.Refresh.TTL)
	require.Equal(t, 45*time.Second, cfg.Auth.Refresh.GraceWindow)
	require.Equal(t, 96*time.Hour, cfg.Auth.Refresh.Retention)
	require.Equal(t, 64, cfg.Auth.Refresh.SecretLen)

	require.Equal(t, 120, cfg.Auth.APIKey.DefaultRateLimit)

	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)

	require.Equal(t, "Argus Test", cfg.Auth.MFA.Issuer)
	require.Equal(t, "mfa-key", cfg.Auth.MFA.EncryptionKey)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.True(t, cfg.Server.CookieSecure)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 24*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 5, cfg.Auth.Session.MaxSessions)
	require.Equal(t, 720*time.Hour, cfg.Auth.Refresh.TTL)
	require.Equal(t, 30*time.Second, cfg.Auth.Refresh.GraceWindow)
	require.Equal(t, 168*time.Hour, cfg.Auth.Refresh.Retention)
	require.Equal(t, 60, cfg.Auth.APIKey.DefaultRateLimit)
	require.Equal(t, 5, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 15*time.Minute, cfg.Auth.Local.LockoutDuration)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Session: SessionSettings{
				TTL:         10 * time.Hour,
				MaxSessions: 4,
				SecretLen:   32,
			},
			Refresh: RefreshSettings{
				TTL:         240 * time.Hour,
				GraceWindow: time.Minute,
				Retention:   48 * time.Hour,
				SecretLen:   40,
			},
			Local: LocalSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
			MFA: MFASettings{
				Issuer:        "Argus",
				EncryptionKey: "key",
			},
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.Auth.JWTServiceConfig())

	require.Equal(t, auth.SessionConfig{
		SessionTTL:  10 * time.Hour,
		MaxSessions: 4,
		SecretLen:   32,
	}, cfg.Auth.SessionServiceConfig())

	require.Equal(t, auth.TokenConfig{
		RefreshTokenTTL: 240 * time.Hour,
		GraceWindow:     time.Minute,
		Retention:       48 * time.Hour,
		RefreshLength:   40,
	}, cfg.Auth.TokenServiceConfig())

	require.Equal(t, providers.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, cfg.Auth.LocalProviderConfig())

	require.Equal(t, mfa.TOTPConfig{
		Issuer:        "Argus",
		EncryptionKey: "key",
	}, cfg.Auth.TOTPServiceConfig())
}

func TestDatabaseConfigAdapter(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "postgres",
		Postgres: DBAuthConfig{
			Host:     "pg.internal",
			Port:     5432,
			Database: "argus",
			Username: "svc",
			Password: "pw",
		},
	}

	require.Equal(t, database.Config{
		Driver:   "postgres",
		Host:     "pg.internal",
		Port:     5432,
		Name:     "argus",
		User:     "svc",
		Password: "pw",
	}, cfg.DatabaseConfig())

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/argus.sqlite"}
	require.Equal(t, database.Config{Driver: "sqlite", Path: "/tmp/argus.sqlite"}, sqlite.DatabaseConfig())
}
