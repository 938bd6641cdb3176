package app

import (
	"github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/auth/mfa"
	"github.com/argushq/argus/internal/auth/providers"
	"github.com/argushq/argus/internal/database"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	return auth.SessionConfig{
		SessionTTL:  c.Session.TTL,
		MaxSessions: c.Session.MaxSessions,
		SecretLen:   c.Session.SecretLen,
	}
}

// TokenServiceConfig converts AuthConfig into TokenService parameters.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	return auth.TokenConfig{
		RefreshTokenTTL: c.Refresh.TTL,
		GraceWindow:     c.Refresh.GraceWindow,
		Retention:       c.Refresh.Retention,
		RefreshLength:   c.Refresh.SecretLen,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	return providers.LocalConfig{
		LockoutThreshold: c.Local.LockoutThreshold,
		LockoutDuration:  c.Local.LockoutDuration,
	}
}

// TOTPServiceConfig converts AuthConfig into TOTP service parameters.
func (c AuthConfig) TOTPServiceConfig() mfa.TOTPConfig {
	return mfa.TOTPConfig{
		Issuer:        c.MFA.Issuer,
		EncryptionKey: c.MFA.EncryptionKey,
	}
}

// DatabaseConfig converts the configuration tree into connection parameters.
func (c DatabaseConfig) DatabaseConfig() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch c.Driver {
	case "postgres":
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case "mysql":
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}
