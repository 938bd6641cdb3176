package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenSQLiteInMemory(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"users", "api_keys", "refresh_tokens", "sessions", "audit_logs"} {
		require.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "argus",
		Password: "secret",
		Name:     "argus",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Host: "db.internal"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "argus",
		Password: "secret",
		Name:     "argus",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "argus:secret@tcp(127.0.0.1:3306)/argus")
	require.Contains(t, dsn, "parseTime=True")

	custom, err := buildMySQLDSN(Config{DSN: "user@tcp(10.0.0.1)/db"})
	require.NoError(t, err)
	require.Equal(t, "user@tcp(10.0.0.1)/db", custom)
}
