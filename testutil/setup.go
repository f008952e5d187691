package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdklabs/license-server/cache"
	"github.com/vdklabs/license-server/config"
	dbadapter "github.com/vdklabs/license-server/db"
	"github.com/vdklabs/license-server/model"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// The pool is pinned to one connection so every session sees the same
// :memory: database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err, "SetupTestDB: Open")

	sqlDB, err := db.DB()
	require.NoError(t, err, "SetupTestDB: DB")
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates a LocalCache (no Redis required).
func SetupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{}) // empty RedisAddr → LocalCache
	require.NoError(t, err, "SetupTestCache: New")
	return c
}

// DefaultLicenseConfig returns the policy defaults used across tests.
func DefaultLicenseConfig() config.LicenseConfig {
	return config.LicenseConfig{
		KeyPrefix:      "VDK",
		MinUsernameLen: 3,
		MinPasswordLen: 6,
	}
}
