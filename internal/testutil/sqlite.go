// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bakery-storefront-edge/internal/db"
)

// NewSQLiteDB opens a migrated SQLite database file inside t.TempDir().
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	return OpenSQLiteDB(t, filepath.Join(t.TempDir(), "edge.db"))
}

// OpenSQLiteDB opens (or reopens) a migrated SQLite database at path and
// closes it when the test ends.
func OpenSQLiteDB(t *testing.T, path string) *gorm.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}
