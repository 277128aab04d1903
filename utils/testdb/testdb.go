// Package testdb backs config's global database handle with a throwaway SQLite file so model code
// can run its transactions in plain `go test`. SQLite has no row locks and the dialect drops FOR
// UPDATE clauses, so these databases check what a transaction writes or rolls back, not how
// concurrent transactions interleave; the MySQL integration suite covers that.
package testdb

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/retail_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates an empty database, installs the location scope plugin and makes it the handle
// config.GetDB returns until the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "retail.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.Use(config.NewLocationScopePlugin()); err != nil {
		t.Fatalf("install location scope plugin: %v", err)
	}

	previous := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(previous)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
