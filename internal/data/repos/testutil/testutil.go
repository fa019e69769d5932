package testutil

import (
	"os"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/lakeflow/internal/data/db"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

// DefaultDSN is a private in-memory SQLite database. Set TEST_LEDGER_DSN to
// run the repo tests against another ledger, such as Postgres.
const DefaultDSN = ":memory:"

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logg, err := logger.New("test")
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return logg
}

// DB opens and migrates a fresh ledger for the calling test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := DefaultDSN
	if v := strings.TrimSpace(os.Getenv("TEST_LEDGER_DSN")); v != "" {
		dsn = v
	}
	gdb, err := db.Open(dsn, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
