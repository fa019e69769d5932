package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var ErrUnsupportedDSN = errors.New("unsupported ledger dsn")

// ParseDSN maps a ledger DSN to its dialect and the driver-level DSN.
//
//	sqlite:<path> | sqlite://<path> | file:<path> | :memory:  -> sqlite
//	postgres://... | postgresql://...                          -> postgres
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case dsn == ":memory:":
		return DialectSQLite, ":memory:", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "file:"):
		return DialectSQLite, dsn, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrUnsupportedDSN, err)
		}
		return DialectPostgres, dsn, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, RedactDSN(dsn))
	}
}

// Open connects to the run ledger and migrates its tables.
func Open(dsn string, logg *logger.Logger) (*gorm.DB, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	dialect, driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(driverDSN)
	case DialectPostgres:
		dialector = postgres.Open(driverDSN)
	}

	gormLog := gormLogger.New(
		gormWriter{log: logg.With("component", "gorm")},
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger (%s): %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers and a :memory: database lives on a single connection.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("ledger migration: %w", err)
	}
	logg.Info("Run ledger ready", "dialect", string(dialect), "dsn", RedactDSN(dsn))
	return db, nil
}

type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// RedactDSN drops the userinfo of URL-style DSNs.
func RedactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
