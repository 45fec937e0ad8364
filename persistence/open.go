// Package persistence opens and migrates the bun database backing the auth
// repositories. SQLite and Postgres are supported.
package persistence

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Driver names a supported database backend
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ResolveDSN picks the driver for a DSN and returns the DSN in the form the
// driver expects. postgres:// and postgresql:// select Postgres, a sqlite:
// prefix is stripped and anything else is handed to SQLite as is.
func ResolveDSN(dsn string) (Driver, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", errors.New("database dsn is required", errors.CategoryBadInput).
			WithTextCode("DSN_REQUIRED")
	}

	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DriverSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite:"):
		return DriverSQLite, dsn[len("sqlite:"):], nil
	default:
		return DriverSQLite, dsn, nil
	}
}

// Open connects to the database named by dsn and checks it is reachable
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	driver, source, err := ResolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	var db *bun.DB
	switch driver {
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", source)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, source)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to open sqlite")
		}
		// sqlite serializes writers, a single connection also keeps
		// in-memory databases alive across queries
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to reach database")
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to configure sqlite")
		}
	}

	return db, nil
}
