// Package sqlstore persists progress in PostgreSQL or SQLite through sqlx.
//
// Timestamps are stored as unix nanoseconds so the improved_at tie-break
// compares exactly in both dialects.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	DefaultSQLitePath = "stageboard.db"
)

type Store struct {
	db *sqlx.DB
}

var _ progress.Store = (*Store)(nil)

// ParseDSN maps a DATABASE_URL style string onto a driver name and a
// driver-specific data source.
//
//	postgres://... or postgresql://...  PostgreSQL
//	host=... dbname=...                  PostgreSQL key/value form
//	sqlite://path, file:path, path       SQLite
//	""                                   SQLite at stageboard.db
func ParseDSN(dsn string) (driver, source string) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return DriverSQLite, sqliteSource(DefaultSQLitePath)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return DriverPostgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return DriverSQLite, sqliteSource(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return DriverSQLite, sqliteSource(dsn)
	}
}

func sqliteSource(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Open connects and pings the database. It does not migrate.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source := ParseDSN(dsn)
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; this also serializes submission transactions.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.db.DriverName()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) postgres() bool {
	return s.db.DriverName() == DriverPostgres
}

// WithinTx runs fn in one database transaction and commits when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progress.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{tx: sqlTx, postgres: s.postgres()}); err != nil {
		return wrap("tx", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, progress.ErrStorage) || errors.Is(err, progress.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, progress.ErrStorage, err)
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
