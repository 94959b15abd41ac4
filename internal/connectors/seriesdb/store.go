// Package seriesdb serves the price and volume series from a SQL table, for
// deployments that chart stored data instead of the built-in fixed series.
package seriesdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"go-avocado-analytics-ui/internal/config"
)

const (
	defaultConnTimeout  = 5 * time.Second
	defaultQueryTimeout = 10 * time.Second
)

// Store reads series points from the avocado_series table:
//
//	region, avocado_type, metric ("price" or "volume"), seq, x, y
//
// Points are returned in seq order.
type Store struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
}

// NewMySQLStore opens the configured MySQL database. The table is expected
// to exist already.
func NewMySQLStore(cfg config.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	connTimeout := cfg.DBConnTimeout
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, "mysql", cfg.DBQueryTimeout), nil
}

// NewSQLiteStore opens (or creates) a SQLite file and makes sure the series
// table exists.
func NewSQLiteStore(path string, queryTimeout time.Duration) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS avocado_series (
  region TEXT NOT NULL,
  avocado_type TEXT NOT NULL,
  metric TEXT NOT NULL,
  seq INTEGER NOT NULL,
  x REAL NOT NULL,
  y REAL NOT NULL,
  PRIMARY KEY (region, avocado_type, metric, seq)
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, "sqlite", queryTimeout), nil
}

// newStore wraps an open pool. A non-positive query timeout falls back to
// the default.
func newStore(db *sql.DB, driver string, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Store{db: db, driver: driver, queryTimeout: queryTimeout}
}

// Name identifies the backing driver, "mysql" or "sqlite".
func (s *Store) Name() string { return s.driver }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
