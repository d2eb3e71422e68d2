// Package gasdb holds the PostgreSQL queries behind the business tooling:
// the health report, idempotent migrations, seed data and the lookups the
// LINE bot answers from.
//
// Table and column names follow the existing Prisma schema, so most
// identifiers are quoted camelCase ("GasOrder"."orderDate").
package gasdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrNoDatabase is returned by Open when no connection string is given.
const ErrNoDatabase = sentinel.Error("no database URL configured")

// Pool limits.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
)

// pgUndefinedTable is SQLSTATE undefined_table.
const pgUndefinedTable = "42P01"

// Taipei is the business's local time. Taiwan has no daylight saving time.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects to dsn (a postgres:// URL or key=value string) and pings it.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNoDatabase
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *DB {
	return &DB{db: db, log: slog.Default().With("component", "gasdb")}
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// isUndefinedTable reports whether err says a relation does not exist.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable
}

// dayBounds returns [start, end) of the Taipei calendar day containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.In(Taipei)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Taipei)
	return start, start.AddDate(0, 0, 1)
}

// WeekStart returns midnight of the Monday on or before t, in Taipei time.
func WeekStart(t time.Time) time.Time {
	start, _ := dayBounds(t)
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}
