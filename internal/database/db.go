// Package database provides the relational store shared by labnet modules.
//
// The store holds:
//   - Allocated networks and IP reservations (netreserve / ipreserve)
//   - DNS authority servers, delegations and forwarders (dns)
//
// SQLite (modernc.org/sqlite, pure Go) is the default backend; Postgres is
// supported through lib/pq. Queries are written with "?" placeholders and
// rebound for Postgres. Each module owns a migration set applied by Migrate
// from its Check hook.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a database connection with thread-safe operations.
type DB struct {
	conn   *sql.DB
	driver string
	mu     sync.RWMutex // Serializes writes against reads
}

// Open opens or creates the store. For sqlite, dsn is a file path whose
// parent directory is created if needed.
func Open(driver, dsn string) (*DB, error) {
	var source string
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL for concurrent readers while a writer holds the lock
		source = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dsn)
	case DriverPostgres:
		source = dsn
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{conn: conn, driver: driver}, nil
}

// Wrap adopts an existing connection. Used with sqlmock in tests.
func Wrap(conn *sql.DB, driver string) *DB {
	return &DB{conn: conn, driver: driver}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name ("sqlite" or "postgres").
func (db *DB) Driver() string {
	return db.driver
}

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rebind rewrites "?" placeholders as "$n" for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// deleteOne runs a DELETE and maps zero affected rows to ErrNotFound.
func (db *DB) deleteOne(ctx context.Context, what, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// insertID runs an INSERT ... RETURNING id.
func (db *DB) insertID(ctx context.Context, what, query string, args ...any) (int64, error) {
	var id int64
	if err := db.conn.QueryRowContext(ctx, db.rebind(query), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", what, err)
	}
	return id, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps other errors.
func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to query %s: %w", what, err)
}
