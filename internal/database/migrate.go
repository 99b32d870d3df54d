package database

import (
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migration sets, one per module.
const (
	SetNetreserve = "netreserve"
	SetIPReserve  = "ipreserve"
	SetDNS        = "dns"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the named migration set. Each set tracks its version in its
// own table so modules can be checked and loaded independently.
func (db *DB) Migrate(set string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	src, err := iofs.New(migrationsFS, path.Join("migrations", db.driver, set))
	if err != nil {
		return fmt.Errorf("failed to load migrations for %s: %w", set, err)
	}
	defer src.Close()

	table := "schema_migrations_" + set
	var drv migratedb.Driver
	switch db.driver {
	case DriverSQLite:
		drv, err = sqlite.WithInstance(db.conn, &sqlite.Config{MigrationsTable: table})
	case DriverPostgres:
		drv, err = postgres.WithInstance(db.conn, &postgres.Config{MigrationsTable: table})
	default:
		err = fmt.Errorf("unsupported database driver %q", db.driver)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migrations for %s: %w", set, err)
	}

	// The migrate instance is not closed: closing it closes the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, db.driver, drv)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations for %s: %w", set, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations for %s: %w", set, err)
	}
	return nil
}
