// Package db opens the Postgres connection pool and applies schema
// migrations at startup.
package db

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hkdb/nolas-go/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open connects to Postgres, verifies the connection, and applies min/max
// pool sizing.
func Open(databaseURL string, minPoolSize, maxPoolSize int) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	conn.SetMaxOpenConns(maxPoolSize)
	conn.SetMaxIdleConns(minPoolSize)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return conn, nil
}

// Migrate applies every pending up migration embedded under migrations/.
func Migrate(conn *sqlx.DB, databaseURL string) error {
	log := logging.WithComponent("db")

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("db: load migration source: %w", err)
	}

	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db: postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("db: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("db: apply migrations: %w", err)
	}

	log.Info().Msg("schema migrations up to date")
	return nil
}
