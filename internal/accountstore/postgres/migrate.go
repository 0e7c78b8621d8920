// Package postgres runs the account store's schema migrations against a
// Postgres database using golang-migrate, with the SQL embedded via
// internal/accountstore/postgres/migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ircservices/saslbroker/internal/accountstore/postgres/migrations"
)

// RunMigrations applies all pending account-store migrations to the
// Postgres database identified by connString. Advisory locks (managed
// internally by golang-migrate's postgres driver) prevent concurrent
// brokers from racing each other during a rolling deploy.
func RunMigrations(ctx context.Context, connString string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log.Info("running account store migrations")

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("postgres: open connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}

	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "saslbroker",
	})
	if err != nil {
		return fmt.Errorf("postgres: create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("postgres: create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("postgres: read migration version: %w", err)
	}
	log.Info("account store migrations up to date", "version", version, "dirty", dirty)

	return nil
}
