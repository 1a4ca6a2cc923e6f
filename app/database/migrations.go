package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the newest embedded migration.
const SchemaVersion = 2

//go:embed migrations/*.sql
var migrationFS embed.FS

type MigrationStatus struct {
	Version  uint
	Previous uint
	Applied  bool
}

// Migrate brings the schema up to the latest embedded version. A dirty schema
// (a previous migration failed halfway) is reported as unavailable.
func Migrate(db *DB) (MigrationStatus, error) {
	var status MigrationStatus

	m, err := newMigrator(db)
	if err != nil {
		return status, err
	}

	previous, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return status, wrap("read schema version", err)
	case dirty:
		return status, &StoreError{Kind: ErrKindUnavailable, Op: "migrate", Cause: fmt.Errorf("schema version %d is dirty", previous)}
	}
	status.Previous = previous

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return status, wrap("migrate", err)
	}

	// Closing m would close db as well.
	status.Version, _, err = m.Version()
	if err != nil {
		return status, wrap("read schema version", err)
	}
	status.Applied = status.Version != status.Previous

	if status.Applied {
		slog.Info("Applied database migrations", "from", status.Previous, "to", status.Version)
	}

	return status, nil
}

// CheckSchema verifies, read-only, that another process has already migrated
// the database to at least SchemaVersion.
func CheckSchema(ctx context.Context, db *DB) error {
	var version int64
	var dirty bool

	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return &StoreError{Kind: ErrKindUnavailable, Op: "check schema", Cause: fmt.Errorf("schema not initialized: %w", err)}
	}

	if dirty || version < SchemaVersion {
		return &StoreError{
			Kind:  ErrKindUnavailable,
			Op:    "check schema",
			Cause: fmt.Errorf("schema at version %d (dirty=%t), need %d", version, dirty, SchemaVersion),
		}
	}

	return nil
}

func newMigrator(db *DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}
