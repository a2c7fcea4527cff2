package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// RunMigrations brings a postgres database to the embedded bundle and marks the
// schema active. Only the migrate command calls it; serving processes check the
// result with VerifySchema.
func RunMigrations(ctx context.Context, db *sql.DB, log *zap.Logger) (Bundle, error) {
	if db == nil {
		return Bundle{}, errors.New("migration database handle is required")
	}
	bundle, err := Embedded()
	if err != nil {
		return Bundle{}, err
	}

	err = withAdvisoryLock(ctx, db, func(ctx context.Context) error {
		migrator, err := newMigrator(db)
		if err != nil {
			return err
		}

		from, err := cleanVersion(migrator)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		to, err := cleanVersion(migrator)
		if err != nil {
			return err
		}
		if to != bundle.Version {
			return fmt.Errorf("schema version mismatch after migrate: got %d want %d", to, bundle.Version)
		}
		log.Info("migrations applied", zap.Uint("from", from), zap.Uint("to", to), zap.Int("files", len(bundle.Files)))

		return recordSchemaState(ctx, db, bundle)
	})
	return bundle, err
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

// cleanVersion returns the applied version, 0 on an empty database, and refuses a
// dirty state left by an interrupted run.
func cleanVersion(migrator *migrate.Migrate) (uint, error) {
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
