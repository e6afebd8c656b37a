package database

import (
	"database/sql"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	"github.com/civicrewards/rewards-api/internal/pkg/errs"
	"github.com/civicrewards/rewards-api/migrations"
)

// Migrate applies the embedded ledger schema. Already-applied migrations are a no-op.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errs.New("migration database handle is required")
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errs.Wrap(err, "create migration source")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return errs.Wrap(err, "create migration driver")
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errs.Wrap(err, "create migrator")
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errs.Wrap(err, "apply migrations")
	}

	version, dirty, _ := migrator.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Database migrations applied")
	return nil
}
