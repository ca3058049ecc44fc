package database

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "open migration source")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "create migrator")
	}
	return m, nil
}

// Migrate applies (up) or reverts (down) every embedded migration. Running it on an up to date
// schema is a no-op.
func Migrate(db *sql.DB, direction MigrateDirection) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	default:
		return errors.Errorf("direction must be %q or %q, got %q", MigrateUp, MigrateDown, direction)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.WithField("direction", direction).Info("schema already up to date")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "migrate %s", direction)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return errors.Wrap(verr, "read schema version")
	}
	log.WithFields(log.Fields{
		"direction": direction,
		"version":   version,
		"dirty":     dirty,
	}).Info("migrations applied")

	return nil
}
