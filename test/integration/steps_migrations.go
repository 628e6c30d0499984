package integration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/doodlesbykumbi/opsagent/db"
)

const migrationsTable = "opsagent_schema_migrations"

// newMigrate opens golang-migrate over the embedded migrations the same way
// opsagentctl db migrate does
func (s *StepsContext) newMigrate() (*migrate.Migrate, error) {
	migrationsFS, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", src, s.tc.DatabaseURL+"&x-migrations-table="+migrationsTable)
}

// theCompanySchemaAlreadyExists leaves the company tables in place but
// forgets every recorded migration
func (s *StepsContext) theCompanySchemaAlreadyExists() error {
	if err := runMigrations(s.tc.RawDB); err != nil {
		return err
	}
	_, err := s.tc.RawDB.Exec(`DROP TABLE IF EXISTS ` + migrationsTable)
	return err
}

func (s *StepsContext) iApplyTheOpsagentMigrations() error {
	m, err := s.newMigrate()
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		s.migrateErr = err
	}
	return nil
}

func (s *StepsContext) theMigrationsShouldSucceed() error {
	if s.migrateErr != nil {
		return fmt.Errorf("expected migrations to succeed, got: %w", s.migrateErr)
	}
	return nil
}

func (s *StepsContext) theOpsagentMigrationsShouldBeAtVersion(expected int) error {
	m, err := s.newMigrate()
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("migrations left the database dirty at version %d", version)
	}
	if version != uint(expected) {
		return fmt.Errorf("expected migration version %d, got %d", expected, version)
	}
	return nil
}
