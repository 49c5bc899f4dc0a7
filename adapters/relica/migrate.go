package relica

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/coregx/streamsink"
)

// NewMigrator returns a golang-migrate instance over the embedded schema for
// driverName. Closing the migrator closes db.
func NewMigrator(db *sql.DB, driverName string) (*migrate.Migrate, error) {
	var (
		target database.Driver
		err    error
	)
	switch driverName {
	case "postgres":
		target, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	case "mysql":
		target, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "sqlite3":
		target, err = migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	default:
		return nil, streamsink.NewError(streamsink.ErrCodeConfiguration,
			fmt.Sprintf("unsupported migration driver %q (use mysql, postgres or sqlite3)", driverName))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", driverName, err)
	}

	source, err := iofs.New(streamsink.MigrationFiles, streamsink.MigrationDir(driverName))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, target)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. It opens and closes its own
// connection so the caller's pool stays usable.
func MigrateUp(driverName, dsn string) error {
	return withMigrator(driverName, dsn, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back steps migrations, or all of them when steps <= 0.
func MigrateDown(driverName, dsn string, steps int) error {
	return withMigrator(driverName, dsn, func(m *migrate.Migrate) error {
		if steps <= 0 {
			return m.Down()
		}
		return m.Steps(-steps)
	})
}

// MigrationVersion reports the applied schema version. A database without
// any applied migration reports version 0.
func MigrationVersion(driverName, dsn string) (version uint, dirty bool, err error) {
	err = withMigrator(driverName, dsn, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

func withMigrator(driverName, dsn string, run func(*migrate.Migrate) error) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m, err := NewMigrator(db, driverName)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
