package sqlitedb

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if nil != err {
		return nil, wrapError(err, "failed creating migration source")
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if nil != err {
		return nil, wrapError(err, "failed creating migration db driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if nil != err {
		return nil, wrapError(err, "failed creating migrator")
	}

	return m, nil
}

// Migrate applies the pending schema migrations.
// Already applied migrations are skipped.
func Migrate(db *sql.DB) error {
	m, err := newMigrate(db)
	if nil != err {
		return err
	}
	err = m.Up()
	if nil != err && !errors.Is(err, migrate.ErrNoChange) {
		return wrapError(err, "failed running migrations")
	}

	return nil
}

// Rebuild reverts every migration, dropping all data, then applies them again.
func Rebuild(db *sql.DB) error {
	m, err := newMigrate(db)
	if nil != err {
		return err
	}
	err = m.Down()
	if nil != err && !errors.Is(err, migrate.ErrNoChange) {
		return wrapError(err, "failed reverting migrations")
	}
	err = m.Up()
	if nil != err && !errors.Is(err, migrate.ErrNoChange) {
		return wrapError(err, "failed running migrations")
	}

	return nil
}
