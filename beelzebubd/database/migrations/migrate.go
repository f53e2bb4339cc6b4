// Package migrations applies the embedded schema migrations.
package migrations

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"golang.org/x/xerrors"
)

//go:embed *.sql
var migrations embed.FS

// Up brings the database schema up to date. The connection is owned by the
// caller and stays open.
func Up(db *sql.DB) error {
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return xerrors.Errorf("create iofs source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return xerrors.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return xerrors.Errorf("create migrate instance: %w", err)
	}
	err = m.Up()
	if err != nil && !xerrors.Is(err, migrate.ErrNoChange) {
		return xerrors.Errorf("migrate up: %w", err)
	}
	return nil
}
