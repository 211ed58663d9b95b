package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // registers the "sqlite3://" URL scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator wraps golang-migrate, applying the embedded schema to a sqlite
// database. Grounded on the teacher's pkg/api/db/migrator/migrate.go.
type migrator struct {
	logger log.Logger
	m      *migrate.Migrate
}

func newMigrator(dbPath string, logger log.Logger) (*migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("constructing migrator: %w", err)
	}

	return &migrator{logger: logger, m: m}, nil
}

// up applies every pending migration. ErrNoChange is not an error — it
// means the schema was already current.
func (mg *migrator) up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	level.Info(mg.logger).Log("msg", "schema migrations applied")

	return nil
}
