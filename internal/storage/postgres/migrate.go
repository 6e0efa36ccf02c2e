package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SchemaVersion describes the schema after a migration run.
type SchemaVersion struct {
	Version uint
	Dirty   bool
	// Changed is false when the schema was already where it was asked to be.
	Changed bool
}

// Migrate moves the schema at dsn using the SQL files in dir. steps > 0
// applies that many steps; steps == 0 applies all. down reverses direction.
//
// Postcondition: migrate.ErrNoChange is reported as Changed == false, not as an error.
func Migrate(dsn, dir string, down bool, steps int) (SchemaVersion, error) {
	if steps < 0 {
		return SchemaVersion{}, fmt.Errorf("steps must be >= 0, got %d", steps)
	}
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("opening migrations in %s: %w", dir, err)
	}
	defer m.Close()

	switch {
	case steps > 0 && down:
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case down:
		err = m.Down()
	default:
		err = m.Up()
	}
	changed := !errors.Is(err, migrate.ErrNoChange)
	if err != nil && changed {
		return SchemaVersion{}, fmt.Errorf("migrating: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, fmt.Errorf("reading schema version: %w", err)
	}
	return SchemaVersion{Version: version, Dirty: dirty, Changed: changed}, nil
}
