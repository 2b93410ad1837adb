package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
)

// Migrator applies the SQL files under a migrations directory to the
// connection's database.
type Migrator struct {
	conn   *Connection
	source string
	logger logging.Logger
}

// NewMigrator builds a migrator for dir; relative paths are resolved against
// the working directory.
func NewMigrator(conn *Connection, dir string, log logging.Logger) (*Migrator, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Migrator{conn: conn, source: "file://" + filepath.ToSlash(abs), logger: log.Named("migrate")}, nil
}

// open binds a migrate instance to one pooled connection, so closing the
// instance returns that connection and leaves the pool open.
func (m *Migrator) open() (*migrate.Migrate, error) {
	ctx := context.Background()
	conn, err := m.conn.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	mg, err := migrate.NewWithDatabaseInstance(m.source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mg, nil
}

// Up applies every pending migration. No pending migration is not an error.
func (m *Migrator) Up() error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, _, _ := mg.Version()
		return fmt.Errorf("failed to run migrations (current version %d): %w", version, err)
	}
	version, dirty, _ := mg.Version()
	m.logger.Info("migrations applied", logging.Int64("version", int64(version)), logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := mg.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to roll back %d step(s): %w", steps, err)
	}
	return nil
}

// Version reports the applied version; 0 when nothing was applied.
func (m *Migrator) Version() (uint, bool, error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force marks version as applied without running anything, to recover from
// a dirty state.
func (m *Migrator) Force(version int) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := mg.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}
