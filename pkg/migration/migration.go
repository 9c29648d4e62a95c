package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

type Config struct {
	// Source holds the *.up.sql / *.down.sql files at its root.
	Source      fs.FS
	DatabaseURL string
	Logger      *slog.Logger
}

type Runner struct {
	config Config
	logger *slog.Logger
}

func NewRunner(config Config) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		config: config,
		logger: logger.With(slog.String("component", "migration")),
	}
}

// Up runs all pending migrations.
func (r *Runner) Up() error {
	r.logger.Info("running database migrations")

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("no new migrations to run")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Info("migrations completed")
	return nil
}

// Down rolls back the last migration.
func (r *Runner) Down() error {
	r.logger.Info("rolling back last migration")

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	r.logger.Info("migration rolled back")
	return nil
}

// Force sets the version without running anything. It clears the dirty flag.
func (r *Runner) Force(version int) error {
	r.logger.Warn("forcing migration version", slog.Int("version", version))

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version: %w", err)
	}
	return nil
}

// Version returns the current version; 0 when nothing has been applied.
func (r *Runner) Version() (uint, bool, error) {
	m, err := r.getMigrate()
	if err != nil {
		return 0, false, fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}

	return version, dirty, nil
}

func (r *Runner) getMigrate() (*migrate.Migrate, error) {
	if r.config.Source == nil {
		return nil, errors.New("no migration source")
	}
	src, err := iofs.New(r.config.Source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	db, err := sql.Open("postgres", r.config.DatabaseURL)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		src.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// AutoMigrate refuses to run on a dirty schema, otherwise applies pending migrations.
func AutoMigrate(cfg Config) error {
	runner := NewRunner(cfg)

	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database in dirty state at version %d", version)
	}

	if err := runner.Up(); err != nil {
		return err
	}

	newVersion, _, err := runner.Version()
	if err != nil {
		return err
	}

	runner.logger.Info("schema up to date", slog.Uint64("from_version", uint64(version)), slog.Uint64("to_version", uint64(newVersion)))
	return nil
}
