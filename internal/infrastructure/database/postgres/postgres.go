// Package postgres implements the optional shared relational result store.
// When several job slots work on one run, the database gives them a single
// consistent view of model statuses and screening results; the filesystem
// store remains the per-slot working copy.
package postgres

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// DSN renders the pgx connection string for cfg.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "invalid postgres configuration")
	}
	pc.MaxConns = int32(cfg.MaxConns)
	if cfg.MinConns > 0 {
		pc.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to connect to postgres").
			WithDetail(fmt.Sprintf("host=%s port=%d db=%s", cfg.Host, cfg.Port, cfg.DBName))
	}
	return pool, nil
}

// Migrate applies all pending schema migrations from cfg.MigrationPath.
// An already up-to-date schema is not an error.
func Migrate(cfg config.PostgresConfig, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MigrationPath == "" {
		return errors.InvalidConfig("postgres.migration_path must be set to run migrations")
	}

	m, err := migrate.New("file://"+cfg.MigrationPath, DSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to initialise migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Debug("postgres schema already up to date")
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to read migration version")
	}
	logger.Info("postgres schema migrated",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty))
	return nil
}
