package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
)

// Store is the database selected by STORAGE_DRIVER. Exactly one of Postgres
// and SQLite is set.
type Store struct {
	Driver   config.StorageDriver
	Postgres *Postgres
	SQLite   *SQLite
}

// OpenStore connects to the configured storage backend.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &Store{Driver: cfg.Storage.Driver, Postgres: pg}, nil
	case config.StorageDriverSQLite:
		db, err := NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Store{Driver: cfg.Storage.Driver, SQLite: db}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// Dialect returns the migration dialect for the backend.
func (s *Store) Dialect() Dialect {
	if s.Postgres != nil {
		return DialectPostgres
	}
	return DialectSQLite
}

// SQLDB returns a database/sql handle onto the backend.
func (s *Store) SQLDB() *sql.DB {
	if s.Postgres != nil {
		return s.Postgres.SQLDB()
	}
	return s.SQLite.DB
}

// Migrator builds a migrator for the backend.
func (s *Store) Migrator(logger *zap.Logger) (*Migrator, error) {
	return NewMigrator(s.SQLDB(), s.Dialect(), logger)
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.Postgres != nil {
		return s.Postgres.Ping(ctx)
	}
	return s.SQLite.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() {
	s.Postgres.Close()
	s.SQLite.Close()
}
