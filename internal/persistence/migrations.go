package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect names a goose SQL dialect with its own migration set.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

func (d Dialect) dir() (string, error) {
	switch d {
	case DialectPostgres:
		return "migrations/postgres", nil
	case DialectSQLite:
		return "migrations/sqlite", nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", d)
	}
}

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// Migrator applies the embedded schema migrations to one database.
type Migrator struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewMigrator returns a migrator for db.
func NewMigrator(db *sql.DB, dialect Dialect, logger *zap.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database provided")
	}
	if _, err := dialect.dir(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, dialect: dialect, logger: logger}, nil
}

// RunMigrations applies every pending migration for the dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) error {
	m, err := NewMigrator(db, dialect, logger)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// Up applies pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withGoose(func(dir string) error {
		m.logger.Info("applying migrations", zap.String("dialect", string(m.dialect)))
		if err := goose.UpContext(ctx, m.db, dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		m.logger.Info("migrations applied")
		return nil
	})
}

// Status logs applied and pending migrations.
func (m *Migrator) Status(_ context.Context) error {
	return m.withGoose(func(dir string) error {
		if err := goose.Status(m.db, dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

// Down rolls back the latest migration, or down to targetVersion when positive.
func (m *Migrator) Down(ctx context.Context, targetVersion int64) error {
	return m.withGoose(func(dir string) error {
		if targetVersion > 0 {
			m.logger.Info("rolling back migrations", zap.Int64("target", targetVersion))
			if err := goose.DownToContext(ctx, m.db, dir, targetVersion); err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
			return nil
		}
		m.logger.Info("rolling back latest migration")
		if err := goose.DownContext(ctx, m.db, dir); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		return nil
	})
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	var version int64
	err := m.withGoose(func(string) error {
		v, err := goose.GetDBVersionContext(ctx, m.db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func (m *Migrator) withGoose(fn func(dir string) error) error {
	dir, err := m.dialect.dir()
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: m.logger.Sugar()})
	if err := goose.SetDialect(string(m.dialect)); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return fn(dir)
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}
