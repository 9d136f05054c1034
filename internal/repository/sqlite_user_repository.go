package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spec-kit/account-service/internal/domain"
)

// sqliteTimeLayout keeps a fixed width so created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteUserRepository struct {
	db  DBTX
	now func() time.Time
}

// NewSQLiteUserRepository returns an SQLite-backed implementation.
func NewSQLiteUserRepository(db DBTX) UserRepository {
	return &sqliteUserRepository{db: db, now: time.Now}
}

func (r *sqliteUserRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = ? AND is_deleted = 0)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active email: %w", err)
	}
	return exists, nil
}

func (r *sqliteUserRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, is_deleted, created_at
		FROM users WHERE email = ? AND is_deleted = 0`

	user, err := scanSQLiteUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapSQLiteError("get user by email", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, is_deleted, created_at
		FROM users WHERE id = ?`

	user, err := scanSQLiteUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapSQLiteError("get user by id", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) List(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, email, password_hash, is_deleted, created_at
		FROM users ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *sqliteUserRepository) Save(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return r.insert(ctx, user)
	}
	return r.update(ctx, user)
}

func (r *sqliteUserRepository) insert(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?)`

	id := uuid.NewString()
	createdAt := r.now().UTC()
	if _, err := r.db.ExecContext(ctx, query,
		id,
		user.Email,
		user.PasswordHash,
		user.IsDeleted,
		createdAt.Format(sqliteTimeLayout),
	); err != nil {
		return mapSQLiteError("insert user", err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

func (r *sqliteUserRepository) update(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET email = ?, password_hash = ?, is_deleted = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.IsDeleted,
		user.ID,
	)
	if err != nil {
		return mapSQLiteError("update user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// sqliteUserRow mirrors the users table as SQLite returns it.
type sqliteUserRow struct {
	ID           string
	Email        string
	PasswordHash string
	IsDeleted    bool
	CreatedAt    string
}

func (row sqliteUserRow) toDomain() (*domain.User, error) {
	createdAt, err := time.Parse(sqliteTimeLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", row.CreatedAt, err)
	}
	return &domain.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		IsDeleted:    row.IsDeleted,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func scanSQLiteUser(row rowScanner) (*domain.User, error) {
	var r sqliteUserRow
	if err := row.Scan(&r.ID, &r.Email, &r.PasswordHash, &r.IsDeleted, &r.CreatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}

func mapSQLiteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isSQLiteUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}
