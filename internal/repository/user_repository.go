package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/account-service/internal/domain"
)

// UserRepository defines persistence access for user accounts.
//
// Lookups that find nothing return ErrNotFound. Writes that would leave two
// active users with the same email return ErrDuplicateEmail.
type UserRepository interface {
	ExistsActiveByEmail(ctx context.Context, email string) (bool, error)
	GetActiveByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// List returns every stored user, deleted or not.
	List(ctx context.Context) ([]domain.User, error)
	// Save inserts users without an ID and updates the rest. On insert the
	// generated ID and CreatedAt are written back to user.
	Save(ctx context.Context, user *domain.User) error
}

// PgxQuerier is the subset of pgxpool.Pool the repository needs.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRepresent = "22P02"
)

type userRepository struct {
	db PgxQuerier
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db PgxQuerier) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	const query = `
        SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 AND is_deleted=FALSE)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active email: %w", err)
	}
	return exists, nil
}

func (r *userRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, is_deleted, created_at
        FROM users WHERE email=$1 AND is_deleted=FALSE`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapPgError("get user by email", err)
	}
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, is_deleted, created_at
        FROM users WHERE id=$1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError("get user by id", err)
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	const query = `
        SELECT id, email, password_hash, is_deleted, created_at
        FROM users ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
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

func (r *userRepository) Save(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return r.insert(ctx, user)
	}
	return r.update(ctx, user)
}

func (r *userRepository) insert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, email, password_hash, is_deleted)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`

	id := uuid.NewString()
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		user.Email,
		user.PasswordHash,
		user.IsDeleted,
	).Scan(&createdAt); err != nil {
		return mapPgError("insert user", err)
	}

	user.ID = id
	user.CreatedAt = createdAt.UTC()
	return nil
}

func (r *userRepository) update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET email=$1, password_hash=$2, is_deleted=$3
        WHERE id=$4`

	cmd, err := r.db.Exec(ctx, query,
		user.Email,
		user.PasswordHash,
		user.IsDeleted,
		user.ID,
	)
	if err != nil {
		return mapPgError("update user", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser maps a users row, in column order id, email, password_hash,
// is_deleted, created_at, to the domain record.
func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsDeleted,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func mapPgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateEmail
		case pgInvalidTextRepresent:
			// a malformed uuid can never match a row
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
