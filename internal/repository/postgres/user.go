package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/model"
)

const userColumns = `id, email, password_hash, is_active, created_at, updated_at`

// CreateUser inserts u; duplicates are decided by the UNIQUE index on email.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	now := db.now()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email already registered")
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	return nil
}

// GetUserByID returns apperror.ErrNotFound for unknown or non-UUID ids.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isBadUUID(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return u, nil
}

func (db *DB) UpdateUser(ctx context.Context, u *model.User) error {
	updatedAt := db.now()

	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET email = $1, is_active = $2, updated_at = $3 WHERE id = $4`,
		u.Email, u.Active, updatedAt, u.ID,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("email already registered")
		case isBadUUID(err):
			return apperror.NotFound("user", u.ID)
		}
		return fmt.Errorf("postgres: updating user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", u.ID)
	}

	u.UpdatedAt = updatedAt
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
