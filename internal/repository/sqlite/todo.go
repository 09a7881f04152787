package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository"
)

const todoColumns = `id, user_id, title, description, completed, due_date, priority, version, created_at, updated_at`

// CreateTodo inserts t for t.UserID. ID, Version and timestamps are assigned
// here and written back into t.
func (db *DB) CreateTodo(ctx context.Context, t *model.Todo) error {
	now := db.now()
	t.ID = uuid.NewString()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.UserID,
		t.Title,
		nullString(t.Description),
		t.Completed,
		nullTime(t.DueDate),
		string(t.Priority),
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting todo: %w", err)
	}

	return nil
}

// GetTodo returns the todo only if userID owns it.
func (db *DB) GetTodo(ctx context.Context, userID, id string) (*model.Todo, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = ? AND user_id = ?`,
		id, userID,
	)

	t, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("todo", id)
		}
		return nil, fmt.Errorf("sqlite: getting todo %s: %w", id, err)
	}
	return t, nil
}

// ListTodos returns one page of the owner's todos, newest first.
func (db *DB) ListTodos(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Todo, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing todos: %w", err)
	}
	defer rows.Close()

	todos := make([]model.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning todo row: %w", err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating todos: %w", err)
	}

	return todos, nil
}

// UpdateTodo saves the mutable fields of t.
//
// OPTIMISTIC CONCURRENCY:
// The WHERE clause requires the version the caller read. If another request
// saved in between, the version has moved on, no row matches, and this update
// is refused instead of silently overwriting the other one. On success the
// stored version is bumped and t is updated to match.
func (db *DB) UpdateTodo(ctx context.Context, t *model.Todo) error {
	updatedAt := db.now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE todos
		 SET title = ?, description = ?, completed = ?, due_date = ?, priority = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND user_id = ? AND version = ?`,
		t.Title,
		nullString(t.Description),
		t.Completed,
		nullTime(t.DueDate),
		string(t.Priority),
		updatedAt,
		t.ID,
		t.UserID,
		t.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating todo %s: %w", t.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return db.missOrConflict(ctx, t.UserID, t.ID)
	}

	t.Version++
	t.UpdatedAt = updatedAt
	return nil
}

// missOrConflict explains why a scoped, versioned UPDATE matched nothing.
func (db *DB) missOrConflict(ctx context.Context, userID, id string) error {
	var exists int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM todos WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperror.NotFound("todo", id)
	case err != nil:
		return fmt.Errorf("sqlite: re-reading todo %s: %w", id, err)
	default:
		return apperror.Conflict("todo was modified by another request")
	}
}

// DeleteTodo removes the todo only if userID owns it.
func (db *DB) DeleteTodo(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting todo %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("todo", id)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (*model.Todo, error) {
	var (
		t           model.Todo
		description sql.NullString
		dueDate     sql.NullTime
		priority    string
	)
	if err := s.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&description,
		&t.Completed,
		&dueDate,
		&priority,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	t.Priority = model.Priority(priority)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}
