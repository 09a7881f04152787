package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository"
)

const todoColumns = `id, user_id, title, description, completed, due_date, priority, version, created_at, updated_at`

func (db *DB) CreateTodo(ctx context.Context, t *model.Todo) error {
	now := db.now()
	t.ID = uuid.NewString()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO todos (`+todoColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UserID, t.Title, t.Description, t.Completed, t.DueDate,
		string(t.Priority), t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting todo: %w", err)
	}
	return nil
}

// GetTodo returns the todo only if userID owns it.
func (db *DB) GetTodo(ctx context.Context, userID, id string) (*model.Todo, error) {
	t, err := scanTodo(db.pool.QueryRow(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isBadUUID(err) {
			return nil, apperror.NotFound("todo", id)
		}
		return nil, fmt.Errorf("postgres: getting todo %s: %w", id, err)
	}
	return t, nil
}

// ListTodos returns one page of the owner's todos, newest first.
func (db *DB) ListTodos(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Todo, error) {
	opts = opts.Normalize()

	rows, err := db.pool.Query(ctx,
		`SELECT `+todoColumns+` FROM todos
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing todos: %w", err)
	}
	defer rows.Close()

	todos := make([]model.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning todo row: %w", err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating todos: %w", err)
	}

	return todos, nil
}

// UpdateTodo is a compare-and-swap on (id, user_id, version).
func (db *DB) UpdateTodo(ctx context.Context, t *model.Todo) error {
	updatedAt := db.now()

	tag, err := db.pool.Exec(ctx,
		`UPDATE todos
		 SET title = $1, description = $2, completed = $3, due_date = $4, priority = $5,
		     version = version + 1, updated_at = $6
		 WHERE id = $7 AND user_id = $8 AND version = $9`,
		t.Title, t.Description, t.Completed, t.DueDate, string(t.Priority),
		updatedAt, t.ID, t.UserID, t.Version,
	)
	if err != nil {
		if isBadUUID(err) {
			return apperror.NotFound("todo", t.ID)
		}
		return fmt.Errorf("postgres: updating todo %s: %w", t.ID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM todos WHERE id = $1 AND user_id = $2)`,
			t.ID, t.UserID,
		).Scan(&exists)
		switch {
		case err != nil:
			return fmt.Errorf("postgres: re-reading todo %s: %w", t.ID, err)
		case !exists:
			return apperror.NotFound("todo", t.ID)
		default:
			return apperror.Conflict("todo was modified by another request")
		}
	}

	t.Version++
	t.UpdatedAt = updatedAt
	return nil
}

// DeleteTodo removes the todo only if userID owns it.
func (db *DB) DeleteTodo(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if isBadUUID(err) {
			return apperror.NotFound("todo", id)
		}
		return fmt.Errorf("postgres: deleting todo %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("todo", id)
	}
	return nil
}

func scanTodo(row pgx.Row) (*model.Todo, error) {
	var (
		t        model.Todo
		priority string
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed,
		&t.DueDate, &priority, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Priority = model.Priority(priority)
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
