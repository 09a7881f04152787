// Package repository defines the storage contract the services depend on.
//
// Implementations live in sub-packages (sqlite, postgres) and must agree on
// the error contract:
//   - a missing row is an error wrapping apperror.ErrNotFound
//   - a duplicate email is an error wrapping apperror.ErrConflict
//   - a lost optimistic update is an error wrapping apperror.ErrConflict
//   - anything else is a plain wrapped driver error (an internal failure)
package repository

import (
	"context"

	"github.com/sakif/todo-backend/internal/model"
)

const (
	// DefaultListLimit is used when ListOptions.Limit is zero or negative.
	DefaultListLimit = 100
	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 500
)

// ListOptions is offset pagination for ListTodos.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options into the range the stores accept.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserRepository stores user accounts. Users are never hard-deleted.
type UserRepository interface {
	// CreateUser assigns ID, timestamps and inserts u.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByEmail matches the email exactly as stored.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser writes email and the active flag and refreshes UpdatedAt.
	UpdateUser(ctx context.Context, u *model.User) error
}

// TodoRepository stores todos. Every method is scoped to an owner: a todo
// that belongs to somebody else is indistinguishable from one that does not
// exist.
type TodoRepository interface {
	// CreateTodo assigns ID, Version and timestamps and inserts t.
	CreateTodo(ctx context.Context, t *model.Todo) error
	GetTodo(ctx context.Context, userID, id string) (*model.Todo, error)
	// ListTodos returns the owner's todos, newest first.
	ListTodos(ctx context.Context, userID string, opts ListOptions) ([]model.Todo, error)
	// UpdateTodo saves t if t.Version still matches the stored version, then
	// bumps t.Version and t.UpdatedAt.
	UpdateTodo(ctx context.Context, t *model.Todo) error
	DeleteTodo(ctx context.Context, userID, id string) error
}

// Store is a complete storage backend.
type Store interface {
	UserRepository
	TodoRepository

	// Ping reports whether the backend is reachable; used by /health.
	Ping(ctx context.Context) error
	Close() error
}
