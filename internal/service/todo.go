package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository"
)

// Validation constants.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 5000
)

// TodoService is the ownership guard in front of TodoRepository.
//
// OWNERSHIP RULES:
//   - The owner of a new todo is the caller, whatever the payload says.
//   - Every read and write passes the caller's ID down to the repository,
//     which filters on it. Another user's todo therefore looks exactly like
//     a missing one (404), and its existence is never confirmed.
//   - The owner never changes after creation.
type TodoService struct {
	repo   repository.TodoRepository
	logger *slog.Logger
}

// NewTodoService creates a new TodoService.
func NewTodoService(repo repository.TodoRepository, logger *slog.Logger) *TodoService {
	return &TodoService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates in and saves a new todo owned by userID.
//
// title is required. priority defaults to medium and completed to false.
func (s *TodoService) Create(ctx context.Context, userID string, in model.TodoInput) (*model.Todo, error) {
	if !in.Title.Set {
		return nil, apperror.ValidationFailed("title", "title is required")
	}

	todo := &model.Todo{
		UserID:   userID,
		Priority: model.PriorityMedium,
	}
	if err := applyInput(todo, in); err != nil {
		return nil, err
	}

	if err := s.repo.CreateTodo(ctx, todo); err != nil {
		s.logger.Error("failed to create todo",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/todo: creating todo: %w", err)
	}

	s.logger.Info("todo created",
		slog.String("id", todo.ID),
		slog.String("userID", userID),
	)
	return todo, nil
}

// Get returns the todo if userID owns it, apperror.ErrNotFound otherwise.
func (s *TodoService) Get(ctx context.Context, userID, id string) (*model.Todo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.NotFound("todo", id)
	}
	return s.repo.GetTodo(ctx, userID, id)
}

// List returns a page of the caller's todos, newest first.
func (s *TodoService) List(ctx context.Context, userID string, limit, offset int) ([]model.Todo, error) {
	todos, err := s.repo.ListTodos(ctx, userID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	}.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/todo: listing todos: %w", err)
	}
	return todos, nil
}

// Update applies a partial update to a todo the caller owns.
//
// Absent fields are left alone; null clears description and due_date. The
// write is conditional on the version that was read here, so a concurrent
// update in between turns into apperror.ErrConflict instead of being lost.
func (s *TodoService) Update(ctx context.Context, userID, id string, in model.TodoInput) (*model.Todo, error) {
	// Reject a bad patch before touching storage.
	if err := applyInput(&model.Todo{}, in); err != nil {
		return nil, err
	}

	todo, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := applyInput(todo, in); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTodo(ctx, todo); err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("todo update refused",
				slog.String("id", id),
				slog.String("reason", err.Error()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("service/todo: updating todo %s: %w", id, err)
	}

	s.logger.Info("todo updated",
		slog.String("id", todo.ID),
		slog.Int64("version", todo.Version),
	)
	return todo, nil
}

// Delete removes a todo the caller owns.
func (s *TodoService) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NotFound("todo", id)
	}

	if err := s.repo.DeleteTodo(ctx, userID, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/todo: deleting todo %s: %w", id, err)
	}

	s.logger.Info("todo deleted", slog.String("id", id), slog.String("userID", userID))
	return nil
}

// applyInput validates every present field of in and copies it onto t.
// Nothing is written to t unless all fields are valid.
func applyInput(t *model.Todo, in model.TodoInput) error {
	next := *t

	if in.Title.Set {
		if in.Title.Null {
			return apperror.ValidationFailed("title", "title must not be null")
		}
		title := strings.TrimSpace(in.Title.Value)
		if title == "" {
			return apperror.ValidationFailed("title", "title must not be empty")
		}
		if utf8.RuneCountInString(title) > MaxTitleLength {
			return apperror.ValidationFailed("title",
				fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
		}
		next.Title = title
	}

	if in.Description.Set {
		if in.Description.Null {
			next.Description = nil
		} else {
			if utf8.RuneCountInString(in.Description.Value) > MaxDescriptionLength {
				return apperror.ValidationFailed("description",
					fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
			}
			desc := in.Description.Value
			next.Description = &desc
		}
	}

	if in.Completed.Set {
		if in.Completed.Null {
			return apperror.ValidationFailed("completed", "completed must be true or false")
		}
		next.Completed = in.Completed.Value
	}

	if in.DueDate.Set {
		if in.DueDate.Null {
			next.DueDate = nil
		} else {
			due, err := model.ParseDueDate(in.DueDate.Value)
			if err != nil {
				return apperror.ValidationFailed("due_date", err.Error())
			}
			next.DueDate = &due
		}
	}

	if in.Priority.Set {
		if in.Priority.Null {
			return apperror.ValidationFailed("priority", "priority must be one of low, medium, high")
		}
		p, err := model.ParsePriority(in.Priority.Value)
		if err != nil {
			return apperror.ValidationFailed("priority", err.Error())
		}
		next.Priority = p
	}

	*t = next
	return nil
}
