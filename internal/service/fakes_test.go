package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.UserRepository and
// repository.TodoRepository with the same error contract as the SQL stores.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	todos map[string]*model.Todo
	clock time.Time

	// set to a non-nil error to simulate a database failure
	err error

	// seen records the userID of every todo query, to prove scoping.
	seen []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*model.User),
		todos: make(map[string]*model.Todo),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("email already registered")
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = f.tick()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, existing := range f.users {
		if id != u.ID && existing.Email == u.Email {
			return apperror.Conflict("email already registered")
		}
	}
	u.UpdatedAt = f.tick()
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) CreateTodo(_ context.Context, t *model.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	t.ID = uuid.NewString()
	t.Version = 1
	t.CreatedAt = f.tick()
	t.UpdatedAt = t.CreatedAt
	copied := *t
	f.todos[t.ID] = &copied
	return nil
}

func (f *fakeStore) GetTodo(_ context.Context, userID, id string) (*model.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, userID)
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.todos[id]
	if !ok || t.UserID != userID {
		return nil, apperror.NotFound("todo", id)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) ListTodos(_ context.Context, userID string, opts repository.ListOptions) ([]model.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, userID)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Todo, 0)
	for _, t := range f.todos {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	opts = opts.Normalize()
	if opts.Offset >= len(out) {
		return []model.Todo{}, nil
	}
	out = out[opts.Offset:]
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateTodo(_ context.Context, t *model.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, t.UserID)
	if f.err != nil {
		return f.err
	}
	stored, ok := f.todos[t.ID]
	if !ok || stored.UserID != t.UserID {
		return apperror.NotFound("todo", t.ID)
	}
	if stored.Version != t.Version {
		return apperror.Conflict("todo was modified by another request")
	}
	t.Version++
	t.UpdatedAt = f.tick()
	copied := *t
	f.todos[t.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteTodo(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, userID)
	if f.err != nil {
		return f.err
	}
	t, ok := f.todos[id]
	if !ok || t.UserID != userID {
		return apperror.NotFound("todo", id)
	}
	delete(f.todos, id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testTokenSecret = "test-secret-at-least-16-chars!!"

// newTestAuthService returns an AuthService wired with fake dependencies.
func newTestAuthService(t *testing.T, store *fakeStore) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService(testTokenSecret)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is the bcrypt minimum; keeps tests fast
	ps := auth.NewPasswordServiceForTest(4)

	return NewAuthService(store, ts, ps, discardLogger())
}
