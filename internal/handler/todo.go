package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/service"
)

// TodoHandler serves /api/todos. Every route sits behind auth.RequireAuth;
// the caller's ID always comes from the request context, never from the
// URL or the body.
type TodoHandler struct {
	todos  *service.TodoService
	logger *slog.Logger
}

// NewTodoHandler creates a TodoHandler.
func NewTodoHandler(todos *service.TodoService, logger *slog.Logger) *TodoHandler {
	return &TodoHandler{todos: todos, logger: logger}
}

// HandleList returns the caller's todos, newest first.
//
// HTTP: GET /api/todos?limit=100&offset=0
func (h *TodoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	todos, err := h.todos.List(r.Context(), userID, limit, offset)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todos)
}

// HandleCreate adds a todo owned by the caller. A user_id in the body is
// ignored.
//
// HTTP: POST /api/todos
func (h *TodoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var in model.TodoInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	todo, err := h.todos.Create(r.Context(), userID, in)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, todo)
}

// HandleGet returns one todo.
//
// HTTP: GET /api/todos/{id}
func (h *TodoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	todo, err := h.todos.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// HandleUpdate applies a partial update. PUT and PATCH behave the same.
//
// HTTP: PUT|PATCH /api/todos/{id}
func (h *TodoHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var in model.TodoInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	todo, err := h.todos.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// HandleDelete removes a todo.
//
// HTTP: DELETE /api/todos/{id} → 204 No Content
func (h *TodoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.todos.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// callerID reads the authenticated user's ID, answering 401 when the route
// was mounted without RequireAuth.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, auth.ErrUnauthenticated)
	}
	return id, ok
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
