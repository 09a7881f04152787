package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/handler"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository/sqlite"
	"github.com/sakif/todo-backend/internal/service"
)

// testAPI mounts the handlers the same way the server does, over an
// in-memory SQLite store.
type testAPI struct {
	router http.Handler
	users  *service.AuthService
	db     *sqlite.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqlite.New(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logger)
	todoSvc := service.NewTodoService(db, logger)
	authn := auth.NewAuthenticator(tokens, db, logger)

	authH := handler.NewAuthHandler(authSvc, logger)
	todoH := handler.NewTodoHandler(todoSvc, logger)
	healthH := handler.NewHealthHandler(db, logger)

	r := chi.NewRouter()
	r.Get("/", healthH.HandleRoot)
	r.Get("/health", healthH.HandleHealth)
	r.Post("/api/auth/register", authH.HandleRegister)
	r.Post("/api/auth/login", authH.HandleLogin)
	r.Post("/api/auth/logout", authH.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authn))
		r.Get("/api/auth/me", authH.HandleMe)
		r.Patch("/api/auth/me", authH.HandleUpdateMe)
		r.Get("/api/todos", todoH.HandleList)
		r.Post("/api/todos", todoH.HandleCreate)
		r.Get("/api/todos/{id}", todoH.HandleGet)
		r.Put("/api/todos/{id}", todoH.HandleUpdate)
		r.Patch("/api/todos/{id}", todoH.HandleUpdate)
		r.Delete("/api/todos/{id}", todoH.HandleDelete)
	})

	return &testAPI{router: r, users: authSvc, db: db}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// login registers email and returns a bearer token for it.
func (a *testAPI) login(t *testing.T, email string) string {
	t.Helper()
	_, err := a.users.Register(context.Background(), email, "password123")
	require.NoError(t, err)
	res, err := a.users.Login(context.Background(), email, "password123")
	require.NoError(t, err)
	return res.Token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// =========================================================================
// AUTH ENDPOINTS
// =========================================================================

func TestAuthHandler_Register(t *testing.T) {
	api := newTestAPI(t)

	t.Run("creates account", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"email":"a@example.com","password":"password123"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		body := decode[map[string]any](t, rr)
		assert.Equal(t, "a@example.com", body["email"])
		assert.NotEmpty(t, body["id"])
		assert.NotEmpty(t, body["created_at"])
		assert.NotContains(t, body, "password_hash")
		assert.NotContains(t, body, "password")
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"email":"a@example.com","password":"password123"}`)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "conflict", decode[handler.ErrorResponse](t, rr).Error)
	})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"short password", `{"email":"b@example.com","password":"short"}`, "password"},
		{"bad email", `{"email":"not-an-email","password":"password123"}`, "email"},
		{"empty body", ``, ""},
		{"malformed json", `{"email":`, ""},
		{"wrong type", `{"email":42,"password":"password123"}`, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, "/api/auth/register", "", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decode[handler.ErrorResponse](t, rr)
			assert.Equal(t, "validation_error", resp.Error)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	api := newTestAPI(t)
	_, err := api.users.Register(context.Background(), "a@example.com", "password123")
	require.NoError(t, err)

	t.Run("json body", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/auth/login", "",
			`{"email":"a@example.com","password":"password123"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[handler.TokenResponse](t, rr)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, int(auth.DefaultTokenTTL.Seconds()), resp.ExpiresIn)
		assert.Equal(t, "a@example.com", resp.User.Email)
	})

	t.Run("oauth2 password form", func(t *testing.T) {
		form := url.Values{"username": {"a@example.com"}, "password": {"password123"}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, decode[handler.TokenResponse](t, rr).AccessToken)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		wrongPassword := api.do(t, http.MethodPost, "/api/auth/login", "",
			`{"email":"a@example.com","password":"wrong-password"}`)
		unknownEmail := api.do(t, http.MethodPost, "/api/auth/login", "",
			`{"email":"nobody@example.com","password":"password123"}`)

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
		assert.Equal(t, "Bearer", wrongPassword.Header().Get("WWW-Authenticate"))
		assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/auth/logout", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Successfully logged out", decode[handler.MessageResponse](t, rr).Message)
}

func TestAuthHandler_Me(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "me@example.com")

	t.Run("returns caller", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/auth/me", token, "")

		require.Equal(t, http.StatusOK, rr.Code)
		u := decode[model.User](t, rr)
		assert.Equal(t, "me@example.com", u.Email)
		assert.True(t, u.Active)
	})

	t.Run("no token", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/auth/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("change email", func(t *testing.T) {
		rr := api.do(t, http.MethodPatch, "/api/auth/me", token, `{"email":"new@example.com"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "new@example.com", decode[model.User](t, rr).Email)
	})

	t.Run("deactivate locks the token out", func(t *testing.T) {
		rr := api.do(t, http.MethodPatch, "/api/auth/me", token, `{"is_active":false}`)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = api.do(t, http.MethodGet, "/api/auth/me", token, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// =========================================================================
// TODO ENDPOINTS
// =========================================================================

func TestTodoHandler_CRUD(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "owner@example.com")

	rr := api.do(t, http.MethodPost, "/api/todos", token,
		`{"title":"Buy milk","priority":"high","due_date":"2025-12-31"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[model.Todo](t, rr)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, model.PriorityHigh, created.Priority)
	assert.False(t, created.Completed)
	require.NotNil(t, created.DueDate)

	rr = api.do(t, http.MethodGet, "/api/todos/"+created.ID, token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created.ID, decode[model.Todo](t, rr).ID)

	rr = api.do(t, http.MethodPatch, "/api/todos/"+created.ID, token, `{"completed":true,"due_date":null}`)
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decode[model.Todo](t, rr)
	assert.True(t, updated.Completed)
	assert.Nil(t, updated.DueDate)
	assert.Equal(t, "Buy milk", updated.Title)

	rr = api.do(t, http.MethodPut, "/api/todos/"+created.ID, token, `{"title":"Buy oat milk"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Buy oat milk", decode[model.Todo](t, rr).Title)

	rr = api.do(t, http.MethodGet, "/api/todos", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Todo](t, rr), 1)

	rr = api.do(t, http.MethodDelete, "/api/todos/"+created.ID, token, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/api/todos/"+created.ID, token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTodoHandler_ListEmptyIsArray(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "empty@example.com")

	rr := api.do(t, http.MethodGet, "/api/todos", token, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestTodoHandler_ListPaging(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "pager@example.com")
	for _, title := range []string{"one", "two", "three"} {
		rr := api.do(t, http.MethodPost, "/api/todos", token, `{"title":"`+title+`"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := api.do(t, http.MethodGet, "/api/todos?limit=2&offset=1", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Todo](t, rr), 2)

	for _, q := range []string{"limit=abc", "offset=-1"} {
		rr := api.do(t, http.MethodGet, "/api/todos?"+q, token, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestTodoHandler_Validation(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "v@example.com")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing title", `{"description":"x"}`, "title"},
		{"blank title", `{"title":"   "}`, "title"},
		{"bad priority", `{"title":"x","priority":"urgent"}`, "priority"},
		{"bad due date", `{"title":"x","due_date":"tomorrow"}`, "due_date"},
		{"completed wrong type", `{"title":"x","completed":"yes"}`, "completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, "/api/todos", token, tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.field, decode[handler.ErrorResponse](t, rr).Field)
		})
	}
}

func TestTodoHandler_IgnoresBodyUserID(t *testing.T) {
	api := newTestAPI(t)
	victim := api.login(t, "victim@example.com")
	attacker := api.login(t, "attacker@example.com")

	me := decode[model.User](t, api.do(t, http.MethodGet, "/api/auth/me", victim, ""))

	rr := api.do(t, http.MethodPost, "/api/todos", attacker, `{"title":"planted","user_id":"`+me.ID+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/todos", victim, "")
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestTodoHandler_CrossTenantIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login(t, "alice@example.com")
	bob := api.login(t, "bob@example.com")

	rr := api.do(t, http.MethodPost, "/api/todos", alice, `{"title":"secret"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[model.Todo](t, rr).ID

	missing := api.do(t, http.MethodGet, "/api/todos/00000000-0000-0000-0000-000000000000", bob, "")

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPatch, `{"title":"pwned"}`},
		{http.MethodDelete, ""},
	} {
		rr := api.do(t, tc.method, "/api/todos/"+id, bob, tc.body)
		assert.Equal(t, http.StatusNotFound, rr.Code, tc.method)
		assert.Equal(t, missing.Code, rr.Code)
	}

	rr = api.do(t, http.MethodGet, "/api/todos/"+id, alice, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "secret", decode[model.Todo](t, rr).Title)
}

func TestTodoHandler_NonUUIDIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "ids@example.com")

	rr := api.do(t, http.MethodGet, "/api/todos/not-a-uuid", token, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTodoHandler_WithoutAuthContext(t *testing.T) {
	h := handler.NewTodoHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	h.HandleList(rr, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// =========================================================================
// HEALTH
// =========================================================================

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("root", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.NewHealthHandler(stubPinger{}, logger).HandleRoot(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"Todo Web Application API"}`, rr.Body.String())
	})

	t.Run("healthy", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.NewHealthHandler(stubPinger{}, logger).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
	})

	t.Run("store down", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h := handler.NewHealthHandler(stubPinger{err: errors.New("connection refused")}, logger)
		h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.JSONEq(t, `{"status":"unhealthy"}`, rr.Body.String())
	})
}
