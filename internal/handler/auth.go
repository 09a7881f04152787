package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/service"
)

// AuthHandler serves the account endpoints under /api/auth.
//
//   - HandleRegister → create an account
//   - HandleLogin    → exchange email + password for a bearer token
//   - HandleLogout   → acknowledge a logout (tokens are stateless)
//   - HandleMe       → the caller's profile
//   - HandleUpdateMe → change email or deactivate the account
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

// CredentialsRequest is the register and login body.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the login response.
type TokenResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresIn   int               `json:"expires_in"`
	User        model.UserSummary `json:"user"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// Body: {"email": "...", "password": "..."}
// 201:  {"id": "...", "email": "...", "created_at": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user.Public())
}

// HandleLogin issues a bearer token.
//
// HTTP: POST /api/auth/login
// Body: {"email": "...", "password": "..."} as JSON, or an OAuth2 password
// form (username=...&password=...).
// 200:  {"access_token": "...", "token_type": "bearer", "expires_in": 1800, "user": {"id", "email"}}
//
// Every credential failure is the same 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: result.Token,
		TokenType:   result.TokenType,
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
		User:        result.User.Summary(),
	})
}

// HandleLogout always succeeds. Tokens are not tracked server-side, so the
// client discards its token and it stays valid until it expires.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// HandleMe returns the authenticated caller.
//
// HTTP: GET /api/auth/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe changes the caller's email or active flag.
//
// HTTP: PATCH /api/auth/me (behind RequireAuth)
// Body: {"email": "...", "is_active": false}; both optional
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, auth.ErrUnauthenticated)
		return
	}

	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		serverError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// readCredentials accepts a JSON body or an OAuth2 password-grant form,
// where the email travels as "username".
func readCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, error) {
	if !isForm(r) {
		var req CredentialsRequest
		err := decodeJSON(w, r, &req)
		return req, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return CredentialsRequest{}, apperror.ValidationFailed("", "invalid form body")
	}

	email := r.PostForm.Get("username")
	if strings.TrimSpace(email) == "" {
		email = r.PostForm.Get("email")
	}
	return CredentialsRequest{Email: email, Password: r.PostForm.Get("password")}, nil
}
