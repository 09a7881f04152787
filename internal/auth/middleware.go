package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// values this package stores in a request context.
type contextKey string

const userKey contextKey = "user"

// ErrUnauthenticated is the single failure the Authenticator reports for a
// missing, malformed, invalid or expired token and for an unknown or
// inactive user.
var ErrUnauthenticated = apperror.Unauthorized("valid authentication required")

// UserLookup is the slice of the user store the Authenticator needs.
// It must return an error wrapping apperror.ErrNotFound for unknown ids.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticator turns a bearer token into the user it belongs to.
//
// It has two outcomes: Authenticated(user) or ErrUnauthenticated. The token
// only names the user; whether that user may act is decided from the
// directory on every call, so a deactivated account is shut out on its next
// request even though its tokens still verify.
type Authenticator struct {
	tokens *TokenService
	users  UserLookup
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens *TokenService, users UserLookup, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// Authenticate verifies token and loads its active user.
//
// Errors are either ErrUnauthenticated or, when the store itself fails, a
// wrapped storage error that should surface as an internal failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	userID, err := a.tokens.Validate(token)
	if err != nil {
		a.logger.Debug("token rejected", slog.String("reason", err.Error()))
		return nil, ErrUnauthenticated
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			a.logger.Debug("token subject no longer exists", slog.String("userID", userID))
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("auth: loading user %s: %w", userID, err)
	}

	if !user.Active {
		a.logger.Info("inactive user presented a token", slog.String("userID", userID))
		return nil, ErrUnauthenticated
	}

	return user, nil
}

// RequireAuth is a middleware that lets a request through only when its
// Authorization header carries a bearer token for an active user. The user
// is stored in the request context for UserFromContext.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthorized) {
					writeUnauthorized(w)
					return
				}
				a.logger.Error("authentication lookup failed", slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal_error","message":"An internal error occurred"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively; anything else yields "".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserFromContext returns the user RequireAuth stored, or (nil, false) on a
// route that is not behind RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// UserIDFromContext is UserFromContext reduced to the id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return u.ID, true
}

// ContextWithUser stores u the way RequireAuth does. Handler tests use it to
// skip the token round trip.
func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
}
