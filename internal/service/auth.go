// Package service holds the account and todo business logic.
//
// AuthService is the user directory: it owns registration, credential checks,
// token issuance and profile updates.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt), TokenService (JWT)
//
// ACCOUNT ENUMERATION:
// Authenticate fails the same way whether the email is unknown, the password
// is wrong or the account is deactivated. The message is identical, and an
// unknown email still pays for one bcrypt comparison so the three cases also
// take about the same time.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/todo-backend/internal/apperror"
	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/model"
	"github.com/sakif/todo-backend/internal/repository"
)

const (
	// MaxEmailLength is the longest address RFC 5321 allows in a path.
	MaxEmailLength = 254

	// TokenType is the OAuth2-style token_type returned with every token.
	TokenType = "bearer"
)

// ErrInvalidCredentials is the single failure Authenticate reports.
var ErrInvalidCredentials = apperror.Unauthorized("incorrect email or password")

// AuthService handles registration, login and profile updates.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is what a successful login hands back to the handler.
type AuthResult struct {
	User      *model.User
	Token     string
	TokenType string
	ExpiresIn time.Duration
}

// Register creates an active account.
//
// Input is validated before any hashing or storage: the email must be a bare
// address, and the password must be 8 characters to 72 bytes. A taken email
// is an apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validateNewPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("registration rejected: email taken")
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Authenticate checks an email/password pair and returns the active user it
// belongs to. Every credential failure is ErrInvalidCredentials; only storage
// failures come back as something else.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.CompareDummy(password)
			s.logger.Info("login failed", slog.String("reason", "unknown email"))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	ok, err := s.passwords.Verify(user.PasswordHash, password)
	if err != nil {
		s.logger.Error("stored password hash is unusable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}
	if !ok {
		s.logger.Info("login failed", slog.String("reason", "wrong password"), slog.String("userID", user.ID))
		return nil, ErrInvalidCredentials
	}

	// Checked after the hash comparison so an inactive account costs the
	// same as any other failure.
	if !user.Active {
		s.logger.Info("login failed", slog.String("reason", "inactive"), slog.String("userID", user.ID))
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{
		User:      user,
		Token:     token,
		TokenType: TokenType,
		ExpiresIn: s.tokens.TTL(),
	}, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// UpdateProfile applies patch to the user's email and active flag.
//
// Setting Active to false is a soft delete: the row stays, login stops
// working, and tokens already issued are refused on their next use.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email, err := validateEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if patch.Active != nil {
		user.Active = *patch.Active
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: updating user %s: %w", userID, err)
	}

	if !user.Active {
		s.logger.Info("user deactivated", slog.String("userID", user.ID))
	} else {
		s.logger.Info("user profile updated", slog.String("userID", user.ID))
	}
	return user, nil
}

// validateEmail trims and checks a bare address such as "a@b.example".
// Display-name forms ("Alice <a@b.example>") are rejected.
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return "", apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

// validateNewPassword enforces the registration length rules: at least
// MinPasswordLength characters, at most MaxPasswordBytes bytes.
func validateNewPassword(password string) error {
	if utf8.RuneCountInString(password) < auth.MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}
