// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// PasswordHash is tagged json:"-", so the JSON form of a User is the profile
// view served by /api/auth/me.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPublic is the registration response shape: id, email, created_at.
type UserPublic struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is embedded in the login response.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public returns the registration view of u.
func (u *User) Public() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Summary returns the login view of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email}
}

// UserPatch carries a profile update. Nil fields are left unchanged.
type UserPatch struct {
	Email  *string `json:"email"`
	Active *bool   `json:"is_active"`
}
