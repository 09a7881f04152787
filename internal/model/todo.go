package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the importance of a todo item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts exactly "low", "medium" or "high". The medium
// default applies only when the field is absent, which callers decide.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("priority must be one of low, medium, high (got %q)", s)
}

// Todo is a single task owned by exactly one user.
//
// UserID is set once at creation from the authenticated caller and is never
// changed afterwards. Version is bumped by every successful update and is
// what the repositories use for optimistic concurrency.
type Todo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date"`
	Priority    Priority   `json:"priority"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TodoInput is the client payload for both create and update.
//
// Each field records whether the key was present at all, so an update can
// tell "leave unchanged" (absent) from "clear" (null). Any user_id the client
// sends is not part of this type and is dropped by the decoder.
type TodoInput struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Completed   Optional[bool]   `json:"completed"`
	DueDate     Optional[string] `json:"due_date"`
	Priority    Optional[string] `json:"priority"`
}

// dueDateLayouts are tried in order. Bare dates resolve to midnight UTC and
// timestamps without a zone are read as UTC.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseDueDate parses an ISO-8601 date or date-time string.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or an ISO-8601 timestamp", s)
}
