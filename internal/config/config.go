// Package config reads the server configuration from the environment.
//
// Load is called once from main; the resulting Config is passed explicitly to
// server.New, which hands each component only the values it needs.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/todo-backend/internal/auth"
)

// Config holds every setting the server reads at startup.
type Config struct {
	// Server
	Port               int
	CORSAllowedOrigins []string

	// Storage. DatabaseURL wins over SQLitePath when both are set.
	DatabaseURL string
	SQLitePath  string

	// Auth
	SecretKey      string
	AccessTokenTTL time.Duration
	BcryptCost     int

	// Logging
	LogLevel  slog.Level
	LogFormat string
}

// Load reads .env files (when present) and then the process environment.
func Load() (*Config, error) {
	loadEnvFiles()
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config from getenv and validates it.
func LoadFrom(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		Port:               env.int("PORT", 8080),
		CORSAllowedOrigins: splitList(env.str("CORS_ALLOWED_ORIGINS", "*")),

		DatabaseURL: env.str("DATABASE_URL", ""),
		SQLitePath:  env.str("SQLITE_PATH", "data/todo.db"),

		SecretKey:      env.str("SECRET_KEY", env.str("JWT_SECRET", "")),
		AccessTokenTTL: time.Duration(env.int("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		BcryptCost:     env.int("BCRYPT_COST", 12),

		LogFormat: strings.ToLower(env.str("LOG_FORMAT", "text")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(env.str("LOG_LEVEL", "info"))); err != nil {
		env.errs = append(env.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env.local and .env from the working directory. Values
// already present in the environment are never overridden, and missing
// files are not an error.
func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}

// Validate checks that the values can actually start a server.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	} else if len(c.SecretKey) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d characters", auth.MinSecretLength))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d (got %d)",
			bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		errs = append(errs, errors.New("one of DATABASE_URL or SQLITE_PATH is required"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json (got %q)", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UsePostgres reports whether the Postgres store is configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// envReader collects parse errors instead of silently using defaults.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer (got %q)", key, raw))
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
