// Package sqlite implements repository.Store on an embedded SQLite database.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without a C
// compiler and cross-compiles like any other Go program.
//
// CONNECTION SETTINGS:
// Pragmas are passed in the DSN (_pragma=...) rather than executed once after
// Open. database/sql hands out several connections, and a PRAGMA executed on
// one of them does not apply to the others. foreign_keys in particular is
// per-connection and off by default.
//
// The schema is managed by goose; the SQL files live in migrations/ and are
// embedded into the binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/todo-backend/internal/repository"
	"github.com/sakif/todo-backend/internal/repository/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// compile-time check that *DB is a complete store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New opens (creating if needed) the database at dbPath and migrates it.
//
// dbPath examples:
//   - "data/todo.db" → file-based database (persistent)
//   - ":memory:"     → in-memory database (tests; lost on close)
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	inMemory := dbPath == ":memory:"

	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: creating directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. The mode is
	// stored in the database file, so once is enough.
	if !inMemory {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	schema, err := fs.Sub(migrations, "migrations")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}
	if err := migrate.Up(ctx, conn, migrate.DialectSQLite, schema, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	logger.Info("sqlite store ready", slog.String("path", dbPath))

	return &DB{
		conn:   conn,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

func dsn(path string) string {
	return path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_time_format=sqlite"
}

// Ping checks that the database still answers.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	// Primary result code only, when extended codes are unavailable.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// nullString maps a nil *string to SQL NULL.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
