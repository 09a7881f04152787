// Package migrate applies embedded goose migrations for the SQL stores.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

// Dialects understood by Up.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "pgx"
)

// goose keeps its base FS, dialect and logger in package globals.
var mu sync.Mutex

// Up applies every pending migration found at the root of fsys.
func Up(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, logger *slog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(Logger(logger))

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: setting dialect %q: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: applying migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: reading schema version: %w", err)
	}
	logger.Info("database schema up to date", slog.Int64("version", version), slog.String("dialect", dialect))

	return nil
}

// Logger adapts a slog.Logger to goose.Logger.
func Logger(l *slog.Logger) goose.Logger {
	return &gooseLogger{l: l.With(slog.String("component", "goose"))}
}

type gooseLogger struct {
	l *slog.Logger
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf keeps goose's contract: the process does not continue.
func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}
