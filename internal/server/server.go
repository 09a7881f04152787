// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New opens the store, builds the
// services and handlers, and decides which URL maps to which handler and
// which middleware guards it. main.go only loads config and calls Start.
//
//	config → store (postgres | sqlite) → AuthService, TodoService → handlers
//	       → TokenService, PasswordService → Authenticator → RequireAuth
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/todo-backend/internal/auth"
	"github.com/sakif/todo-backend/internal/config"
	"github.com/sakif/todo-backend/internal/handler"
	"github.com/sakif/todo-backend/internal/middleware"
	"github.com/sakif/todo-backend/internal/repository"
	"github.com/sakif/todo-backend/internal/repository/postgres"
	sqliteRepo "github.com/sakif/todo-backend/internal/repository/sqlite"
	"github.com/sakif/todo-backend/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store. It is closed after the HTTP server has drained,
// in Start, or by Close when the server was never started.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the configured store, runs its migrations and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore picks Postgres when DATABASE_URL is set and SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.UsePostgres() {
		logger.Info("using postgres store")
		db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	logger.Info("using sqlite store", slog.String("path", cfg.SQLitePath))
	db, err := sqliteRepo.New(ctx, cfg.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                    → API banner
// GET    /health              → store health
// GET    /metrics             → Prometheus
// POST   /api/auth/register   → create account
// POST   /api/auth/login      → issue token
// POST   /api/auth/logout     → acknowledge logout
// GET    /api/auth/me         → caller's profile          [auth]
// PATCH  /api/auth/me         → update email / is_active  [auth]
// GET    /api/todos           → list own todos            [auth]
// POST   /api/todos           → create todo               [auth]
// GET    /api/todos/{id}      → get todo                  [auth]
// PUT    /api/todos/{id}      → update todo               [auth]
// PATCH  /api/todos/{id}      → update todo               [auth]
// DELETE /api/todos/{id}      → delete todo               [auth]
//
// Middleware runs in the order it is added: request ID first so every later
// layer can log it, then real IP, panic recovery, CORS, logging and metrics.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.SecretKey, auth.WithTTL(s.config.AccessTokenTTL))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(s.config.BcryptCost)

	authService := service.NewAuthService(s.store, tokens, passwords, s.logger)
	todoService := service.NewTodoService(s.store, s.logger)
	authenticator := auth.NewAuthenticator(tokens, s.store, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	todoHandler := handler.NewTodoHandler(todoService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(reg)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Middleware)

	// === Service Routes ===
	s.router.Get("/", healthHandler.HandleRoot)
	s.router.Get("/health", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(authenticator))
				r.Get("/me", authHandler.HandleMe)
				r.Patch("/me", authHandler.HandleUpdateMe)
			})
		})

		r.Route("/todos", func(r chi.Router) {
			r.Use(auth.RequireAuth(authenticator))
			r.Get("/", todoHandler.HandleList)
			r.Post("/", todoHandler.HandleCreate)
			r.Get("/{id}", todoHandler.HandleGet)
			r.Put("/{id}", todoHandler.HandleUpdate)
			r.Patch("/{id}", todoHandler.HandleUpdate)
			r.Delete("/{id}", todoHandler.HandleDelete)
		})
	})

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Only needed when Start was never called.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM or a listen
// error. On a signal it stops accepting connections, gives in-flight
// requests shutdownTimeout to finish, and then closes the store.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
