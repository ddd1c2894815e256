// Package web serves the ledger as a read-only JSON API.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server represents the report API server
type Server struct {
	ledger     ledger.Ledger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a server reading from l.
func NewServer(l ledger.Ledger, addr string) *Server {
	r := chi.NewRouter()
	s := &Server{ledger: l, router: r}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", healthCheck)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/attendance", s.listAttendance)
		r.Get("/attendance/{name}", s.subjectHistory)
		r.Get("/presence", s.listPresence)
	})
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	slog.Info("starting report server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down report server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
