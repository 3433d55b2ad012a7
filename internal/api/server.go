// Package api exposes the back-office HTTP surface: intake, client
// records, reminders, e-signature, video, voice, payments, calendar,
// and chat.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agreedhq/backoffice/internal/auth"
	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

// Server is the HTTP API server.
type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	handlers *Handlers
	srv      *http.Server
}

// NewServer builds the server. authManager may be nil to run without
// operator auth (local development).
func NewServer(cfg config.ServerConfig, h *Handlers, authManager *auth.Manager) *Server {
	return &Server{
		cfg:      cfg,
		router:   SetupRoutes(h, authManager),
		handlers: h,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the server and blocks.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.GetHost(), s.cfg.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Uploads can be large contract scans; keep write generous.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	logger.Info("api server listening", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
