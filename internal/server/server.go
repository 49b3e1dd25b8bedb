// Package server exposes the orchestrator over HTTP
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// Server is the HTTP API of the orchestrator
type Server struct {
	http *http.Server
	log  *slog.Logger
}

// NewServer builds the gin router and the http.Server around it. Deploy
// commands can run for minutes, so there is no write timeout.
func NewServer(cfg *config.RuntimeConfig, api *Handler, log *slog.Logger) *Server {
	mode := cfg.Server.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log))
	api.RegisterRoutes(router)

	s := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{http: s, log: log.With("component", "server")}
}

// Handler returns the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
