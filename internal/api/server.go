package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/skyking-delivery/skytrack/internal/config"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	hub        StreamPort
	store      SnapshotStore
	snapshot   *config.SnapshotConfig
	serverCfg  *config.ServerConfig
	logger     *log.Logger
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(hub StreamPort, snapshotStore SnapshotStore, cfg *config.Config, logger *log.Logger) *Server {
	return &Server{
		hub:       hub,
		store:     snapshotStore,
		snapshot:  &cfg.Snapshot,
		serverCfg: &cfg.Server,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: s.serverCfg.ReadTimeout(),
		// WriteTimeout stays at the configured value; 0 disables it, which
		// the SSE stream endpoint requires.
		WriteTimeout: s.serverCfg.WriteTimeout(),
		IdleTimeout:  s.serverCfg.IdleTimeout(),
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

// GetServer returns the underlying HTTP server for testing.
func (s *Server) GetServer() *http.Server {
	return s.httpServer
}
