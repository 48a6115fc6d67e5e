package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/log"
)

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server for handler.
func NewServer(bindAddr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        bindAddr,
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// No write timeout: /api/v1/check/dns is a long-lived stream.
			IdleTimeout: 60 * time.Second,
		},
	}
}

// Listen binds the server address. It is called by Serve when needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves requests until Stop is called. It may be called again after
// it returned an error.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	log.Infof("[API] Starting server on %s", s.listener.Addr())
	log.Infof("[API] Example: curl http://%s/api/v1/health", s.listener.Addr())

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		// The listener is closed now, the next Serve binds again.
		s.listener = nil
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[API] Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
