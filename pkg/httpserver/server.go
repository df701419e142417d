package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammedhabas11/staticproxy/pkg/accesslog"
	"github.com/mohammedhabas11/staticproxy/pkg/config"
	"github.com/mohammedhabas11/staticproxy/pkg/dispatch"
	"github.com/mohammedhabas11/staticproxy/pkg/wsrelay"
)

const defaultShutdownTimeout = 15 * time.Second

// Server owns the listening socket and the relay used by upgraded
// connections.
type Server struct {
	cfg     *config.ServerConfig
	handler http.Handler
	log     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewServer creates a new Server instance but doesn't start it yet.
func NewServer(cfg *config.ServerConfig, access *accesslog.Logger, log zerolog.Logger) *Server {
	base := log
	log = log.With().Str("component", "httpserver").Logger()

	var relay *wsrelay.Relay
	if cfg.WSProxyTarget != nil {
		log.Info().Str("target", cfg.WSProxyTarget.String()).Msg("websocket relay is enabled")
		relay = wsrelay.New(cfg.WSProxyTarget, cfg.UserAgent, base)
	}
	if cfg.ProxyTarget != nil {
		log.Info().Str("target", cfg.ProxyTarget.String()).Msg("reverse proxy fallback is enabled")
	}

	return &Server{
		cfg:     cfg,
		handler: dispatch.New(cfg, relay, access, base),
		log:     log,
	}
}

// Listen binds the configured port. Start calls it when it has not been
// called yet; calling it first lets callers learn the bound address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	if s.cfg.TLS.Enabled {
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{s.cfg.TLS.Certificate},
			MinVersion:   tls.VersionTLS12,
			NextProtos:   []string{"http/1.1"},
		})
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          newStdLogger(s.log),
	}
	srv := s.server
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info().
			Str("addr", ln.Addr().String()).
			Str("scheme", s.cfg.Scheme()).
			Str("baseDir", s.cfg.BaseDir).
			Str("listing", s.cfg.Listing.String()).
			Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutdown signal received by HTTP server")
		return s.Stop()
	case err := <-serveErr:
		if err != nil {
			s.Stop()
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	}
}

// Stop gracefully stops the HTTP server. Hijacked WebSocket connections are
// not tracked by Shutdown and end with their peers.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		if ln != nil {
			return ln.Close()
		}
		s.log.Debug().Msg("stop called but server was not running")
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addr := ln.Addr().String()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed for %s: %w", addr, err)
	}
	s.log.Info().Str("addr", addr).Msg("server stopped gracefully")
	return nil
}
