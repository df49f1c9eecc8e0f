// Package httpapi serves CPU profiles over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Config contains dependencies for creating a Server.
type Config struct {
	// Addr is the host:port to bind. Port 0 picks a free port.
	Addr string

	// Profiler runs the profiling sessions.
	Profiler Profiler

	// Logger is the logger instance.
	Logger zerolog.Logger
}

// Server is the profiling HTTP endpoint.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger

	// base is the parent of every request context.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a server. It does not bind until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Profiler == nil {
		return nil, errors.New("profiler is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	logger := cfg.Logger.With().Str("component", "httpapi").Logger()

	mux := http.NewServeMux()
	mux.Handle(ProfilePath, NewProfileHandler(cfg.Profiler, cfg.Logger))

	// No WriteTimeout: a response is only written after the full
	// sampling window.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(RequestLog(cfg.Logger)(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	base, cancel := context.WithCancel(context.Background())
	httpServer.BaseContext = func(net.Listener) context.Context { return base }

	return &Server{
		httpServer: httpServer,
		logger:     logger,
		base:       base,
		cancel:     cancel,
	}, nil
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", ProfilePath).
		Msg("Starting profiling HTTP server")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Profiling HTTP server error")
		}
	}()
	return nil
}

// Stop gracefully stops the server. Profiles still running when ctx expires
// are cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping profiling HTTP server")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// URL returns the profile endpoint URL.
func (s *Server) URL() string {
	return "http://" + s.Addr() + ProfilePath
}
