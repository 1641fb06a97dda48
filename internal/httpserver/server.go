package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps the http.Server used for the loopback preview endpoint.
type Server struct {
	inner    *http.Server
	listener net.Listener
}

// New constructs a server bound to the loopback interface on port. Port 0
// picks a free port.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Listen binds the listening socket and returns the server's base URL.
func (s *Server) Listen() (string, error) {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.inner.Addr)
		if err != nil {
			return "", fmt.Errorf("listen %s: %w", s.inner.Addr, err)
		}
		s.listener = ln
	}
	return "http://" + s.listener.Addr().String(), nil
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	if err := s.inner.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
