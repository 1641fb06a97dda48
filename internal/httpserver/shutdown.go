package httpserver

import (
	"context"
	"time"
)

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Run serves until ctx is cancelled, then shuts down within ShutdownTimeout.
func Run(ctx context.Context, s *Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
