package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDrainTimeout = 30 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

// Context returns the server's lifetime context. It is cancelled as soon as
// shutdown begins, so background work started with it (such as the startup
// repo sync) stops while in-flight requests drain.
func (s *Server) Context() context.Context {
	return s.ctx
}

// Addr returns the bound listener address, or "" before Serve has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run serves until SIGINT or SIGTERM arrives, then shuts down gracefully.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve binds the configured address and serves until ctx is done or
// Shutdown is called. Requests still running when ctx ends get the drain
// timeout to finish; after that their connections are closed and the
// drain error is returned.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// Requests keep the server's values but not its cancellation;
		// Shutdown drains them instead of aborting them.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(s.ctx)
		},
	}
	s.mu.Lock()
	s.http, s.listener = hs, ln
	s.mu.Unlock()

	served := make(chan error, 1)
	go func() { served <- hs.Serve(ln) }()

	s.logger.Info("server started", zap.String("addr", ln.Addr().String()))
	close(s.ready)

	select {
	case err := <-served:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("drain_timeout", s.drainTimeout))
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.Shutdown(drainCtx); err != nil {
		s.logger.Error("drain incomplete, closing connections", zap.Error(err))
		hs.Close()
		<-served
		return fmt.Errorf("drain: %w", err)
	}
	<-served
	s.logger.Info("server stopped")
	return nil
}

// Shutdown cancels Context and waits for in-flight requests until ctx is
// done. Before Serve it only cancels Context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	hs := s.http
	s.mu.Unlock()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}
