package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/apprelay/apprelay/internal/service"
	"github.com/apprelay/apprelay/internal/storage"
)

// Options configures the HTTP front end.
type Options struct {
	Addr string
	// RateLimitRPS and RateLimitBurst bound mutating requests per client.
	// A zero RPS disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	svc    *service.Service
	local  *storage.Local
	http   *http.Server
	logger *slog.Logger
}

func New(svc *service.Service, files *storage.Store, opts Options, logger *slog.Logger) *Server {
	s := &Server{svc: svc, local: files.Local(), logger: logger}
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = localDownloadGuard(mux)
	if opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst), handler)
	}
	handler = loggingMiddleware(logger, handler)
	handler = recoveryMiddleware(logger, handler)
	handler = requestIDMiddleware(handler)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
