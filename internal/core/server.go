// Package core is the HTTP chassis for the greeting trigger. It builds a chi
// router with the cross-cutting middleware (panic recovery, request IDs,
// logging, optional bearer token) in front of the run and health handlers.
package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"greetbot/internal/run"
	"greetbot/internal/types"
)

// Runner performs a greeting run. Implementations add locking and history
// around run.Controller.
type Runner interface {
	Today() types.Date
	Run(ctx context.Context, date types.Date) run.Result
}

// Server holds the dependencies of the HTTP trigger.
type Server struct {
	Runner       Runner
	Logger       *slog.Logger
	HealthProbes []HealthProbe

	// Token, when set, is required as a Bearer token on POST /run.
	Token types.SecretString
	// RequestTimeout bounds requests other than POST /run and how long
	// shutdown waits for an in-flight run.
	RequestTimeout time.Duration

	router *chi.Mux
}

// NewServer validates dependencies and prepares the router. Call MountRoutes
// before serving.
func NewServer(runner Runner, logger *slog.Logger) (*Server, error) {
	if runner == nil {
		return nil, errors.New("runner must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Runner: runner,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, giving in-flight runs up to drain to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, drain time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http trigger listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
