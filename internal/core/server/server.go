package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/zonegrid/internal/core/config"
	"github.com/mohammed-shakir/zonegrid/internal/core/health"
	middleware "github.com/mohammed-shakir/zonegrid/internal/core/middleware"
)

// Mounts are the handlers the root router serves besides the probes.
type Mounts struct {
	API     http.Handler
	Metrics http.Handler
	Ready   map[string]health.Pinger
}

// NewRouter wires middleware, probes, /metrics and the API under /api/v1.
func NewRouter(cfg config.Config, logger *slog.Logger, m Mounts) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(m.Ready, cfg.StoreOpTimeout))
	if m.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", m.Metrics)
	}
	if m.API != nil {
		r.Mount("/api/v1", middleware.Deadline(cfg.StoreOpTimeout)(m.API))
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
