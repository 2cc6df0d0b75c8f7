package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kvarga/spatialwatch/internal/controlsurface"
)

// Run serves the control surface's HTTP API until ctx is cancelled,
// then shuts down gracefully. Grounded on the teacher's
// internal/core/server/server.go: a background ListenAndServe goroutine
// racing ctx.Done() against a server-error channel, with a bounded
// shutdown timeout.
func Run(ctx context.Context, addr string, logger *slog.Logger, surface *controlsurface.Surface, metricsHandler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(logger, surface, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
