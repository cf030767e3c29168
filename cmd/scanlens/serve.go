package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/zombor/scanlens/internal/scan"
)

// shutdownTimeout bounds how long in-flight requests get to finish
const shutdownTimeout = 15 * time.Second

// serve runs handler on ln until ctx is done. It then stops accepting
// requests and drains the ones in flight before waiting for payment
// dispatches, so no scan can start a dispatch once the wait has begun.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, pipeline *scan.Pipeline) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		slog.Warn("Server shutdown incomplete", "error", err)
	}

	pipeline.WaitDispatches()
	return err
}
