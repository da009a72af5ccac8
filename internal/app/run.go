package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/reportbundle/internal/ctxlog"
)

const shutdownTimeout = 5 * time.Second

// Serve listens on the configured address and serves the HTTP API until ctx
// is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	addr := a.config.Server.Listen
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.ServeListener(ctx, lis)
}

// ServeListener serves the HTTP API on lis until ctx is cancelled.
func (a *App) ServeListener(ctx context.Context, lis net.Listener) error {
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Report server starting", "address", fmt.Sprintf("http://%s", lis.Addr()))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("🛑 Shutting down report server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Report server shutdown failed", "error", err)
		return err
	}
	<-errCh
	logger.Debug("Report server shut down gracefully.")
	return nil
}
