package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Run serves HTTP until a termination signal arrives or the listener fails,
// then releases every resource within app.server.shutdown_timeout_seconds.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	l, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		a.shutdown()
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}

	slog.Info("http server listening", "address", l.Addr().String())
	errChan := a.Serve(l)

	select {
	case err = <-errChan:
		slog.Error("http server stopped unexpectedly", "error", err)
	case <-ctx.Done():
		slog.Info("termination signal received")
	}

	if stopErr := a.shutdown(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}

	slog.Info("application gracefully shutdown")
	return err
}

// Serve runs the HTTP server on l. The channel yields the serve error, if any,
// and is closed when the server stops.
func (a *App) Serve(l net.Listener) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		if err := a.httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	return errChan
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.GetSecond("app.server.shutdown_timeout_seconds"))
	defer cancel()

	return a.Stop(ctx)
}

// Stop drains the HTTP server, waits for background event publishing and the
// audit consumer, then closes resources in reverse order of acquisition.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to close resources", "name", "HTTP Server", "error", err)
		errs = append(errs, err)
	}

	if err := a.goroutine.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "background task failed", "error", err)
		errs = append(errs, err)
	}

	for _, closer := range a.closers {
		if err := closer.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", closer.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}

	return errors.Join(errs...)
}
