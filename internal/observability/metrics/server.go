package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
// It blocks until ctx is cancelled or the listener fails.
func StartServer(ctx context.Context, addr string, exp *Exporter) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	if exp == nil {
		return errors.New("metrics exporter is nil")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
