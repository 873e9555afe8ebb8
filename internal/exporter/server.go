package exporter

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Handler serves the registry on /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}

// ListenAndServe serves metrics on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, reg *prometheus.Registry, log logger.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrExporter, err)
	}

	return Serve(ctx, ln, reg, log)
}

// Serve serves metrics on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, reg *prometheus.Registry, log logger.Logger) error {
	srv := &http.Server{
		Handler:           Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", ln.Addr().String()).Msg("Serving metrics")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(errors.ErrExporter, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrExporter, err)
	}

	return nil
}
