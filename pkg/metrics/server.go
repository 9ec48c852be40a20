package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

const listenerShutdownTimeout = 5 * time.Second

// Listen serves the default registry at /metrics on addr for worker processes
// that have no HTTP router of their own. The returned func shuts it down.
func Listen(ctx context.Context, logg *logger.Logger, addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: listenerShutdownTimeout}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logg.WithField(ctx, "addr", addr), "metrics listener failed", err)
		}
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "metrics listener started")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
