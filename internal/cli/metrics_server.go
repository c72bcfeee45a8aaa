package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mmynk/ledger/internal/metrics"
	"github.com/mmynk/ledger/internal/middleware"
)

const shutdownTimeout = 5 * time.Second

// startMetricsServer serves /metrics on addr until the returned stop func
// is called.
func startMetricsServer(addr string, m *metrics.LedgerMetrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           middleware.Logging(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server starting", "address", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}, nil
}
