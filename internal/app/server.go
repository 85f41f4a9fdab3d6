package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authcore/internal/config"
	"authcore/internal/gateway"
	"authcore/pkg/logging"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

// Run builds the HTTP server around the gateway and serves until the
// context is cancelled or a termination signal arrives. In-flight network
// calls are not cancelled; callers time out at a higher layer.
func Run(ctx context.Context, cfg config.Config, services *Services) error {
	mux := http.NewServeMux()
	mux.HandleFunc(gateway.WellKnownPath, services.Gateway.WellKnownHandler())
	mux.Handle("/", services.Gateway.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Admitted requests land here; the actual API router is an
		// external collaborator mounted by the embedding service.
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info("App", "Gateway listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("App", "Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown failed: %w", err)
	}
	return nil
}
