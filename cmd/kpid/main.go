package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/kpi-extractor/internal/app"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	os.Exit(code)
}

// run serves until ctx is done and returns the process exit code. Every
// component is closed before it returns.
func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) int {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	janitor, err := a.Stager.StartJanitor(cfg.Staging.SweepSpec, cfg.Staging.MaxAge)
	if err != nil {
		logger.Error("staging janitor", "error", err)
		return 1
	}
	defer janitor.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.NewServer(a.Pipeline, a.Store, cfg.Server.MaxRequestBytes, logger).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http.listen", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http serve", "error", err)
			return 1
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("stopped")
	return 0
}
