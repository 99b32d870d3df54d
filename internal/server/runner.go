// Package server wires the labnet orchestrator together and runs it until
// shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroosing/labnet/internal/api"
	"github.com/jroosing/labnet/internal/api/handlers"
	"github.com/jroosing/labnet/internal/config"
)

const stopTimeout = 10 * time.Second

// Runner orchestrates labnet startup, the management API and shutdown.
type Runner struct {
	logger  *slog.Logger
	version string
}

// NewRunner creates a new runner with the given logger. version is
// reported by the API.
func NewRunner(logger *slog.Logger, version string) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, version: version}
}

// Run starts labnet and blocks until SIGINT or SIGTERM.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext opens the App, applies restore_on_start and serves the
// API until ctx is canceled or the listener fails.
//
// A failed restore is logged and does not stop startup; the resources it
// could not reconcile stay as they are.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	app, err := Open(ctx, cfg, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			r.logger.Warn("shutdown", "err", err)
		}
	}()

	if err := app.RestoreOnStart(ctx); err != nil {
		r.logger.Error("restore on start failed", "name", cfg.RestoreOnStart, "err", err)
	}

	r.logger.Info("labnet started",
		"modules", app.Registry.Modules(),
		"data_dir", cfg.Paths.DataDir,
		"switch", cfg.Switch.Provider,
		"runtime", cfg.Runtime.Provider,
		"dns_control", cfg.DNS.Control,
	)

	if !cfg.API.Enabled {
		<-ctx.Done()
		return nil
	}

	srv := api.New(cfg, handlers.Deps{
		Calls:   app.Registry,
		State:   app.State,
		History: app.History,
		Version: r.version,
	}, r.logger)

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("api listening", "addr", srv.Addr(), "static", cfg.API.Static)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("api shutdown", "err", err)
	}
	return nil
}
