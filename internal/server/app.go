package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jroosing/labnet/internal/allocator"
	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/delegation"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/history"
	"github.com/jroosing/labnet/internal/lockfile"
	"github.com/jroosing/labnet/internal/nameserver"
	"github.com/jroosing/labnet/internal/netdev"
	"github.com/jroosing/labnet/internal/reconciler"
	"github.com/jroosing/labnet/internal/unit"
)

// File names inside the data directory.
const (
	LockFileName    = "labnet.lock"
	HistoryFileName = "history.db"
)

// App is one wired orchestrator: store, providers, loaded modules and the
// state reconciler. It owns the data directory lock until Close.
type App struct {
	Config   *config.Config
	Registry *dispatch.Registry
	State    *reconciler.Reconciler
	History  *history.Store

	logger  *slog.Logger
	closers []func() error
}

// Open builds an App from a validated config.
//
// Startup order:
//  1. Lock the data directory
//  2. Open the store and the call history
//  3. Build the switch, unit and nameserver providers
//  4. Load netreserve, ipreserve and dns, then the remote modules
//  5. Re-provision the switches of existing networks
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Paths.SavesDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	lock, err := lockfile.Acquire(filepath.Join(cfg.Paths.DataDir, LockFileName))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, lock.Release)

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)

	hist, err := history.Open(filepath.Join(cfg.Paths.DataDir, HistoryFileName))
	if err != nil {
		return err
	}
	a.History = hist
	a.closers = append(a.closers, hist.Close)

	sw := a.buildSwitch()
	units, err := a.buildRuntime()
	if err != nil {
		return err
	}
	control := a.buildControl()

	a.Registry = dispatch.New(a.logger, hist)
	alloc := allocator.New(db, sw, a.logger)
	engine := delegation.New(delegation.Deps{
		DB:      db,
		Calls:   a.Registry,
		Units:   units,
		Switch:  sw,
		Control: control,
	}, cfg.DNS, cfg.Paths.WorkDir, a.logger)

	for _, m := range []dispatch.Module{alloc.Networks(), alloc.IPs(), engine} {
		if err := a.Registry.Load(ctx, m); err != nil {
			return err
		}
	}
	a.loadRemotes(ctx)

	a.State = reconciler.New(a.Registry, cfg.Paths.SavesDir, a.logger)
	return nil
}

func (a *App) buildSwitch() netdev.Provider {
	if a.Config.Switch.Provider == config.SwitchProviderMemory {
		a.logger.Warn("using in-memory switch, no bridges are created on the host")
		return netdev.NewMemory()
	}
	return netdev.NewOVS(a.Config.Switch, a.logger, nil)
}

func (a *App) buildRuntime() (unit.Runtime, error) {
	if a.Config.Runtime.Provider == config.RuntimeMemory {
		a.logger.Warn("using in-memory unit runtime, no containers are started")
		return unit.NewMemory(), nil
	}
	rt, err := unit.NewContainerd(a.Config.Runtime, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rt.Close)
	return rt, nil
}

func (a *App) buildControl() nameserver.Control {
	if a.Config.DNS.Control == config.NameserverMemory {
		return nameserver.NewMemory()
	}
	return nameserver.NewRNDC(a.Config.DNS, a.logger, nil)
}

// loadRemotes proxies the modules of every configured peer. An unreachable
// peer is logged and skipped.
func (a *App) loadRemotes(ctx context.Context) {
	for _, rc := range a.Config.Remotes {
		client := dispatch.NewClient(rc.URL, rc.User, rc.Password, rc.Timeout)
		if _, err := a.Registry.LoadRemote(ctx, client); err != nil {
			a.logger.Warn("remote unavailable", "remote", rc.Name, "url", rc.URL, "err", err)
		}
	}
}

// RestoreOnStart applies the configured save, if any.
func (a *App) RestoreOnStart(ctx context.Context) error {
	name := a.Config.RestoreOnStart
	if name == "" {
		return nil
	}
	rep, err := a.State.Restore(ctx, name)
	if err != nil {
		return err
	}
	a.logger.Info("restored saved state",
		"name", name,
		"started", rep.Started,
		"stopped", rep.Stopped,
		"unchanged", rep.Unchanged,
		"missing", rep.Missing,
		"failed", rep.Failed,
	)
	return nil
}

// Close releases everything Open acquired, in reverse order.
func (a *App) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	return errors.Join(errList...)
}
