// Package handlers implements the REST API endpoint handlers for labnet.
//
// REST API Endpoints:
//
// Module calls:
//   - POST /api/v1/:module/run/:function - Run a module function (JSON or form body)
//   - GET /api/v1/_modules/list - Catalog of every reachable module
//
// System:
//   - GET /api/v1/health - Health check status
//   - GET /api/v1/_version - Build version
//   - GET /api/v1/_system_data - Host memory, CPU and disk usage
//   - GET /api/v1/_history - Recent mutating calls
//
// Saved state:
//   - GET /api/v1/_servers/list_all - Live resources per stateful module
//   - GET /api/v1/_servers/save_state/:name - Save resource states
//   - GET /api/v1/_servers/restore_state/:name - Drive resources back to a save
//
// Every endpoint except /health answers with the dispatch envelope
// {ok, result:{output}, error, kind}. Failed calls still return 200; the
// envelope carries the error.
//
// Authentication:
//
// HTTP Basic credentials from api.users are required for every endpoint except
// /health. Loopback clients skip authentication when api.allow_local_bypass is
// set.
//
// @title labnet API
// @version 1.0
// @description Orchestration API for disposable lab networks.
// @BasePath /api/v1
// @securityDefinitions.basic BasicAuth
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/history"
	"github.com/jroosing/labnet/internal/reconciler"
)

// Dispatcher runs module functions and describes them.
type Dispatcher interface {
	Invoke(ctx context.Context, module, function string, args map[string]string) (any, error)
	Catalog() dispatch.Catalog
}

// StateManager saves and restores resource states.
type StateManager interface {
	ListAll(ctx context.Context) (map[string][]dispatch.Resource, error)
	Save(ctx context.Context, name string) (reconciler.Snapshot, error)
	Restore(ctx context.Context, name string) (reconciler.Report, error)
}

// HistoryReader lists recorded calls, newest first.
type HistoryReader interface {
	Recent(limit int) ([]history.Entry, error)
}

// Deps are the components the handlers serve. History may be nil.
type Deps struct {
	Calls   Dispatcher
	State   StateManager
	History HistoryReader
	Version string
}

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	deps      Deps
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new Handler.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
	}
}
