package handlers_test

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/api/handlers"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/history"
	"github.com/jroosing/labnet/internal/reconciler"
)

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/_version", h.Version)
	api.GET("/_system_data", h.SystemData)
	api.GET("/_history", h.History)
	api.GET("/_modules/list", h.ListModules)
	api.GET("/_servers/list_all", h.ListAll)
	api.GET("/_servers/save_state/:name", h.SaveState)
	api.GET("/_servers/restore_state/:name", h.RestoreState)
	api.POST("/:module/run/:function", h.Run)

	return r
}

type invocation struct {
	module, function string
	args             map[string]string
}

// fakeCalls records invocations and answers add_network with a conflict.
type fakeCalls struct {
	seen []invocation
}

func (f *fakeCalls) Invoke(ctx context.Context, module, function string, args map[string]string) (any, error) {
	f.seen = append(f.seen, invocation{module, function, args})
	if function == "add_network" {
		return nil, errs.New(errs.Conflict, "10.0.0.0/24 network is already part of network 10.0.0.0/16")
	}
	return map[string]any{"id": 1}, nil
}

func (f *fakeCalls) Catalog() dispatch.Catalog {
	return dispatch.Catalog{"netreserve": {"get_network": {"id": "INTEGER", "_desc": "Get a network"}}}
}

type fakeState struct {
	saved    []string
	restored []string
}

func (f *fakeState) ListAll(ctx context.Context) (map[string][]dispatch.Resource, error) {
	return map[string][]dispatch.Resource{"dns": {{ID: 1, Name: "test", State: dispatch.StateRunning}}}, nil
}

func (f *fakeState) Save(ctx context.Context, name string) (reconciler.Snapshot, error) {
	if name == "bad.name" {
		return reconciler.Snapshot{}, errs.New(errs.Validation, "Invalid character in save name '%s'", name)
	}
	f.saved = append(f.saved, name)
	return reconciler.Snapshot{Version: reconciler.SnapshotVersion, Name: name}, nil
}

func (f *fakeState) Restore(ctx context.Context, name string) (reconciler.Report, error) {
	f.restored = append(f.restored, name)
	return reconciler.Report{Name: name, Found: true, Started: 2}, nil
}

type fakeHistory struct {
	entries []history.Entry
	err     error
}

func (f *fakeHistory) Recent(limit int) ([]history.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

var errBoltClosed = errors.New("database not open")
