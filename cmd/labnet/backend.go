package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/lockfile"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/server"
)

// backend is where client commands send their calls: an in-process App
// over the local data directory, or a running instance's API.
type backend interface {
	Run(ctx context.Context, module, function string, args map[string]string) (any, error)
	Catalog(ctx context.Context) (dispatch.Catalog, error)
	ListAll(ctx context.Context) (any, error)
	Save(ctx context.Context, name string) (any, error)
	Restore(ctx context.Context, name string) (any, error)
	Close() error
}

func openBackend(ctx context.Context) (backend, error) {
	if remoteURL != "" {
		return &remoteBackend{client: dispatch.NewClient(remoteURL, remoteUser, remotePass, 0)}, nil
	}
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	app, err := server.Open(ctx, cfg, logging.Discard())
	if errors.Is(err, lockfile.ErrLocked) {
		return nil, fmt.Errorf("%w; is labnet serve running? use --url", err)
	}
	if err != nil {
		return nil, err
	}
	return &localBackend{app: app}, nil
}

type localBackend struct {
	app *server.App
}

func (b *localBackend) Run(ctx context.Context, module, function string, args map[string]string) (any, error) {
	return b.app.Registry.Invoke(ctx, module, function, args)
}

func (b *localBackend) Catalog(ctx context.Context) (dispatch.Catalog, error) {
	return b.app.Registry.Catalog(), nil
}

func (b *localBackend) ListAll(ctx context.Context) (any, error) {
	all, err := b.app.State.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"servers": all}, nil
}

func (b *localBackend) Save(ctx context.Context, name string) (any, error) {
	return b.app.State.Save(ctx, name)
}

func (b *localBackend) Restore(ctx context.Context, name string) (any, error) {
	return b.app.State.Restore(ctx, name)
}

func (b *localBackend) Close() error { return b.app.Close() }

type remoteBackend struct {
	client *dispatch.Client
}

func (b *remoteBackend) Run(ctx context.Context, module, function string, args map[string]string) (any, error) {
	return b.client.Run(ctx, module, function, args)
}

func (b *remoteBackend) Catalog(ctx context.Context) (dispatch.Catalog, error) {
	return b.client.Catalog(ctx)
}

func (b *remoteBackend) ListAll(ctx context.Context) (any, error) {
	return b.client.Get(ctx, "/api/v1/_servers/list_all")
}

func (b *remoteBackend) Save(ctx context.Context, name string) (any, error) {
	return b.client.Get(ctx, "/api/v1/_servers/save_state/"+url.PathEscape(name))
}

func (b *remoteBackend) Restore(ctx context.Context, name string) (any, error) {
	return b.client.Get(ctx, "/api/v1/_servers/restore_state/"+url.PathEscape(name))
}

func (b *remoteBackend) Close() error { return nil }
