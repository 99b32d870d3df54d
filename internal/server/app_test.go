package server

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/lockfile"
	"github.com/jroosing/labnet/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			DataDir:  filepath.Join(dir, "data"),
			WorkDir:  filepath.Join(dir, "work"),
			SavesDir: filepath.Join(dir, "saves"),
		},
		Switch:  config.SwitchConfig{Provider: config.SwitchProviderMemory},
		Runtime: config.RuntimeConfig{Provider: config.RuntimeMemory},
		DNS:     config.DNSConfig{Control: config.NameserverMemory, ReloadIntervalRaw: "1ms"},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func openApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestOpen_LoadsModules(t *testing.T) {
	app := openApp(t, testConfig(t))

	assert.ElementsMatch(t, []string{"dns", "ipreserve", "netreserve"}, app.Registry.Modules())
	assert.Contains(t, app.Registry.Stateful(), "dns")
	assert.NotNil(t, app.State)
	assert.NotNil(t, app.History)
}

func TestOpen_LocksDataDir(t *testing.T) {
	cfg := testConfig(t)
	app, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	_, err = Open(context.Background(), cfg, logging.Discard())
	assert.ErrorIs(t, err, lockfile.ErrLocked)

	require.NoError(t, app.Close())
	app = openApp(t, cfg)
	assert.NotNil(t, app.Registry)
}

func TestOpen_UnreachableRemoteIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remotes = []config.RemoteConfig{{Name: "peer", URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}}

	app := openApp(t, cfg)

	assert.Len(t, app.Registry.Modules(), 3)
}

func TestApp_CallsAreRecorded(t *testing.T) {
	app := openApp(t, testConfig(t))
	ctx := context.Background()

	_, err := app.Registry.Invoke(ctx, "netreserve", "add_network", map[string]string{"net_addr": "10.0.0.0/24", "description": "lab", "switch": "sw0"})
	require.NoError(t, err)
	_, err = app.Registry.Invoke(ctx, "netreserve", "add_network", map[string]string{"net_addr": "10.0.0.0/25", "description": "overlap"})
	require.Error(t, err)

	entries, err := app.History.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "add_network", entries[0].Function)
	assert.NotEmpty(t, entries[0].Error)
	assert.Empty(t, entries[1].Error)
}

func TestApp_RestoreOnStart(t *testing.T) {
	cfg := testConfig(t)
	app := openApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, app.RestoreOnStart(ctx))

	_, err := app.Registry.Invoke(ctx, "netreserve", "add_network", map[string]string{"net_addr": "10.0.0.0/24", "description": "lab", "switch": "sw0"})
	require.NoError(t, err)
	_, err = app.Registry.Invoke(ctx, "dns", "add_server", map[string]string{"ip_addr": "10.0.0.2", "description": "root", "domain": "test"})
	require.NoError(t, err)

	_, err = app.State.Save(ctx, "boot")
	require.NoError(t, err)
	_, err = app.Registry.Invoke(ctx, "dns", "stop_server", map[string]string{"id": "1"})
	require.NoError(t, err)

	cfg.RestoreOnStart = "boot"
	require.NoError(t, app.RestoreOnStart(ctx))

	all, err := app.State.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all["dns"], 1)
	assert.Equal(t, dispatch.StateRunning, all["dns"][0].State)
}

func TestRunWithContext_StopsOnCancel(t *testing.T) {
	for _, apiEnabled := range []bool{false, true} {
		cfg := testConfig(t)
		cfg.API.Enabled = apiEnabled
		cfg.API.Port = 0

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		err := NewRunner(logging.Discard(), "test").RunWithContext(ctx, cfg)
		cancel()
		require.NoError(t, err)

		// The lock is released on return.
		app := openApp(t, cfg)
		assert.NotNil(t, app.Registry)
	}
}

func TestOpen_HealsSwitchesOnce(t *testing.T) {
	cfg := testConfig(t)
	app, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	_, err = app.Registry.Invoke(context.Background(), "netreserve", "add_network", map[string]string{"net_addr": "10.0.0.0/24", "description": "lab", "switch": "sw0"})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	app, err = Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, 1, strings.Count(buf.String(), "self-heal done"))
}
