// Package api_test provides behavior tests for the API package.
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/labnet/internal/api"
	"github.com/jroosing/labnet/internal/api/handlers"
	"github.com/jroosing/labnet/internal/api/models"
	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/reconciler"
)

func createTestConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Users:   map[string]string{"admin": "pw"},
		},
	}
}

func createTestDeps(t *testing.T) handlers.Deps {
	reg := dispatch.New(logging.Discard(), nil)
	return handlers.Deps{
		Calls:   reg,
		State:   reconciler.New(reg, t.TempDir(), logging.Discard()),
		Version: "test",
	}
}

func performRequest(r http.Handler, method, path string, body string, auth bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.SetBasicAuth("admin", "pw")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ============================================================================
// Server Creation Tests
// ============================================================================

func TestNew_PanicsOnNilConfig(t *testing.T) {
	assert.Panics(t, func() {
		api.New(nil, handlers.Deps{}, nil)
	})
}

func TestServer_Addr(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 9090

	server := api.New(cfg, createTestDeps(t), nil)

	assert.Equal(t, "0.0.0.0:9090", server.Addr())
	assert.NotNil(t, server.Engine())
}

// ============================================================================
// Routes Tests
// ============================================================================

func TestRoutes_HealthIsPublic(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/health", "", false)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRoutes_RequireCredentials(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	for _, path := range []string{"/api/v1/_version", "/api/v1/_modules/list", "/api/v1/_servers/list_all"} {
		w := performRequest(server.Engine(), http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = performRequest(server.Engine(), http.MethodGet, path, "", true)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRoutes_LocalBypass(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.AllowLocalBypass = true
	server := api.New(cfg, createTestDeps(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/_version", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_RunUnknownModule(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodPost, "/api/v1/netreserve/run/list_networks", `{}`, true)

	require.Equal(t, http.StatusOK, w.Code)
	var env dispatch.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.OK)
	assert.Equal(t, "module 'netreserve' not found", env.Error)
	assert.Equal(t, "not_found", env.Kind)
}

func TestRoutes_SaveStateRejectsBadName(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/_servers/save_state/a.b", "", true)

	var env dispatch.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.OK)
	assert.Equal(t, "validation", env.Kind)
}

func TestRoutes_MetricsEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)
	performRequest(server.Engine(), http.MethodGet, "/api/v1/health", "", false)

	w := performRequest(server.Engine(), http.MethodGet, "/metrics", "", false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "labnet_api_requests_total")
}

// ============================================================================
// Swagger Endpoint Tests
// ============================================================================

func TestRoutes_SwaggerEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodGet, "/swagger/index.html", "", false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(server.Engine(), http.MethodGet, "/swagger/doc.json", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/{module}/run/{function}")
}

// ============================================================================
// Static Page Tests
// ============================================================================

func TestStatic_ServesStatusPage(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Static = true
	server := api.New(cfg, createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodGet, "/", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>labnet</title>")

	w = performRequest(server.Engine(), http.MethodGet, "/servers/3", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>labnet</title>")

	w = performRequest(server.Engine(), http.MethodGet, "/api/v1/nonexistent", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_NotFoundWithoutStatic(t *testing.T) {
	server := api.New(createTestConfig(), createTestDeps(t), nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/nonexistent", "", true)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================================
// Server Lifecycle Tests
// ============================================================================

func TestServer_Shutdown(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Port = 0
	server := api.New(cfg, createTestDeps(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Shutdown(ctx))
}
