// Package handlers_test provides behavior tests for the API handlers package.
package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/labnet/internal/api/handlers"
	"github.com/jroosing/labnet/internal/api/models"
	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/history"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Result struct {
		Output json.RawMessage `json:"output"`
	} `json:"result"`
}

func createTestHandler(t *testing.T) (*handlers.Handler, *fakeCalls, *fakeState, *fakeHistory) {
	t.Helper()
	calls := &fakeCalls{}
	state := &fakeState{}
	hist := &fakeHistory{}
	cfg := &config.Config{Paths: config.PathsConfig{DataDir: t.TempDir()}}
	h := handlers.New(cfg, handlers.Deps{Calls: calls, State: state, History: hist, Version: "1.2.3"}, nil)
	return h, calls, state, hist
}

func performRequest(r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// ============================================================================
// Module Call Tests
// ============================================================================

func TestRun_JSONBody(t *testing.T) {
	h, calls, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/ipreserve/run/add_ip", "application/json",
		`{"ip_addr":"10.0.0.5","description":"web","id":7,"force":true,"skip":null}`)

	env := decodeEnvelope(t, w)
	assert.True(t, env.OK)
	assert.JSONEq(t, `{"id":1}`, string(env.Result.Output))
	require.Len(t, calls.seen, 1)
	assert.Equal(t, "ipreserve", calls.seen[0].module)
	assert.Equal(t, "add_ip", calls.seen[0].function)
	assert.Equal(t, map[string]string{"ip_addr": "10.0.0.5", "description": "web", "id": "7", "force": "true"}, calls.seen[0].args)
}

func TestRun_FormBody(t *testing.T) {
	h, calls, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/dns/run/add_zone", "application/x-www-form-urlencoded",
		"id=1&zone=test&direction=forward")

	env := decodeEnvelope(t, w)
	assert.True(t, env.OK)
	require.Len(t, calls.seen, 1)
	assert.Equal(t, map[string]string{"id": "1", "zone": "test", "direction": "forward"}, calls.seen[0].args)
}

func TestRun_EmptyBody(t *testing.T) {
	h, calls, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/netreserve/run/list_networks", "", "")

	env := decodeEnvelope(t, w)
	assert.True(t, env.OK)
	require.Len(t, calls.seen, 1)
	assert.Empty(t, calls.seen[0].args)
}

func TestRun_ErrorEnvelope(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/netreserve/run/add_network", "application/json",
		`{"net_addr":"10.0.0.0/24","description":"lab"}`)

	env := decodeEnvelope(t, w)
	assert.False(t, env.OK)
	assert.Equal(t, "10.0.0.0/24 network is already part of network 10.0.0.0/16", env.Error)
	assert.Equal(t, "conflict", env.Kind)
}

func TestRun_RejectsNestedValues(t *testing.T) {
	h, calls, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/dns/run/add_host", "application/json", `{"fqdn":["a","b"]}`)

	env := decodeEnvelope(t, w)
	assert.False(t, env.OK)
	assert.Equal(t, "validation", env.Kind)
	assert.Empty(t, calls.seen)
}

func TestRun_MalformedJSON(t *testing.T) {
	h, calls, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/api/v1/dns/run/add_host", "application/json", `{"fqdn":`)

	env := decodeEnvelope(t, w)
	assert.False(t, env.OK)
	assert.Equal(t, "validation", env.Kind)
	assert.Empty(t, calls.seen)
}

func TestListModules(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_modules/list", "", ""))
	assert.True(t, env.OK)
	assert.JSONEq(t, `{"netreserve":{"get_network":{"id":"INTEGER","_desc":"Get a network"}}}`, string(env.Result.Output))
}

// ============================================================================
// System Endpoint Tests
// ============================================================================

func TestHealth_ReturnsOK(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodGet, "/api/v1/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestVersion(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_version", "", ""))
	var v models.VersionResponse
	require.NoError(t, json.Unmarshal(env.Result.Output, &v))
	assert.Equal(t, "1.2.3", v.Version)
	assert.NotEmpty(t, v.GoVersion)
}

func TestSystemData(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_system_data", "", ""))
	assert.True(t, env.OK)
	var data models.SystemDataResponse
	require.NoError(t, json.Unmarshal(env.Result.Output, &data))
	assert.NotEmpty(t, data.Uptime)
	assert.GreaterOrEqual(t, data.GoRoutines, 1)
	assert.Positive(t, data.CPU.Count)
}

func TestHistory(t *testing.T) {
	h, _, _, hist := createTestHandler(t)
	hist.entries = []history.Entry{
		{Seq: 3, Module: "dns", Function: "add_zone"},
		{Seq: 2, Module: "netreserve", Function: "add_network"},
		{Seq: 1, Module: "ipreserve", Function: "add_ip"},
	}
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_history?limit=2", "", ""))
	assert.True(t, env.OK)
	var got []history.Entry
	require.NoError(t, json.Unmarshal(env.Result.Output, &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)

	env = decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_history?limit=zero", "", ""))
	assert.False(t, env.OK)
	assert.Equal(t, "validation", env.Kind)

	hist.err = errBoltClosed
	env = decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_history", "", ""))
	assert.False(t, env.OK)
	assert.Equal(t, "internal", env.Kind)
}

func TestHistory_Disabled(t *testing.T) {
	h := handlers.New(&config.Config{}, handlers.Deps{Calls: &fakeCalls{}, State: &fakeState{}}, nil)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_history", "", ""))
	assert.False(t, env.OK)
	assert.Equal(t, "not_found", env.Kind)
}

// ============================================================================
// Saved State Endpoint Tests
// ============================================================================

func TestListAll(t *testing.T) {
	h, _, _, _ := createTestHandler(t)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_servers/list_all", "", ""))
	assert.True(t, env.OK)
	assert.JSONEq(t, `{"servers":{"dns":[{"id":1,"name":"test","state":"running"}]}}`, string(env.Result.Output))
}

func TestSaveAndRestoreState(t *testing.T) {
	h, _, state, _ := createTestHandler(t)
	router := setupTestRouter(h)

	env := decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_servers/save_state/default", "", ""))
	assert.True(t, env.OK)
	assert.Equal(t, []string{"default"}, state.saved)

	env = decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_servers/save_state/bad.name", "", ""))
	assert.False(t, env.OK)
	assert.Equal(t, "validation", env.Kind)

	env = decodeEnvelope(t, performRequest(router, http.MethodGet, "/api/v1/_servers/restore_state/default", "", ""))
	assert.True(t, env.OK)
	assert.Equal(t, []string{"default"}, state.restored)
	assert.Contains(t, string(env.Result.Output), `"started":2`)
}
