package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypilot/relaypilot/internal/config"
	"github.com/relaypilot/relaypilot/internal/supervisor"
)

func writeConfig(t *testing.T, dir, version string) string {
	t.Helper()
	doc := fmt.Sprintf(`
version = %q

[relay]
port = 18080
command = "sleep 30"
startup_timeout = "50ms"

[health]
interval = "1h"

[shutdown]
graceful_timeout = "2s"
`, version)
	path := filepath.Join(dir, "relaypilot.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func startSupervisor(t *testing.T, path string) *supervisor.Supervisor {
	t.Helper()
	mgr := config.NewManager(path)
	_, err := mgr.Load()
	require.NoError(t, err)
	sup, err := supervisor.New(mgr, supervisor.Options{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(context.Background()) }()
	t.Cleanup(func() {
		sup.Shutdown()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			t.Error("supervisor did not stop")
		}
	})
	require.Eventually(t, func() bool {
		return sup.State() == supervisor.StateRunning
	}, 5*time.Second, 10*time.Millisecond)
	return sup
}

func newTestServer(t *testing.T, sup *supervisor.Supervisor, basePath string) *httptest.Server {
	t.Helper()
	rt := NewRouter(sup, basePath)
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url) // #nosec G107
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil) // #nosec G107
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "v1")
	sup := startSupervisor(t, path)
	srv := newTestServer(t, sup, "/api")

	var snap supervisor.Snapshot
	code := getJSON(t, srv.URL+"/api/status", &snap)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, "v1", snap.ConfigVersion)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, "relay", snap.Workers[0].ID)
	assert.True(t, snap.Workers[0].Running)
}

func TestWorkerStatusEndpoint(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "v1")
	sup := startSupervisor(t, path)
	srv := newTestServer(t, sup, "/api")

	var ws supervisor.WorkerStatus
	code := getJSON(t, srv.URL+"/api/status/relay", &ws)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "relay", ws.ID)

	var er errorResp
	code = getJSON(t, srv.URL+"/api/status/ghost", &er)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, er.Error, "ghost")
}

func TestHealthzEndpoint(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "v1")
	sup := startSupervisor(t, path)
	srv := newTestServer(t, sup, "")

	var hz healthzResp
	code := getJSON(t, srv.URL+"/healthz", &hz)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", hz.Status)
	assert.Equal(t, "running", hz.State)
}

func TestReloadEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "v1")
	sup := startSupervisor(t, path)
	srv := newTestServer(t, sup, "/api")

	writeConfig(t, dir, "v2")
	var ok okResp
	code := postJSON(t, srv.URL+"/api/reload", &ok)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, ok.OK)
	assert.Equal(t, "v2", sup.Snapshot().ConfigVersion)

	// A broken document keeps the previous configuration and reports 409.
	require.NoError(t, os.WriteFile(path, []byte("!!broken"), 0o600))
	var er errorResp
	code = postJSON(t, srv.URL+"/api/reload", &er)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "v2", sup.Snapshot().ConfigVersion)
}

func TestResetEndpointValidation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "v1")
	sup := startSupervisor(t, path)
	srv := newTestServer(t, sup, "/api")

	var er errorResp
	code := postJSON(t, srv.URL+"/api/workers/bad%2Fname/reset", &er)
	assert.Equal(t, http.StatusBadRequest, code)

	code = postJSON(t, srv.URL+"/api/workers/ghost/reset", &er)
	assert.Equal(t, http.StatusBadRequest, code)

	var ok okResp
	code = postJSON(t, srv.URL+"/api/workers/relay/reset", &ok)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, ok.OK)
}
