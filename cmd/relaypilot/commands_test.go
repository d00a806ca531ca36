package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypilot/relaypilot/internal/config"
	pkgclient "github.com/relaypilot/relaypilot/pkg/client"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newFakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pkgclient.Healthz{Status: "ok", State: "running"})
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pkgclient.Status{
			State:         "running",
			ConfigVersion: "v1",
			Workers:       []pkgclient.WorkerStatus{{ID: "relay", Running: true}},
		})
	})
	mux.HandleFunc("GET /api/status/relay", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pkgclient.WorkerStatus{ID: "relay", Running: true})
	})
	mux.HandleFunc("POST /api/reload", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("POST /api/workers/relay/reset", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "relaypilot dev")
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaypilot.toml")
	out, err := execute(t, "init", "--output", path, "--relay-command", "my-relay", "--relay-port", "9500")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-relay", cfg.Relay.Command)
	assert.Equal(t, 9500, cfg.Relay.Port)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaypilot.toml")
	_, err := execute(t, "init", "--output", path)
	require.NoError(t, err)

	_, err = execute(t, "init", "--output", path)
	require.Error(t, err)

	_, err = execute(t, "init", "--output", path, "--force")
	require.NoError(t, err)
}

func TestStatusCommand(t *testing.T) {
	srv := newFakeDaemon(t)
	out, err := execute(t, "status", "--api-url", srv.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, `"config_version": "v1"`)
	assert.Contains(t, out, `"relay"`)
}

func TestStatusSingleWorker(t *testing.T) {
	srv := newFakeDaemon(t)
	out, err := execute(t, "status", "--api-url", srv.URL+"/api", "--worker", "relay")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "relay"`)
}

func TestReloadCommand(t *testing.T) {
	srv := newFakeDaemon(t)
	out, err := execute(t, "reload", "--api-url", srv.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, "reloaded")
}

func TestResetCommand(t *testing.T) {
	srv := newFakeDaemon(t)
	out, err := execute(t, "reset", "relay", "--api-url", srv.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, "worker relay reset")

	_, err = execute(t, "reset", "--api-url", srv.URL+"/api")
	require.Error(t, err, "worker argument is required")
}

func TestClientCommandsRequireDaemon(t *testing.T) {
	_, err := execute(t, "status", "--api-url", "http://127.0.0.1:1/api", "--api-timeout", "100ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestServeFailsOnMissingConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
