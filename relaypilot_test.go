package relaypilot

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
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	doc := `
version = "facade-test"

[relay]
host = "127.0.0.1"
port = 18090
timeout = "5s"
command = "sleep 30"
startup_timeout = "50ms"

[retry]
max_restarts = 2
base_delay = "10ms"
max_delay = "50ms"
window = "300s"

[health]
interval = "1h"
probe_timeout = "1s"

[shutdown]
graceful_timeout = "2s"
`
	path := filepath.Join(dir, "relaypilot.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func waitRunning(t *testing.T, s *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == "running" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("supervisor never reached running, state=%s", s.Snapshot().State)
}

func TestEmbeddedSupervisorLifecycle(t *testing.T) {
	path := writeTestConfig(t, t.TempDir())

	s, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "facade-test", s.Config().Version)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	waitRunning(t, s)

	snap := s.Snapshot()
	assert.Equal(t, "facade-test", snap.ConfigVersion)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, "relay", snap.Workers[0].ID)
	assert.True(t, snap.Workers[0].Running)

	srv := httptest.NewServer(Handler(s, "/api"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		State   string `json:"state"`
		Workers []struct {
			ID string `json:"id"`
		} `json:"workers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "running", got.State)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, "relay", got.Workers[0].ID)

	s.Shutdown()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	assert.Equal(t, "stopped", s.Snapshot().State)
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := writeTestConfig(t, t.TempDir())
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "facade-test", cfg.Version)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestNewJournalRecorder(t *testing.T) {
	dsn := fmt.Sprintf("sqlite://%s", filepath.Join(t.TempDir(), "journal.db"))
	rec, err := NewJournalRecorder(dsn, "events", nil)
	require.NoError(t, err)
	rec.Close()

	_, err = NewJournalRecorder("bogus://nowhere", "events", nil)
	require.Error(t, err)
}
