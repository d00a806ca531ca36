package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"  Debug ", slog.LevelDebug},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseLevel(c.in), "input %q", c.in)
	}
}

func TestNewSloggerJSONFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaypilot.log")

	lg := Config{Format: "json", File: path, Level: "debug"}.NewSlogger()
	lg.Debug("hello", "worker", "relay")

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "relay", rec["worker"])
}

func TestNewSloggerLevelFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaypilot.log")

	lg := Config{Format: "json", File: path, Level: "warn"}.NewSlogger()
	lg.Info("quiet")
	lg.Warn("loud")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "quiet")
	assert.Contains(t, string(b), "loud")
}

func TestColorHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewColorTextHandler(&buf, nil))
	lg.Error("boom")

	out := buf.String()
	assert.Contains(t, out, "\033[31m")
	assert.Contains(t, out, "boom")
}

func TestWritersCreateCaptureFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: filepath.Join(dir, "logs")}

	out, errW, err := cfg.Writers("relay")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, errW)

	_, err = out.Write([]byte("stdout line\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("stderr line\n"))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.NoError(t, errW.Close())

	b, err := os.ReadFile(filepath.Join(dir, "logs", "relay.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "stdout line\n", string(b))

	b, err = os.ReadFile(filepath.Join(dir, "logs", "relay.stderr.log"))
	require.NoError(t, err)
	assert.Equal(t, "stderr line\n", string(b))
}

func TestWritersNoDirConfigured(t *testing.T) {
	out, errW, err := Config{}.Writers("relay")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, errW)
}
