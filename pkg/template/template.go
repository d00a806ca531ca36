// Package template generates starter configuration documents for the
// supervisor. The install scripts call `relaypilot init` to drop one of
// these next to the binary before first start.
package template

import (
	"fmt"
	"os"
	"strings"
	texttemplate "text/template"
)

// Type selects the starter document variant.
type Type string

const (
	// TypeMinimal covers only the relay worker with defaults.
	TypeMinimal Type = "minimal"
	// TypeFull includes every section with commented guidance.
	TypeFull Type = "full"
)

// Params feeds the document templates.
type Params struct {
	Version      string
	RelayCommand string
	RelayPort    int
	FileDrop     bool
	WatchPath    string
}

const minimalDoc = `version = "{{.Version}}"

[relay]
host = "127.0.0.1"
port = {{.RelayPort}}
timeout = "10s"
command = "{{.RelayCommand}}"
startup_timeout = "5s"
supports_control = true
`

const fullDoc = minimalDoc + `
[filedrop]
enabled = {{.FileDrop}}
command = "relay-filedrop"
watch_path = "{{.WatchPath}}"
poll_interval = "2s"
startup_timeout = "5s"
supports_control = true

[endpoints]
# upstream = "https://relay.example.com/ingest"

[retry]
max_restarts = 3
base_delay = "500ms"
max_delay = "30s"
window = "5m"

[log]
level = "info"
format = "text"
# file = "/var/log/relaypilot/relaypilot.log"
# dir = "/var/log/relaypilot/workers"

[health]
interval = "15s"
probe_timeout = "3s"

[shutdown]
graceful_timeout = "10s"

[server]
enabled = true
listen = "127.0.0.1:8080"
base_path = "/api"

[metrics]
enabled = false
listen = "127.0.0.1:9090"

[journal]
# dsn = "/var/lib/relaypilot/journal.db"
table = "worker_events"

[env]
# RELAY_LOG_LEVEL = "info"
`

// DefaultParams returns sensible starter values.
func DefaultParams() Params {
	return Params{
		Version:      "1",
		RelayCommand: "relay-server",
		RelayPort:    9400,
		FileDrop:     false,
		WatchPath:    "/var/spool/relaypilot/drop",
	}
}

// SupportedTypes lists the variants Render accepts.
func SupportedTypes() []string {
	return []string{string(TypeMinimal), string(TypeFull)}
}

// Render produces the TOML starter document for the given variant.
func Render(t Type, p Params) (string, error) {
	var doc string
	switch t {
	case TypeMinimal:
		doc = minimalDoc
	case TypeFull, "":
		doc = fullDoc
	default:
		return "", fmt.Errorf("unknown template type %q (supported: %s)", t, strings.Join(SupportedTypes(), ", "))
	}
	tmpl, err := texttemplate.New("config").Parse(doc)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, p); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Write renders the document to path. An existing file is never
// overwritten unless force is set.
func Write(path string, t Type, p Params, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	doc, err := Render(t, p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(doc), 0o600)
}
