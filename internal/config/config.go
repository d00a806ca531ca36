package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/relaypilot/relaypilot/internal/logger"
	"github.com/relaypilot/relaypilot/internal/worker"
)

// Error marks a configuration load or validation failure. Fatal at startup,
// reported and ignored at reload.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return "config " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Launch holds the settings shared by every worker section.
type Launch struct {
	Command         string            `toml:"command" mapstructure:"command"`
	WorkDir         string            `toml:"workdir" mapstructure:"workdir"`
	Env             map[string]string `toml:"env" mapstructure:"env"`
	StartupTimeout  time.Duration     `toml:"startup_timeout" mapstructure:"startup_timeout"`
	SupportsControl bool              `toml:"supports_control" mapstructure:"supports_control"`
	Required        *bool             `toml:"required" mapstructure:"required"`
}

// Relay configures the relay worker: the address it serves on plus how to
// launch it.
type Relay struct {
	Launch     `mapstructure:",squash"`
	Host       string        `toml:"host" mapstructure:"host"`
	Port       int           `toml:"port" mapstructure:"port"`
	Timeout    time.Duration `toml:"timeout" mapstructure:"timeout"`
	HealthPath string        `toml:"health_path" mapstructure:"health_path"`
}

// FileDrop configures the optional file-drop worker.
type FileDrop struct {
	Launch       `mapstructure:",squash"`
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	WatchPath    string        `toml:"watch_path" mapstructure:"watch_path"`
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	HealthURL    string        `toml:"health_url" mapstructure:"health_url"`
}

// Retry bounds automatic restarts and their backoff.
type Retry struct {
	MaxRestarts int           `toml:"max_restarts" mapstructure:"max_restarts"`
	BaseDelay   time.Duration `toml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	Window      time.Duration `toml:"window" mapstructure:"window"`
}

type Health struct {
	Interval     time.Duration `toml:"interval" mapstructure:"interval"`
	ProbeTimeout time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
}

type Shutdown struct {
	GracefulTimeout time.Duration `toml:"graceful_timeout" mapstructure:"graceful_timeout"`
}

type Server struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type Journal struct {
	DSN   string `toml:"dsn" mapstructure:"dsn"`
	Table string `toml:"table" mapstructure:"table"`
}

// Config is the top-level TOML document. It is immutable once validated;
// reloads replace the whole value, never patch it.
type Config struct {
	Version   string            `toml:"version" mapstructure:"version"`
	Relay     Relay             `toml:"relay" mapstructure:"relay"`
	FileDrop  FileDrop          `toml:"filedrop" mapstructure:"filedrop"`
	Endpoints map[string]string `toml:"endpoints" mapstructure:"endpoints"`
	Retry     Retry             `toml:"retry" mapstructure:"retry"`
	Log       logger.Config     `toml:"log" mapstructure:"log"`
	Health    Health            `toml:"health" mapstructure:"health"`
	Shutdown  Shutdown          `toml:"shutdown" mapstructure:"shutdown"`
	Server    Server            `toml:"server" mapstructure:"server"`
	Metrics   Metrics           `toml:"metrics" mapstructure:"metrics"`
	Journal   Journal           `toml:"journal" mapstructure:"journal"`
	Env       map[string]string `toml:"env" mapstructure:"env"`
}

// Load reads and validates the TOML document at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Relay.Host == "" {
		c.Relay.Host = "127.0.0.1"
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = 10 * time.Second
	}
	if c.Relay.HealthPath == "" {
		c.Relay.HealthPath = "/healthz"
	}
	if c.Relay.StartupTimeout == 0 {
		c.Relay.StartupTimeout = 5 * time.Second
	}
	if c.FileDrop.StartupTimeout == 0 {
		c.FileDrop.StartupTimeout = 5 * time.Second
	}
	if c.FileDrop.PollInterval == 0 {
		c.FileDrop.PollInterval = 2 * time.Second
	}
	if c.Retry.MaxRestarts == 0 {
		c.Retry.MaxRestarts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.Window == 0 {
		c.Retry.Window = 5 * time.Minute
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = 15 * time.Second
	}
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = 3 * time.Second
	}
	if c.Shutdown.GracefulTimeout == 0 {
		c.Shutdown.GracefulTimeout = 10 * time.Second
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
	if c.Journal.Table == "" {
		c.Journal.Table = "worker_events"
	}
}

// Validate enforces the document invariants: required keys present, the
// relay port a valid TCP port, every duration positive.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(c.Relay.Command) == "" {
		return fmt.Errorf("relay.command is required")
	}
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d outside valid TCP range", c.Relay.Port)
	}
	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("relay.timeout must be positive")
	}
	if c.Relay.StartupTimeout <= 0 {
		return fmt.Errorf("relay.startup_timeout must be positive")
	}
	if c.FileDrop.Enabled {
		if strings.TrimSpace(c.FileDrop.Command) == "" {
			return fmt.Errorf("filedrop.command is required when filedrop is enabled")
		}
		if strings.TrimSpace(c.FileDrop.WatchPath) == "" {
			return fmt.Errorf("filedrop.watch_path is required when filedrop is enabled")
		}
		if c.FileDrop.PollInterval <= 0 {
			return fmt.Errorf("filedrop.poll_interval must be positive")
		}
		if c.FileDrop.StartupTimeout <= 0 {
			return fmt.Errorf("filedrop.startup_timeout must be positive")
		}
	}
	for name, raw := range c.Endpoints {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint %q is not a valid URL: %q", name, raw)
		}
	}
	if c.Retry.MaxRestarts < 0 {
		return fmt.Errorf("retry.max_restarts must not be negative")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay exceeds retry.max_delay")
	}
	if c.Retry.Window <= 0 {
		return fmt.Errorf("retry.window must be positive")
	}
	if c.Health.Interval <= 0 || c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("health interval and probe_timeout must be positive")
	}
	if c.Shutdown.GracefulTimeout <= 0 {
		return fmt.Errorf("shutdown.graceful_timeout must be positive")
	}
	if c.FileDrop.HealthURL != "" {
		u, err := url.Parse(c.FileDrop.HealthURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("filedrop.health_url is not a valid URL: %q", c.FileDrop.HealthURL)
		}
	}
	return nil
}

// WorkerSpecs derives the static worker definitions from the document. The
// relay worker is always part of the set; the file-drop worker follows its
// toggle. Network settings and endpoint URLs reach the workers through
// their environment.
func (c *Config) WorkerSpecs() []worker.Spec {
	relayEnv := map[string]string{
		"RELAY_HOST":    c.Relay.Host,
		"RELAY_PORT":    strconv.Itoa(c.Relay.Port),
		"RELAY_TIMEOUT": c.Relay.Timeout.String(),
	}
	for name, u := range c.Endpoints {
		relayEnv["ENDPOINT_"+strings.ToUpper(name)] = u
	}
	for k, v := range c.Relay.Env {
		relayEnv[k] = v
	}

	relayHealth := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(c.Relay.Host, strconv.Itoa(c.Relay.Port)),
		Path:   c.Relay.HealthPath,
	}

	specs := []worker.Spec{{
		ID:              "relay",
		Enabled:         true,
		Required:        boolOr(c.Relay.Required, true),
		Command:         c.Relay.Command,
		WorkDir:         c.Relay.WorkDir,
		Env:             relayEnv,
		StartupTimeout:  c.Relay.StartupTimeout,
		SupportsControl: c.Relay.SupportsControl,
		HealthURL:       relayHealth.String(),
	}}

	dropEnv := map[string]string{
		"FILEDROP_WATCH_PATH":    c.FileDrop.WatchPath,
		"FILEDROP_POLL_INTERVAL": c.FileDrop.PollInterval.String(),
	}
	for k, v := range c.FileDrop.Env {
		dropEnv[k] = v
	}
	specs = append(specs, worker.Spec{
		ID:              "filedrop",
		Enabled:         c.FileDrop.Enabled,
		Required:        boolOr(c.FileDrop.Required, false),
		Command:         c.FileDrop.Command,
		WorkDir:         c.FileDrop.WorkDir,
		Env:             dropEnv,
		StartupTimeout:  c.FileDrop.StartupTimeout,
		SupportsControl: c.FileDrop.SupportsControl,
		HealthURL:       c.FileDrop.HealthURL,
	})
	return specs
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
