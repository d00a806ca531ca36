// Package relaypilot is the embedding facade: a stable public surface over
// the internal supervisor for programs that want to run it in-process
// instead of through the relaypilot binary.
package relaypilot

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaypilot/relaypilot/internal/config"
	"github.com/relaypilot/relaypilot/internal/journal"
	"github.com/relaypilot/relaypilot/internal/journal/factory"
	"github.com/relaypilot/relaypilot/internal/metrics"
	iapi "github.com/relaypilot/relaypilot/internal/server"
	"github.com/relaypilot/relaypilot/internal/supervisor"
	"github.com/relaypilot/relaypilot/internal/worker"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Spec = worker.Spec

type Snapshot = supervisor.Snapshot

type WorkerStatus = supervisor.WorkerStatus

type Options = supervisor.Options

type JournalSink = journal.Sink

// Supervisor is a thin facade over the internal supervisor plus its
// configuration manager.
type Supervisor struct {
	mgr   *config.Manager
	inner *supervisor.Supervisor
}

// New loads the configuration at path and constructs the supervisor.
func New(configPath string) (*Supervisor, error) {
	return NewWithOptions(configPath, Options{})
}

// NewWithOptions is New with an explicit logger and journal recorder.
func NewWithOptions(configPath string, opts Options) (*Supervisor, error) {
	mgr := config.NewManager(configPath)
	if _, err := mgr.Load(); err != nil {
		return nil, err
	}
	inner, err := supervisor.New(mgr, opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{mgr: mgr, inner: inner}, nil
}

// Run blocks until shutdown. See supervisor.Supervisor.Run.
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

func (s *Supervisor) Shutdown()                  { s.inner.Shutdown() }
func (s *Supervisor) Done() <-chan struct{}      { return s.inner.Done() }
func (s *Supervisor) Reload() error              { return s.inner.Reload() }
func (s *Supervisor) ResetWorker(id string) error { return s.inner.ResetWorker(id) }
func (s *Supervisor) Snapshot() Snapshot         { return s.inner.Snapshot() }
func (s *Supervisor) Config() *Config            { return s.mgr.Current() }

// LoadConfig parses and validates a configuration document.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewJournalRecorder builds a recorder for the given sink DSN, for passing
// into NewWithOptions.
func NewJournalRecorder(dsn, table string, l *slog.Logger) (*journal.Recorder, error) {
	sink, err := factory.NewSinkFromDSN(dsn, table)
	if err != nil {
		return nil, err
	}
	return journal.NewRecorder(sink, l), nil
}

// Handler returns the status API as an http.Handler that can be mounted in
// any server or mux.
func Handler(s *Supervisor, basePath string) http.Handler {
	return iapi.NewRouter(s.inner, basePath).Handler()
}

// NewHTTPServer starts a standalone HTTP server exposing the status API.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics on addr using the default registry. It runs
// in the caller goroutine and returns the listen error.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
