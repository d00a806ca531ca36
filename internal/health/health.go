// Package health probes worker liveness endpoints on a fixed interval.
// Findings are advisory: they surface unresponsive-but-alive workers to
// operators and never trigger restarts, which are keyed strictly off
// process exit.
package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// State classifies one probe outcome.
type State int

const (
	StateUnknown State = iota
	StateHealthy
	StateDegraded
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Target is one probe destination, supplied per tick so only currently
// running workers are probed.
type Target struct {
	WorkerID string
	URL      string
}

// Report is the outcome of a single probe.
type Report struct {
	WorkerID   string
	State      State
	StatusCode int
	Detail     string
	QueueDepth *int
	Elapsed    time.Duration
	At         time.Time
}

// livenessBody is the JSON document workers serve on their endpoint.
type livenessBody struct {
	Status     string `json:"status"`
	QueueDepth *int   `json:"queueDepth"`
}

// Monitor runs the probe loop.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	targets  func() []Target
	observer func(Report)
	logger   *slog.Logger
}

// New builds a monitor. targets is consulted every tick; observer receives
// every report and may be nil.
func New(interval, timeout time.Duration, targets func() []Target, observer func(Report)) *Monitor {
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		targets:  targets,
		observer: observer,
		logger:   slog.Default().With("component", "health"),
	}
}

// SetLogger replaces the monitor's logger.
func (m *Monitor) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l.With("component", "health")
	}
}

// Run probes until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	for _, tgt := range m.targets() {
		if tgt.URL == "" {
			continue
		}
		rep := m.Probe(ctx, tgt)
		switch rep.State {
		case StateHealthy:
			m.logger.Debug("probe ok", "worker", rep.WorkerID, "elapsed", rep.Elapsed)
		case StateDegraded:
			m.logger.Warn("worker degraded", "worker", rep.WorkerID, "status_code", rep.StatusCode, "detail", rep.Detail)
		case StateUnreachable:
			m.logger.Warn("worker unreachable", "worker", rep.WorkerID, "detail", rep.Detail)
		}
		if m.observer != nil {
			m.observer(rep)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Probe issues one bounded GET against the target.
func (m *Monitor) Probe(ctx context.Context, tgt Target) Report {
	rep := Report{WorkerID: tgt.WorkerID, At: time.Now()}

	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, tgt.URL, nil)
	if err != nil {
		rep.State = StateUnreachable
		rep.Detail = err.Error()
		return rep
	}
	begin := time.Now()
	resp, err := m.client.Do(req)
	rep.Elapsed = time.Since(begin)
	if err != nil {
		rep.State = StateUnreachable
		rep.Detail = err.Error()
		return rep
	}
	defer func() { _ = resp.Body.Close() }()

	rep.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		rep.State = StateHealthy
	} else {
		rep.State = StateDegraded
	}

	var body livenessBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		rep.Detail = body.Status
		rep.QueueDepth = body.QueueDepth
	}
	return rep
}
