package supervisor

import (
	"sync/atomic"
	"time"

	"github.com/relaypilot/relaypilot/internal/worker"
)

// State is the supervisor's top-level lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type stateValue struct{ v atomic.Int32 }

func (s *stateValue) set(st State) { s.v.Store(int32(st)) }
func (s *stateValue) get() State   { return State(s.v.Load()) }

// State returns the current top-level state.
func (s *Supervisor) State() State { return s.state.get() }

// WorkerStatus extends the worker's own value snapshot with the
// supervisor-side view: restart budget and last probe classification.
type WorkerStatus struct {
	worker.Status
	Required         bool   `json:"required"`
	RestartsInWindow int    `json:"restarts_in_window"`
	BudgetExhausted  bool   `json:"budget_exhausted"`
	Health           string `json:"health,omitempty"`
}

// Snapshot is a point-in-time copy of supervisor and worker state. It
// shares nothing with the live structures and is safe to hand out.
type Snapshot struct {
	State         string         `json:"state"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	Uptime        time.Duration  `json:"uptime"`
	ConfigVersion string         `json:"config_version"`
	Workers       []WorkerStatus `json:"workers"`
	TakenAt       time.Time      `json:"taken_at"`
}

type snapshotValue struct{ p atomic.Pointer[Snapshot] }

// publish rebuilds the snapshot from live state and swaps it in. Only the
// control loop (and the Run goroutine around it) may call this.
func (s *Supervisor) publish() {
	now := time.Now()
	snap := &Snapshot{
		State:         s.state.get().String(),
		PID:           s.pid,
		StartedAt:     s.startedAt,
		Uptime:        now.Sub(s.startedAt),
		ConfigVersion: s.mgr.Current().Version,
		TakenAt:       now,
	}
	for _, id := range s.order {
		w := s.workers[id]
		snap.Workers = append(snap.Workers, WorkerStatus{
			Status:           w.Status(),
			Required:         w.Spec().Required,
			RestartsInWindow: s.gov.Recorded(id, now),
			BudgetExhausted:  s.denied[id],
			Health:           s.healthStates[id],
		})
	}
	s.snap.p.Store(snap)
}

// Snapshot returns a fresh copy of the published state. Never blocks on
// supervisor internals and is safe under full concurrency.
func (s *Supervisor) Snapshot() Snapshot {
	sp := s.snap.p.Load()
	if sp == nil {
		return Snapshot{State: StateInitializing.String(), TakenAt: time.Now()}
	}
	out := *sp
	out.Workers = append([]WorkerStatus(nil), sp.Workers...)
	out.TakenAt = time.Now()
	if !sp.StartedAt.IsZero() {
		out.Uptime = time.Since(sp.StartedAt)
	}
	return out
}
