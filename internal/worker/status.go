package worker

import "time"

// Status is a point-in-time value copy of one worker's state. Safe to hand
// out: it shares nothing with the live worker.
type Status struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Signal    *string   `json:"signal,omitempty"`
	Restarts  uint64    `json:"restarts"`
}

// Status snapshots the worker under its lock.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		ID:        w.spec.ID,
		State:     w.state.String(),
		StartedAt: w.startedAt,
		StoppedAt: w.stoppedAt,
		Restarts:  w.restarts,
	}
	switch w.state {
	case StateStarting, StateRunning, StateStopping:
		st.Running = true
		st.PID = w.pidLocked()
	}
	if w.exitCode != nil {
		c := *w.exitCode
		st.ExitCode = &c
	}
	if w.exitSignal != nil {
		s := *w.exitSignal
		st.Signal = &s
	}
	return st
}
