package client

import "time"

// WorkerStatus mirrors the per-worker entry of the supervisor's status
// endpoint.
type WorkerStatus struct {
	ID               string     `json:"id"`
	State            string     `json:"state"`
	Running          bool       `json:"running"`
	PID              int        `json:"pid,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	StoppedAt        time.Time  `json:"stopped_at"`
	ExitCode         *int       `json:"exit_code,omitempty"`
	Signal           *string    `json:"signal,omitempty"`
	Restarts         uint64     `json:"restarts"`
	Required         bool       `json:"required"`
	RestartsInWindow int        `json:"restarts_in_window"`
	BudgetExhausted  bool       `json:"budget_exhausted"`
	Health           string     `json:"health,omitempty"`
}

// Status mirrors the supervisor's snapshot document.
type Status struct {
	State         string         `json:"state"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	Uptime        time.Duration  `json:"uptime"`
	ConfigVersion string         `json:"config_version"`
	Workers       []WorkerStatus `json:"workers"`
	TakenAt       time.Time      `json:"taken_at"`
}

// Healthz mirrors the liveness document.
type Healthz struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

type errorResp struct {
	Error string `json:"error"`
}
