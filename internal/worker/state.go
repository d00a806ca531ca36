package worker

// State is the lifecycle of one supervised worker instance. Transitions are
// driven by the supervisor: NotStarted -> Starting -> Running -> Stopping ->
// Exited, with Starting -> Exited when a worker dies before its readiness
// window closes.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}
