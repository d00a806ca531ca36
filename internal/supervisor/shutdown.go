package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/relaypilot/relaypilot/internal/worker"
)

// Outcome is the terminal result of stopping one worker.
type Outcome int

const (
	OutcomeNotRunning Outcome = iota
	OutcomeGraceful
	OutcomeForced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGraceful:
		return "graceful_exit"
	case OutcomeForced:
		return "forced_exit"
	default:
		return "not_running"
	}
}

// coordinator stops every worker concurrently, escalating to SIGKILL when
// a worker outlives the graceful timeout. ShutdownAll is idempotent: the
// termination sequence runs once, every caller waits on the same
// completion and sees the same outcomes.
type coordinator struct {
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	done chan struct{}

	mu       sync.Mutex
	outcomes map[string]Outcome
}

func newCoordinator(timeout time.Duration, l *slog.Logger) *coordinator {
	if l == nil {
		l = slog.Default()
	}
	return &coordinator{
		timeout:  timeout,
		logger:   l.With("component", "shutdown"),
		done:     make(chan struct{}),
		outcomes: make(map[string]Outcome),
	}
}

// ShutdownAll resolves once every worker has reached a terminal state.
func (c *coordinator) ShutdownAll(workers []*worker.Worker) map[string]Outcome {
	c.once.Do(func() { go c.run(workers) })
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Outcome, len(c.outcomes))
	for id, oc := range c.outcomes {
		out[id] = oc
	}
	return out
}

func (c *coordinator) run(workers []*worker.Worker) {
	defer close(c.done)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			c.stopOne(w)
		}(w)
	}
	wg.Wait()
}

// stopOne walks one worker through StopRequested and waits for its exit,
// forcing the kill on timeout.
func (c *coordinator) stopOne(w *worker.Worker) {
	id := w.ID()
	if !w.Alive() {
		c.record(id, OutcomeNotRunning)
		return
	}
	w.MarkStopping()
	if w.Spec().SupportsControl {
		if err := w.Send(worker.Message{Type: worker.MessageShutdown}); err != nil {
			c.logger.Debug("shutdown message not delivered", "worker", id, "error", err)
		}
	}
	if err := w.Terminate(); err != nil {
		c.logger.Warn("terminate failed", "worker", id, "error", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-w.WaitDone():
		c.logger.Info("worker stopped gracefully", "worker", id)
		c.record(id, OutcomeGraceful)
	case <-timer.C:
		c.logger.Warn("graceful timeout exceeded, killing", "worker", id, "timeout", c.timeout)
		if err := w.Kill(); err != nil {
			c.logger.Error("kill failed", "worker", id, "error", err)
		}
		<-w.WaitDone()
		c.record(id, OutcomeForced)
	}
}

func (c *coordinator) record(id string, oc Outcome) {
	c.mu.Lock()
	c.outcomes[id] = oc
	c.mu.Unlock()
}

func outcomeStrings(m map[string]Outcome) map[string]string {
	out := make(map[string]string, len(m))
	for id, oc := range m {
		out[id] = oc.String()
	}
	return out
}
