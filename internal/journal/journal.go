// Package journal appends worker lifecycle events to an external sink for
// audit and analytics. Writes are best-effort and happen off the control
// loop; a failing sink degrades to log lines, never to supervision errors.
package journal

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart         EventType = "start"
	EventExit          EventType = "exit"
	EventRestart       EventType = "restart"
	EventRestartDenied EventType = "restart_denied"
	EventForcedKill    EventType = "forced_kill"
	EventReload        EventType = "reload"
	EventShutdown      EventType = "shutdown"
)

// Event is one lifecycle record. Worker is empty for supervisor-level
// events (reload, shutdown).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Worker     string    `json:"worker,omitempty"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Signal     string    `json:"signal,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for journal events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

const (
	recorderBuffer = 256
	sendTimeout    = 5 * time.Second
)

// Recorder decouples the control loop from sink latency: Record enqueues
// and returns immediately, a single writer goroutine drains the queue. A
// nil *Recorder is valid and drops everything, so callers never branch on
// whether a journal is configured.
type Recorder struct {
	sink   Sink
	ch     chan Event
	done   chan struct{}
	logger *slog.Logger
}

func NewRecorder(sink Sink, l *slog.Logger) *Recorder {
	if l == nil {
		l = slog.Default()
	}
	r := &Recorder{
		sink:   sink,
		ch:     make(chan Event, recorderBuffer),
		done:   make(chan struct{}),
		logger: l.With("component", "journal"),
	}
	go r.run()
	return r
}

// Record enqueues the event. When the queue is full the event is dropped
// with a warning; the control loop must never stall on the journal.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("journal queue full, event dropped", "event", string(e.Type), "worker", e.Worker)
	}
}

// Close drains pending events and closes the sink when it is a Closer.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
	if c, ok := r.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.logger.Warn("journal sink close failed", "error", err)
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := r.sink.Send(ctx, e); err != nil {
			r.logger.Warn("journal write failed", "event", string(e.Type), "worker", e.Worker, "error", err)
		}
		cancel()
	}
}
