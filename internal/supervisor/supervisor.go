// Package supervisor owns the worker set and the single control loop that
// mutates it. Worker exits, restart timers, health reports, reload and
// shutdown requests all arrive as events on that loop; everything outside
// it sees only immutable snapshots or issues commands through channels.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/relaypilot/relaypilot/internal/config"
	"github.com/relaypilot/relaypilot/internal/env"
	"github.com/relaypilot/relaypilot/internal/governor"
	"github.com/relaypilot/relaypilot/internal/health"
	"github.com/relaypilot/relaypilot/internal/journal"
	"github.com/relaypilot/relaypilot/internal/logger"
	"github.com/relaypilot/relaypilot/internal/metrics"
	"github.com/relaypilot/relaypilot/internal/worker"
)

// Options carries the optional collaborators wired in by the caller.
type Options struct {
	Logger  *slog.Logger
	Journal *journal.Recorder
}

// Supervisor drives the worker set through Initializing -> Running ->
// ShuttingDown -> Stopped. Construct with New, drive with Run; Shutdown,
// Reload and Snapshot are safe from any goroutine.
type Supervisor struct {
	mgr     *config.Manager
	logger  *slog.Logger
	jrnl    *journal.Recorder
	logCfg  logger.Config
	overlay *env.Overlay

	workers map[string]*worker.Worker
	order   []string
	gov     *governor.Governor
	retry   config.Retry
	coord   *coordinator

	exitCh    chan worker.ExitEvent
	restartCh chan string
	healthCh  chan health.Report
	publishCh chan struct{}
	reloadCh  chan chan error
	resetCh   chan resetRequest

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	restartTimers map[string]*time.Timer
	denied        map[string]bool
	healthStates  map[string]string

	state     stateValue
	snap      snapshotValue
	startedAt time.Time
	pid       int
}

type resetRequest struct {
	id    string
	reply chan error
}

// New builds the supervisor from the manager's current configuration. The
// manager must have completed its initial Load.
func New(mgr *config.Manager, opts Options) (*Supervisor, error) {
	cfg := mgr.Current()
	if cfg == nil {
		return nil, errors.New("supervisor: configuration not loaded")
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}

	s := &Supervisor{
		mgr:           mgr,
		logger:        l.With("component", "supervisor"),
		jrnl:          opts.Journal,
		logCfg:        cfg.Log,
		overlay:       env.New(cfg.Env),
		workers:       make(map[string]*worker.Worker),
		gov:           governor.New(cfg.Retry.MaxRestarts, cfg.Retry.Window),
		retry:         cfg.Retry,
		coord:         newCoordinator(cfg.Shutdown.GracefulTimeout, l),
		exitCh:        make(chan worker.ExitEvent, 64),
		restartCh:     make(chan string, 8),
		healthCh:      make(chan health.Report, 8),
		publishCh:     make(chan struct{}, 1),
		reloadCh:      make(chan chan error),
		resetCh:       make(chan resetRequest),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		restartTimers: make(map[string]*time.Timer),
		denied:        make(map[string]bool),
		healthStates:  make(map[string]string),
	}
	for _, spec := range cfg.WorkerSpecs() {
		if !spec.Enabled {
			continue
		}
		w := worker.New(spec)
		w.OnExit(func(e worker.ExitEvent) {
			select {
			case s.exitCh <- e:
			case <-s.done:
			}
		})
		s.workers[spec.ID] = w
		s.order = append(s.order, spec.ID)
	}
	if len(s.workers) == 0 {
		return nil, errors.New("supervisor: no enabled workers")
	}
	return s, nil
}

// Run starts every enabled worker, then serves the control loop until the
// context is cancelled or Shutdown is called, then stops all workers. It
// returns nil on clean shutdown and the launch error when a required
// worker could not complete its initial start.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	s.startedAt = time.Now()
	s.pid = os.Getpid()
	s.state.set(StateInitializing)
	s.publish()

	if err := s.startAll(); err != nil {
		s.logger.Error("startup failed", "error", err)
		s.Shutdown()
		s.cancelRestartTimers()
		s.coord.ShutdownAll(s.workerList())
		s.state.set(StateStopped)
		s.publish()
		return err
	}
	s.state.set(StateRunning)
	s.publish()
	s.logger.Info("supervisor running", "workers", s.order, "pid", s.pid)

	hctx, hcancel := context.WithCancel(context.Background())
	defer hcancel()
	cfg := s.mgr.Current()
	mon := health.New(cfg.Health.Interval, cfg.Health.ProbeTimeout, s.healthTargets, func(rep health.Report) {
		select {
		case s.healthCh <- rep:
		case <-s.stopCh:
		}
	})
	mon.SetLogger(s.logger)
	go mon.Run(hctx)

	s.loop(ctx)

	// The loop may have exited on context cancellation or panic; release
	// any timer goroutine still waiting to deliver.
	s.Shutdown()
	s.state.set(StateShuttingDown)
	s.publish()
	s.cancelRestartTimers()
	hcancel()

	outcomes := s.coord.ShutdownAll(s.workerList())
	for id, oc := range outcomes {
		metrics.SetWorkerUp(id, false)
		if oc == OutcomeForced {
			metrics.IncForcedKill(id)
			s.jrnl.Record(journal.Event{Type: journal.EventForcedKill, Worker: id, Detail: "graceful timeout exceeded"})
		}
	}

	s.state.set(StateStopped)
	s.publish()
	s.jrnl.Record(journal.Event{Type: journal.EventShutdown, PID: s.pid})
	s.logger.Info("supervisor stopped", "outcomes", outcomeStrings(outcomes))
	return nil
}

// Shutdown requests graceful termination. Idempotent; the actual work
// happens on the Run goroutine.
func (s *Supervisor) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once Run has returned.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Reload re-reads the configuration file. Accepted only while Running; an
// invalid document leaves the active configuration untouched.
func (s *Supervisor) Reload() error {
	reply := make(chan error, 1)
	select {
	case s.reloadCh <- reply:
	case <-s.done:
		return errors.New("supervisor stopped")
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return errors.New("supervisor stopped")
	}
}

// ResetWorker clears a fail-stopped worker's restart window and starts it
// again, the operator escape hatch after the governor gave up.
func (s *Supervisor) ResetWorker(id string) error {
	req := resetRequest{id: id, reply: make(chan error, 1)}
	select {
	case s.resetCh <- req:
	case <-s.done:
		return errors.New("supervisor stopped")
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return errors.New("supervisor stopped")
	}
}

// loop is the control loop. A panic anywhere in event handling is treated
// as fatal: it is logged and the return turns into shutdown.
func (s *Supervisor) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("control loop panic, shutting down", "panic", r)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, shutting down")
			return
		case <-s.stopCh:
			s.logger.Info("shutdown requested")
			return
		case e := <-s.exitCh:
			s.handleExit(e)
		case id := <-s.restartCh:
			s.handleRestartDue(id)
		case rep := <-s.healthCh:
			s.handleHealth(rep)
		case <-s.publishCh:
			s.publish()
		case reply := <-s.reloadCh:
			reply <- s.handleReload()
		case req := <-s.resetCh:
			req.reply <- s.handleReset(req.id)
		}
	}
}

// startAll launches every worker and waits for all readiness outcomes. A
// failure is fatal only for required workers; optional workers fall to the
// governed restart path.
func (s *Supervisor) startAll() error {
	started := make([]*worker.Worker, 0, len(s.order))
	for _, id := range s.order {
		w := s.workers[id]
		if err := s.spawn(w); err != nil {
			if w.Spec().Required {
				return fmt.Errorf("required worker %s: %w", id, err)
			}
			s.logger.Error("optional worker failed to spawn", "worker", id, "error", err)
			s.scheduleRestart(id, time.Now())
			continue
		}
		started = append(started, w)
	}

	var (
		mu    sync.Mutex
		fatal error
		wg    sync.WaitGroup
	)
	for _, w := range started {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.WaitReady(); err != nil {
				if w.Spec().Required {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					return
				}
				// The exit event drives the governed restart.
				s.logger.Error("optional worker failed during startup", "worker", w.ID(), "error", err)
			}
		}(w)
	}
	wg.Wait()
	return fatal
}

// spawn starts one worker process with its capture writers and composed
// environment and records the start.
func (s *Supervisor) spawn(w *worker.Worker) error {
	id := w.ID()
	outW, errW, err := s.logCfg.Writers(id)
	if err != nil {
		s.logger.Warn("log capture unavailable", "worker", id, "error", err)
	}
	if err := w.Start(s.overlay.Merge(w.Spec().Env), outW, errW); err != nil {
		return err
	}
	s.logger.Info("worker started", "worker", id, "pid", w.PID())
	metrics.IncStart(id)
	metrics.SetWorkerUp(id, true)
	s.jrnl.Record(journal.Event{Type: journal.EventStart, Worker: id, PID: w.PID()})
	return nil
}

func (s *Supervisor) handleExit(e worker.ExitEvent) {
	w, ok := s.workers[e.WorkerID]
	if !ok {
		return
	}
	s.logger.Warn("worker exited", "worker", e.WorkerID, "code", e.Code, "signal", e.Signal)
	metrics.SetWorkerUp(e.WorkerID, false)
	metrics.IncStop(e.WorkerID)
	code := e.Code
	s.jrnl.Record(journal.Event{
		Type: journal.EventExit, OccurredAt: e.At, Worker: e.WorkerID,
		ExitCode: &code, Signal: e.Signal,
	})
	s.publish()

	if w.StopRequested() || s.denied[e.WorkerID] {
		return
	}
	s.scheduleRestart(e.WorkerID, e.At)
}

// scheduleRestart consults the governor and either arms a delayed restart
// timer or fail-stops the worker.
func (s *Supervisor) scheduleRestart(id string, now time.Time) {
	if !s.gov.Allow(id, now) {
		s.denied[id] = true
		metrics.IncRestartDenied(id)
		s.jrnl.Record(journal.Event{Type: journal.EventRestartDenied, Worker: id, Detail: "restart window exhausted"})
		s.logger.Error("restart denied, window exhausted; worker stays down until reset",
			"worker", id, "max_restarts", s.retry.MaxRestarts, "window", s.retry.Window)
		s.publish()
		return
	}
	attempt := s.workers[id].IncRestarts()
	delay := s.backoff(s.gov.Recorded(id, now))
	metrics.IncRestart(id)
	s.jrnl.Record(journal.Event{Type: journal.EventRestart, Worker: id, Detail: fmt.Sprintf("attempt %d", attempt)})
	s.logger.Warn("restart scheduled", "worker", id, "attempt", attempt, "delay", delay)
	s.publish()

	s.cancelRestartTimer(id)
	s.restartTimers[id] = time.AfterFunc(delay, func() {
		select {
		case s.restartCh <- id:
		case <-s.stopCh:
		}
	})
}

func (s *Supervisor) handleRestartDue(id string) {
	delete(s.restartTimers, id)
	w, ok := s.workers[id]
	if !ok || w.StopRequested() {
		return
	}
	if err := s.spawn(w); err != nil {
		s.logger.Error("restart spawn failed", "worker", id, "error", err)
		s.scheduleRestart(id, time.Now())
		return
	}
	s.publish()
	go func() {
		if err := w.WaitReady(); err != nil {
			s.logger.Warn("worker failed readiness after restart", "worker", id, "error", err)
			return
		}
		select {
		case s.publishCh <- struct{}{}:
		default:
		}
	}()
}

func (s *Supervisor) handleHealth(rep health.Report) {
	s.healthStates[rep.WorkerID] = rep.State.String()
	for _, st := range []health.State{health.StateHealthy, health.StateDegraded, health.StateUnreachable} {
		metrics.SetHealthState(rep.WorkerID, st.String(), st == rep.State)
	}
	metrics.ObserveProbeDuration(rep.WorkerID, rep.Elapsed.Seconds())
	s.publish()
}

func (s *Supervisor) handleReload() error {
	if s.state.get() != StateRunning {
		return fmt.Errorf("reload rejected in state %s", s.state.get())
	}
	cfg, err := s.mgr.Reload()
	if err != nil {
		s.logger.Error("reload failed, previous configuration stays active", "error", err)
		return err
	}
	s.overlay = env.New(cfg.Env)
	for _, id := range s.order {
		w := s.workers[id]
		if !w.Spec().SupportsControl || !w.Alive() {
			continue
		}
		if err := w.Send(worker.Message{Type: worker.MessageReload}); err != nil {
			s.logger.Warn("reload dispatch failed", "worker", id, "error", err)
		}
	}
	s.jrnl.Record(journal.Event{Type: journal.EventReload, Detail: cfg.Version})
	s.logger.Info("configuration reloaded", "version", cfg.Version)
	s.publish()
	return nil
}

func (s *Supervisor) handleReset(id string) error {
	w, ok := s.workers[id]
	if !ok {
		return fmt.Errorf("unknown worker %q", id)
	}
	s.gov.Reset(id)
	delete(s.denied, id)
	s.logger.Info("restart window reset", "worker", id)
	if w.Alive() {
		s.publish()
		return nil
	}
	if err := s.spawn(w); err != nil {
		return err
	}
	s.publish()
	go func() {
		_ = w.WaitReady()
		select {
		case s.publishCh <- struct{}{}:
		default:
		}
	}()
	return nil
}

// backoff scales the restart delay with the number of grants currently in
// the window: base * 2^(n-1), capped at max.
func (s *Supervisor) backoff(inWindow int) time.Duration {
	if inWindow < 1 {
		inWindow = 1
	}
	shift := uint(inWindow - 1)
	if shift > 16 {
		shift = 16
	}
	d := s.retry.BaseDelay << shift
	if d > s.retry.MaxDelay || d <= 0 {
		d = s.retry.MaxDelay
	}
	return d
}

func (s *Supervisor) cancelRestartTimer(id string) {
	if t, ok := s.restartTimers[id]; ok {
		t.Stop()
		delete(s.restartTimers, id)
	}
}

func (s *Supervisor) cancelRestartTimers() {
	for id := range s.restartTimers {
		s.cancelRestartTimer(id)
	}
}

func (s *Supervisor) workerList() []*worker.Worker {
	out := make([]*worker.Worker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.workers[id])
	}
	return out
}

// healthTargets reports the probe destinations for the current tick. It
// runs on the monitor goroutine and touches only immutable specs and the
// published snapshot.
func (s *Supervisor) healthTargets() []health.Target {
	snap := s.Snapshot()
	running := make(map[string]bool, len(snap.Workers))
	for _, ws := range snap.Workers {
		running[ws.ID] = ws.Running && ws.State == worker.StateRunning.String()
	}
	var targets []health.Target
	for _, id := range s.order {
		spec := s.workers[id].Spec()
		if spec.HealthURL != "" && running[id] {
			targets = append(targets, health.Target{WorkerID: id, URL: spec.HealthURL})
		}
	}
	return targets
}
