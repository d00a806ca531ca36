package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// LaunchError reports a worker that could not be spawned or that failed
// before acknowledging readiness.
type LaunchError struct {
	WorkerID string
	Err      error
}

func (e *LaunchError) Error() string {
	return "launch " + e.WorkerID + ": " + e.Err.Error()
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitEvent is delivered exactly once per run when the child is reaped.
// It is the sole trigger for restart evaluation.
type ExitEvent struct {
	WorkerID string
	Code     int
	Signal   string
	At       time.Time
}

// Worker wraps one supervised child process. The supervisor drives its
// lifecycle; other components only see the capability surface (Alive,
// Send, Terminate, Kill) and value snapshots.
type Worker struct {
	spec Spec

	mu         sync.Mutex
	cmd        *exec.Cmd
	state      State
	startedAt  time.Time
	stoppedAt  time.Time
	exitCode   *int
	exitSignal *string
	restarts   uint64
	stopping   bool
	stdin      io.WriteCloser
	errW       io.WriteCloser
	waitDone   chan struct{}
	readyCh    chan error
	onExit     func(ExitEvent)
}

func New(spec Spec) *Worker { return &Worker{spec: spec} }

func (w *Worker) ID() string { return w.spec.ID }

func (w *Worker) Spec() Spec { return w.spec }

// OnExit registers the exit callback. Register before the first Start; the
// callback runs on the reaper goroutine and must hand off quickly.
func (w *Worker) OnExit(fn func(ExitEvent)) {
	w.mu.Lock()
	w.onExit = fn
	w.mu.Unlock()
}

// Start spawns the child with the composed environment. Worker stdout is
// scanned for control frames, the rest forwarded to outW; stderr goes to
// errW. Both writers are owned by the worker from here on and closed when
// the run ends (or on spawn failure). Start returns once the process
// exists; readiness is awaited separately via WaitReady.
func (w *Worker) Start(env []string, outW, errW io.WriteCloser) error {
	w.mu.Lock()
	switch w.state {
	case StateStarting, StateRunning, StateStopping:
		w.mu.Unlock()
		closeAll(outW, errW)
		return &LaunchError{WorkerID: w.spec.ID, Err: errors.New("already running")}
	}
	w.mu.Unlock()

	cmd := w.spec.BuildCommand()
	cmd.Env = env
	if w.spec.WorkDir != "" {
		cmd.Dir = w.spec.WorkDir
	}
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		closeAll(outW, errW)
		return &LaunchError{WorkerID: w.spec.ID, Err: err}
	}

	// A plain pipe instead of StdoutPipe: the child inherits the write end,
	// so the scanner sees EOF exactly when the child closes stdout and Wait
	// cannot race the drain.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(outW, errW)
		return &LaunchError{WorkerID: w.spec.ID, Err: err}
	}
	cmd.Stdout = pw
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		closeAll(outW, errW)
		return &LaunchError{WorkerID: w.spec.ID, Err: err}
	}
	_ = pw.Close()

	w.mu.Lock()
	w.cmd = cmd
	w.state = StateStarting
	w.startedAt = time.Now()
	w.stoppedAt = time.Time{}
	w.exitCode = nil
	w.exitSignal = nil
	w.stopping = false
	w.stdin = stdin
	w.errW = errW
	w.waitDone = make(chan struct{})
	w.readyCh = make(chan error, 1)
	readyCh := w.readyCh
	waitDone := w.waitDone
	w.mu.Unlock()

	go w.scanOutput(pr, outW, readyCh)
	go w.reap(cmd, waitDone)
	return nil
}

// WaitReady blocks until the worker acknowledges readiness, reports a
// startup error, exits, or the startup window closes. The window closing
// without any handshake is success: workers without a readiness protocol
// are assumed healthy.
func (w *Worker) WaitReady() error {
	w.mu.Lock()
	readyCh := w.readyCh
	waitDone := w.waitDone
	w.mu.Unlock()
	if readyCh == nil {
		return &LaunchError{WorkerID: w.spec.ID, Err: errors.New("not started")}
	}

	timer := time.NewTimer(w.spec.StartupTimeout)
	defer timer.Stop()
	select {
	case err := <-readyCh:
		if err != nil {
			return &LaunchError{WorkerID: w.spec.ID, Err: err}
		}
		w.markRunning()
		return nil
	case <-waitDone:
		// A ready frame that raced the exit still counts as acknowledged;
		// the exit event carries the rest.
		select {
		case err := <-readyCh:
			if err != nil {
				return &LaunchError{WorkerID: w.spec.ID, Err: err}
			}
			return nil
		default:
		}
		return &LaunchError{WorkerID: w.spec.ID, Err: fmt.Errorf("exited before ready: %s", w.exitDescription())}
	case <-timer.C:
		w.markRunning()
		return nil
	}
}

// Send writes a control frame to the worker's stdin channel. Workers that
// do not speak the protocol ignore the call silently.
func (w *Worker) Send(m Message) error {
	if !w.spec.SupportsControl {
		return nil
	}
	w.mu.Lock()
	stdin := w.stdin
	state := w.state
	w.mu.Unlock()
	if stdin == nil || state == StateExited || state == StateNotStarted {
		return fmt.Errorf("worker %s: no control channel", w.spec.ID)
	}
	b, err := m.Encode()
	if err != nil {
		return err
	}
	if _, err := stdin.Write(b); err != nil {
		return fmt.Errorf("worker %s: control write: %w", w.spec.ID, err)
	}
	return nil
}

// Alive reports whether the child process currently exists.
func (w *Worker) Alive() bool {
	w.mu.Lock()
	state := w.state
	pid := w.pidLocked()
	w.mu.Unlock()
	switch state {
	case StateStarting, StateRunning, StateStopping:
		return pid > 0 && processAlive(pid)
	}
	return false
}

// PID returns the live process id, zero when no run is active.
func (w *Worker) PID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateStarting, StateRunning, StateStopping:
		return w.pidLocked()
	}
	return 0
}

// Terminate signals the whole process group to stop.
func (w *Worker) Terminate() error {
	pid := w.PID()
	if pid <= 0 {
		return nil
	}
	return terminateGroup(pid)
}

// Kill forcibly ends the whole process group.
func (w *Worker) Kill() error {
	pid := w.PID()
	if pid <= 0 {
		return nil
	}
	return killGroup(pid)
}

// MarkStopping flags a pending stop request so the exit is not treated as
// a crash.
func (w *Worker) MarkStopping() {
	w.mu.Lock()
	w.stopping = true
	if w.state == StateStarting || w.state == StateRunning {
		w.state = StateStopping
	}
	w.mu.Unlock()
}

// StopRequested reports whether the current run was asked to stop.
func (w *Worker) StopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopping
}

// WaitDone returns a channel closed when the current run has been reaped.
// Before any run it is already closed.
func (w *Worker) WaitDone() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.waitDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.waitDone
}

// IncRestarts bumps the lifetime restart counter and returns it.
func (w *Worker) IncRestarts() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restarts++
	return w.restarts
}

func (w *Worker) markRunning() {
	w.mu.Lock()
	if w.state == StateStarting {
		w.state = StateRunning
	}
	w.mu.Unlock()
}

func (w *Worker) pidLocked() int {
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

func (w *Worker) exitDescription() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitSignal != nil {
		return "signal " + *w.exitSignal
	}
	if w.exitCode != nil {
		return fmt.Sprintf("exit code %d", *w.exitCode)
	}
	return "unknown exit"
}

// scanOutput splits worker stdout into lines, consumes control frames and
// forwards everything else to the capture writer.
func (w *Worker) scanOutput(r io.ReadCloser, outW io.WriteCloser, readyCh chan error) {
	defer func() {
		_ = r.Close()
		if outW != nil {
			_ = outW.Close()
		}
	}()
	dest := io.Writer(os.Stdout)
	if outW != nil {
		dest = outW
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if msg, ok := ParseMessage(line); ok {
			switch msg.Type {
			case MessageReady:
				select {
				case readyCh <- nil:
				default:
				}
			case MessageError:
				detail := msg.Error
				if detail == "" {
					detail = "worker reported startup error"
				}
				select {
				case readyCh <- errors.New(detail):
				default:
				}
			}
			continue
		}
		_, _ = dest.Write(line)
		_, _ = dest.Write([]byte{'\n'})
	}
}

// reap owns Wait for one run: it records the exit status, releases the run
// resources, closes waitDone and fires the exit event exactly once.
func (w *Worker) reap(cmd *exec.Cmd, waitDone chan struct{}) {
	err := cmd.Wait()
	code, sig := exitStatus(cmd, err)
	at := time.Now()

	w.mu.Lock()
	w.state = StateExited
	w.stoppedAt = at
	w.exitCode = &code
	if sig != "" {
		s := sig
		w.exitSignal = &s
	}
	stdin := w.stdin
	w.stdin = nil
	errW := w.errW
	w.errW = nil
	onExit := w.onExit
	w.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
	close(waitDone)
	if onExit != nil {
		onExit(ExitEvent{WorkerID: w.spec.ID, Code: code, Signal: sig, At: at})
	}
}

func closeAll(cs ...io.WriteCloser) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}
