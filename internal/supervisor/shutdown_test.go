package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypilot/relaypilot/internal/worker"
)

func startWorker(t *testing.T, id, cmd string) *worker.Worker {
	t.Helper()
	w := worker.New(worker.Spec{ID: id, Command: cmd, StartupTimeout: 20 * time.Millisecond})
	require.NoError(t, w.Start(nil, nil, nil))
	require.NoError(t, w.WaitReady())
	return w
}

func TestShutdownAllGraceful(t *testing.T) {
	w := startWorker(t, "relay", "sleep 30")
	c := newCoordinator(5*time.Second, nil)

	outcomes := c.ShutdownAll([]*worker.Worker{w})
	assert.Equal(t, OutcomeGraceful, outcomes["relay"])
	assert.False(t, w.Alive())
}

func TestShutdownAllForcesStubbornWorker(t *testing.T) {
	// Ignores SIGTERM; only SIGKILL ends it.
	w := startWorker(t, "relay", `sh -c 'trap "" TERM; while true; do sleep 1; done'`)
	c := newCoordinator(300*time.Millisecond, nil)

	begin := time.Now()
	outcomes := c.ShutdownAll([]*worker.Worker{w})
	assert.Equal(t, OutcomeForced, outcomes["relay"])
	assert.False(t, w.Alive())
	assert.GreaterOrEqual(t, time.Since(begin), 300*time.Millisecond,
		"forced kill only after the graceful timeout")
}

func TestShutdownAllNotRunning(t *testing.T) {
	w := worker.New(worker.Spec{ID: "relay", Command: "sleep 1"})
	c := newCoordinator(time.Second, nil)

	outcomes := c.ShutdownAll([]*worker.Worker{w})
	assert.Equal(t, OutcomeNotRunning, outcomes["relay"])
}

func TestShutdownAllIdempotent(t *testing.T) {
	relay := startWorker(t, "relay", "sleep 30")
	drop := startWorker(t, "filedrop", "sleep 30")
	c := newCoordinator(5*time.Second, nil)
	workers := []*worker.Worker{relay, drop}

	var wg sync.WaitGroup
	results := make([]map[string]Outcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.ShutdownAll(workers)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Len(t, r, 2)
		assert.Equal(t, OutcomeGraceful, r["relay"])
		assert.Equal(t, OutcomeGraceful, r["filedrop"])
	}
	assert.False(t, relay.Alive())
	assert.False(t, drop.Alive())
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, "graceful_exit", OutcomeGraceful.String())
	assert.Equal(t, "forced_exit", OutcomeForced.String())
	assert.Equal(t, "not_running", OutcomeNotRunning.String())
}
