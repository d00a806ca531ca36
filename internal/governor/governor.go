// Package governor rate-limits automatic worker restarts. Each worker has
// its own trailing window of restart timestamps; one worker exhausting its
// budget never affects another.
package governor

import "time"

// Governor tracks restart grants per worker id. It is owned by the
// supervisor's control loop and is not safe for concurrent use.
type Governor struct {
	maxRestarts int
	window      time.Duration
	windows     map[string][]time.Time
	lifetime    map[string]uint64
}

func New(maxRestarts int, window time.Duration) *Governor {
	return &Governor{
		maxRestarts: maxRestarts,
		window:      window,
		windows:     make(map[string][]time.Time),
		lifetime:    make(map[string]uint64),
	}
}

// Allow decides whether the worker may be restarted at now. Timestamps
// older than now-window are pruned first; if the remaining count has
// reached maxRestarts the request is denied and nothing is recorded,
// otherwise now is appended and the lifetime counter incremented.
// A maxRestarts of zero denies every request.
func (g *Governor) Allow(id string, now time.Time) bool {
	w := g.prune(id, now)
	if len(w) >= g.maxRestarts {
		return false
	}
	g.windows[id] = append(w, now)
	g.lifetime[id]++
	return true
}

// Recorded reports how many grants remain inside the worker's window at
// now. Used for backoff scaling and status reporting.
func (g *Governor) Recorded(id string, now time.Time) int {
	return len(g.prune(id, now))
}

// Exhausted reports whether a restart request at now would be denied.
func (g *Governor) Exhausted(id string, now time.Time) bool {
	return len(g.prune(id, now)) >= g.maxRestarts
}

// Lifetime returns the total number of grants ever issued for the worker.
// Never reset while the supervisor lives.
func (g *Governor) Lifetime(id string) uint64 {
	return g.lifetime[id]
}

// Reset clears the worker's window, the operator escape hatch after a
// fail-stop. The lifetime counter is preserved.
func (g *Governor) Reset(id string) {
	delete(g.windows, id)
}

func (g *Governor) prune(id string, now time.Time) []time.Time {
	w := g.windows[id]
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(w) && w[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w = append(w[:0], w[i:]...)
		g.windows[id] = w
	}
	return w
}
