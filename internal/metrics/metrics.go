package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register. Helpers
// no-op until registration succeeds so the supervisor can run with metrics
// disabled at zero cost.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of successful worker starts.",
		}, []string{"worker"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of governor-granted automatic restarts.",
		}, []string{"worker"},
	)
	workerRestartDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "restart_denied_total",
			Help:      "Number of restarts denied by the rate window.",
		}, []string{"worker"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of supervised stops, graceful or forced.",
		}, []string{"worker"},
	)
	workerForcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "forced_kills_total",
			Help:      "Number of workers killed after the graceful timeout.",
		}, []string{"worker"},
	)
	workerUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "up",
			Help:      "Whether the worker process is currently running.",
		}, []string{"worker"},
	)
	workerHealthState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "health_state",
			Help:      "Last probe classification per worker (1 = active state).",
		}, []string{"worker", "state"},
	)
	workerStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "state_transitions_total",
			Help:      "Number of worker lifecycle transitions.",
		}, []string{"worker", "from", "to"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relaypilot",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Liveness probe round trip time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"},
	)
)

// Register registers all collectors with r. Safe to call repeatedly; an
// AlreadyRegisteredError from a shared registry is tolerated.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		workerStarts, workerRestarts, workerRestartDenied, workerStops,
		workerForcedKills, workerUp, workerHealthState, workerStateTransitions,
		probeDuration, workerCPUPercent, workerMemoryBytes,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer; the caller wires it into a server.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(worker string) {
	if regOK.Load() {
		workerStarts.WithLabelValues(worker).Inc()
	}
}

func IncRestart(worker string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(worker).Inc()
	}
}

func IncRestartDenied(worker string) {
	if regOK.Load() {
		workerRestartDenied.WithLabelValues(worker).Inc()
	}
}

func IncStop(worker string) {
	if regOK.Load() {
		workerStops.WithLabelValues(worker).Inc()
	}
}

func IncForcedKill(worker string) {
	if regOK.Load() {
		workerForcedKills.WithLabelValues(worker).Inc()
	}
}

func SetWorkerUp(worker string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		workerUp.WithLabelValues(worker).Set(v)
	}
}

func SetHealthState(worker, state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1.0
		}
		workerHealthState.WithLabelValues(worker, state).Set(v)
	}
}

func RecordStateTransition(worker, from, to string) {
	if regOK.Load() {
		workerStateTransitions.WithLabelValues(worker, from, to).Inc()
	}
}

func ObserveProbeDuration(worker string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(worker).Observe(seconds)
	}
}
