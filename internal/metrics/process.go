package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	workerCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "cpu_percent",
			Help:      "CPU usage of the worker process.",
		}, []string{"worker"},
	)
	workerMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relaypilot",
			Subsystem: "worker",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the worker process.",
		}, []string{"worker"},
	)
)

// Usage is one resource sample of a worker process.
type Usage struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// SampleProcess reads CPU and memory usage for one pid.
func SampleProcess(pid int) (Usage, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}
	u := Usage{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.MemoryRSS = mem.RSS
	}
	return u, nil
}

// PIDFunc reports the current worker pids, zero for workers that are down.
type PIDFunc func() map[string]int

// UsageSampler periodically exports per-worker resource gauges. Down
// workers have their series cleared rather than left stale.
type UsageSampler struct {
	interval time.Duration
	pids     PIDFunc
	logger   *slog.Logger
}

func NewUsageSampler(interval time.Duration, pids PIDFunc, l *slog.Logger) *UsageSampler {
	if l == nil {
		l = slog.Default()
	}
	return &UsageSampler{interval: interval, pids: pids, logger: l.With("component", "metrics")}
}

// Run samples until the context is cancelled.
func (s *UsageSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleAll()
		}
	}
}

func (s *UsageSampler) sampleAll() {
	if !regOK.Load() {
		return
	}
	for id, pid := range s.pids() {
		if pid <= 0 {
			workerCPUPercent.DeleteLabelValues(id)
			workerMemoryBytes.DeleteLabelValues(id)
			continue
		}
		u, err := SampleProcess(pid)
		if err != nil {
			s.logger.Debug("usage sample failed", "worker", id, "pid", pid, "error", err)
			continue
		}
		workerCPUPercent.WithLabelValues(id).Set(u.CPUPercent)
		workerMemoryBytes.WithLabelValues(id).Set(float64(u.MemoryRSS))
	}
}
