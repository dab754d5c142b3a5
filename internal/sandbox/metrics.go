package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts supervisor activity for the /metrics endpoint.
type Metrics struct {
	ProjectStarts  prometheus.Counter
	Evictions      prometheus.Counter
	OrphanCleanups prometheus.Counter
	MemoryUsedPct  prometheus.Gauge
}

// NewMetrics registers the supervisor metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProjectStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "athena_sandbox_project_starts_total",
			Help: "Dev server processes started, counting both creations and restarts.",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "athena_sandbox_evictions_total",
			Help: "Running projects killed to make room for a new one.",
		}),
		OrphanCleanups: factory.NewCounter(prometheus.CounterOpts{
			Name: "athena_sandbox_orphan_cleanups_total",
			Help: "Orphan cleanup sweeps, scheduled or memory-pressure triggered.",
		}),
		MemoryUsedPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "athena_sandbox_memory_used_percent",
			Help: "Host memory usage sampled by the maintenance loop.",
		}),
	}
}
