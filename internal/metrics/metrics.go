// Package metrics exposes the kernel's runtime gauges and counters
// through prometheus/client_golang, the metrics client already in the
// teacher's dependency graph (pulled in there via the OpenTelemetry
// Prometheus exporter; used directly here since this module has no
// OTel collector of its own to export through).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the kernel updates as it runs.
// A single instance is held by kernel.Kernel and registered once at
// boot.
type Metrics struct {
	ProcsByState   *prometheus.GaugeVec
	SchedulerTicks prometheus.Counter
	PageFaults     prometheus.Counter
	FramesUsed     prometheus.Gauge
	KHeapUsedBytes prometheus.Gauge
	DiskRequests   *prometheus.CounterVec
	Syscalls       *prometheus.CounterVec
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProcsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goux",
			Subsystem: "proc",
			Name:      "count",
			Help:      "Number of processes currently in each scheduling state.",
		}, []string{"state"}),
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goux",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of timer ticks the scheduler has processed.",
		}),
		PageFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goux",
			Subsystem: "memory",
			Name:      "page_faults_total",
			Help:      "Number of page faults handled.",
		}),
		FramesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goux",
			Subsystem: "memory",
			Name:      "frames_used",
			Help:      "Physical frames currently allocated.",
		}),
		KHeapUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goux",
			Subsystem: "memory",
			Name:      "kheap_used_bytes",
			Help:      "Bytes currently allocated out of the kernel heap.",
		}),
		DiskRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goux",
			Subsystem: "block",
			Name:      "requests_total",
			Help:      "Block requests submitted, labeled by outcome.",
		}, []string{"outcome"}),
		Syscalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goux",
			Subsystem: "syscall",
			Name:      "dispatched_total",
			Help:      "Syscalls dispatched, labeled by name.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.ProcsByState,
		m.SchedulerTicks,
		m.PageFaults,
		m.FramesUsed,
		m.KHeapUsedBytes,
		m.DiskRequests,
		m.Syscalls,
	)
	return m
}

// ObserveProcStats snapshots a proc.Stats-shaped count-by-state map
// into the ProcsByState gauge vector.
func (m *Metrics) ObserveProcStats(counts map[string]int) {
	for state, n := range counts {
		m.ProcsByState.WithLabelValues(state).Set(float64(n))
	}
}

// ObserveMemStats records a used-frame count and the kernel heap's
// bytes in use into the frame/heap gauges.
func (m *Metrics) ObserveMemStats(framesUsed int, kheapUsedBytes uint32) {
	m.FramesUsed.Set(float64(framesUsed))
	m.KHeapUsedBytes.Set(float64(kheapUsedBytes))
}
