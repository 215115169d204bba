// Package metrics exposes Prometheus collectors for the control loop. It is
// the metrics-exporter collaborator the core depends on only through the
// collectors and Timer helpers below — the core never imports promhttp
// directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lxcautoscale_ticks_total",
			Help: "Total number of control loop ticks completed",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lxcautoscale_tick_duration_seconds",
			Help:    "Time taken to complete a control loop tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainersProbed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lxcautoscale_containers_probed",
			Help: "Number of containers probed in the most recent tick",
		},
	)

	VerticalActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxcautoscale_vertical_actions_total",
			Help: "Total number of vertical scaling actions by kind",
		},
		[]string{"action"},
	)

	HorizontalActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxcautoscale_horizontal_actions_total",
			Help: "Total number of horizontal scaling actions by group and kind",
		},
		[]string{"group", "action"},
	)

	AllocationDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxcautoscale_allocation_denied_total",
			Help: "Total number of allocation attempts denied by the host accountant",
		},
		[]string{"resource"},
	)

	HostCoresAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lxcautoscale_host_cores_available",
			Help: "CPU cores available for allocation after the most recent tick",
		},
	)

	HostMemoryAvailableMiB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lxcautoscale_host_memory_available_mib",
			Help: "Memory (MiB) available for allocation after the most recent tick",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lxcautoscale_rollbacks_total",
			Help: "Total number of containers rolled back to their backed-up settings",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TickDuration,
		ContainersProbed,
		VerticalActionsTotal,
		HorizontalActionsTotal,
		AllocationDeniedTotal,
		HostCoresAvailable,
		HostMemoryAvailableMiB,
		RollbacksTotal,
	)
}

// Handler returns the Prometheus scrape handler for the optional health/metrics port.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing a tick or a sub-operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against one series of a
// labeled histogram vector.
func (t *Timer) ObserveDurationVec(hv *prometheus.HistogramVec, labelValues ...string) {
	hv.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started, without
// recording it anywhere. Safe to call more than once.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
