/*
Package metrics exposes Prometheus collectors for the control loop: tick
counts and duration, how many containers were probed, vertical and
horizontal scaling actions by kind, allocation denials, host headroom,
and rollbacks.

# Collectors

lxcautoscale_ticks_total:
  - Type: Counter
  - Description: Total number of control loop ticks completed

lxcautoscale_tick_duration_seconds:
  - Type: Histogram
  - Description: Time taken to complete a control loop tick

lxcautoscale_containers_probed:
  - Type: Gauge
  - Description: Number of containers probed in the most recent tick

lxcautoscale_vertical_actions_total{action}:
  - Type: CounterVec
  - Description: Vertical scaling actions by kind (cores, memory)

lxcautoscale_horizontal_actions_total{group, action}:
  - Type: CounterVec
  - Description: Horizontal scaling actions by group and kind (scale_out, scale_in)

lxcautoscale_allocation_denied_total{resource}:
  - Type: CounterVec
  - Description: Allocation attempts the host accountant denied, by resource (cores, memory)

lxcautoscale_host_cores_available / lxcautoscale_host_memory_available_mib:
  - Type: Gauge
  - Description: Host headroom remaining after the most recent tick

lxcautoscale_rollbacks_total:
  - Type: Counter
  - Description: Containers rolled back to their backed-up settings

# Usage

	import "github.com/cuemby/lxcautoscaled/pkg/metrics"

	metrics.TicksTotal.Inc()
	metrics.VerticalActionsTotal.WithLabelValues("cores").Inc()
	metrics.HostCoresAvailable.Set(float64(acct.Snapshot().AvailableCores))

	timer := metrics.NewTimer()
	// ... perform the tick ...
	timer.ObserveDuration(metrics.TickDuration)

The /metrics HTTP handler is served by metrics.Handler() from the
optional health/metrics port (pkg/api), never by the control loop
itself — the core depends only on the Observe/Inc/Set calls above.
*/
package metrics
