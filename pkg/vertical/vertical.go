// Package vertical implements the Vertical Scaler: per-container CPU core
// and memory adjustments driven by the container's measured utilization
// against its tier's thresholds, gated by the Host Accountant.
package vertical

import (
	"context"
	"fmt"

	"github.com/cuemby/lxcautoscaled/pkg/accountant"
	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/metrics"
	"github.com/cuemby/lxcautoscaled/pkg/notify"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// CPUScaleDivisor and MemScaleFactor control how far above/below threshold
// usage translates into a proportional step — the proportional term of the
// decision algorithm, used in place of the tier's configured min increment
// whenever it is the larger of the two.
const (
	CPUScaleDivisor = 10.0
	MemScaleFactor  = 10.0
)

// Scaler applies the vertical scaling decision algorithm for one container
// per call, mutating the supplied Accountant as it allocates or releases
// capacity.
type Scaler struct {
	Exec     executor.Executor
	Events   *eventlog.Log
	Notifier notify.Notifier
}

// New returns a Scaler.
func New(exec executor.Executor, events *eventlog.Log, notifier notify.Notifier) *Scaler {
	return &Scaler{Exec: exec, Events: events, Notifier: notifier}
}

// Decision summarizes what, if anything, changed for a container.
type Decision struct {
	CoresChanged bool
	NewCores     int
	MemChanged   bool
	NewMemMiB    int
}

// Apply runs the five-step decision for one container: CPU increase, CPU
// decrease, memory increase, memory decrease, then (if energyMode and
// off-peak) a clamp to the tier's minimums. Each step that actually
// mutates the container backs off the Accountant's available pool and
// appends an event record; a failed `pct set` leaves the Accountant
// untouched and the container's cores/memory as last observed.
func (s *Scaler) Apply(ctx context.Context, sample types.Sample, acct *accountant.Accountant, behaviour types.Behaviour, energyMode, offPeak bool) Decision {
	t := sample.Tier
	mult := behaviour.Multiplier()

	cores := sample.InitialCores
	memMiB := sample.InitialMemMiB

	var dec Decision
	dec.NewCores = cores
	dec.NewMemMiB = memMiB

	logger := log.WithContainer(sample.CTID)

	// Step 1/2: CPU increase or decrease (mutually exclusive).
	switch {
	case sample.CPUPercent > t.CPUUpperThreshold:
		increment := cpuStepSize(sample.CPUPercent-t.CPUUpperThreshold, t.CoreMinIncrement, t.CoreMaxIncrement, mult)
		newCores := cores + increment
		if newCores > t.MaxCores {
			newCores = t.MaxCores
		}
		delta := newCores - cores
		if delta > 0 && acct.TryAllocateCores(delta) {
			if s.setCores(ctx, sample.CTID, newCores) {
				logger.Info().Int("increment", delta).Int("new_cores", newCores).Msg("increasing cores")
				s.recordAndNotify(sample.CTID, types.ActionIncreaseCores, fmt.Sprintf("%d", delta),
					fmt.Sprintf("CPU Increased for Container %s", sample.CTID),
					fmt.Sprintf("CPU cores increased to %d.", newCores))
				cores = newCores
				dec.CoresChanged = true
			} else {
				acct.ReleaseCores(delta)
			}
		} else if delta > 0 {
			metrics.AllocationDeniedTotal.WithLabelValues("cores").Inc()
			logger.Warn().Msg("not enough available cores to increase")
		}

	case sample.CPUPercent < t.CPULowerThreshold && cores > t.MinCores:
		decrement := cpuStepSize(t.CPULowerThreshold-sample.CPUPercent, t.CoreMinIncrement, t.CoreMaxIncrement, mult)
		newCores := cores - decrement
		if newCores < t.MinCores {
			newCores = t.MinCores
		}
		if newCores >= t.MinCores {
			if s.setCores(ctx, sample.CTID, newCores) {
				logger.Info().Int("decrement", decrement).Int("new_cores", newCores).Msg("decreasing cores")
				s.recordAndNotify(sample.CTID, types.ActionDecreaseCores, fmt.Sprintf("%d", decrement),
					fmt.Sprintf("CPU Decreased for Container %s", sample.CTID),
					fmt.Sprintf("CPU cores decreased to %d.", newCores))
				acct.ReleaseCores(cores - newCores)
				cores = newCores
				dec.CoresChanged = true
			}
		}
	}

	// Step 3/4: memory increase or decrease (mutually exclusive).
	switch {
	case sample.MemPercent > t.MemUpperThreshold:
		increment := memStepSize(sample.MemPercent-t.MemUpperThreshold, t.MemMinIncrementMiB, mult)
		if acct.TryAllocateMemory(increment) {
			newMem := memMiB + increment
			if s.setMemory(ctx, sample.CTID, newMem) {
				logger.Info().Int("increment_mib", increment).Msg("increasing memory")
				s.recordAndNotify(sample.CTID, types.ActionIncreaseMemory, fmt.Sprintf("%dMB", increment),
					fmt.Sprintf("Memory Increased for Container %s", sample.CTID),
					fmt.Sprintf("Memory increased by %dMB.", increment))
				memMiB = newMem
				dec.MemChanged = true
			} else {
				acct.ReleaseMemory(increment)
			}
		} else {
			metrics.AllocationDeniedTotal.WithLabelValues("memory").Inc()
			logger.Warn().Msg("not enough available memory to increase")
		}

	case sample.MemPercent < t.MemLowerThreshold && memMiB > t.MinMemMiB:
		chunk := int(float64(t.MinDecreaseChunkMiB) * mult)
		if chunk <= 0 {
			chunk = 1
		}
		steps := (memMiB - t.MinMemMiB) / chunk
		decrease := chunk * steps
		if decrease > memMiB-t.MinMemMiB {
			decrease = memMiB - t.MinMemMiB
		}
		if decrease > 0 {
			newMem := memMiB - decrease
			if s.setMemory(ctx, sample.CTID, newMem) {
				logger.Info().Int("decrease_mib", decrease).Msg("decreasing memory")
				s.recordAndNotify(sample.CTID, types.ActionDecreaseMemory, fmt.Sprintf("%dMB", decrease),
					fmt.Sprintf("Memory Decreased for Container %s", sample.CTID),
					fmt.Sprintf("Memory decreased by %dMB.", decrease))
				acct.ReleaseMemory(decrease)
				memMiB = newMem
				dec.MemChanged = true
			}
		}
	}

	// Step 5: off-peak energy clamp, evaluated against the post-adjustment
	// cores/memory so it can never re-raise what steps 1-4 just lowered.
	if energyMode && offPeak {
		if cores > t.MinCores {
			if s.setCores(ctx, sample.CTID, t.MinCores) {
				logger.Info().Int("from", cores).Int("to", t.MinCores).Msg("reducing cores for energy efficiency")
				s.recordAndNotify(sample.CTID, types.ActionReduceCoresOffPeak, fmt.Sprintf("%d", cores-t.MinCores),
					fmt.Sprintf("CPU Reduced for Container %s", sample.CTID),
					fmt.Sprintf("CPU cores reduced to %d for energy efficiency.", t.MinCores))
				acct.ReleaseCores(cores - t.MinCores)
				cores = t.MinCores
				dec.CoresChanged = true
			}
		}
		if memMiB > t.MinMemMiB {
			if s.setMemory(ctx, sample.CTID, t.MinMemMiB) {
				logger.Info().Int("from", memMiB).Int("to", t.MinMemMiB).Msg("reducing memory for energy efficiency")
				s.recordAndNotify(sample.CTID, types.ActionReduceMemoryOffPeak, fmt.Sprintf("%dMB", memMiB-t.MinMemMiB),
					fmt.Sprintf("Memory Reduced for Container %s", sample.CTID),
					fmt.Sprintf("Memory reduced to %dMB for energy efficiency.", t.MinMemMiB))
				acct.ReleaseMemory(memMiB - t.MinMemMiB)
				memMiB = t.MinMemMiB
				dec.MemChanged = true
			}
		}
	}

	dec.NewCores = cores
	dec.NewMemMiB = memMiB
	return dec
}

func (s *Scaler) setCores(ctx context.Context, ctid string, cores int) bool {
	_, err := s.Exec.Run(ctx, []string{"pct", "set", ctid, "-cores", fmt.Sprintf("%d", cores)}, executor.DefaultTimeout)
	if err != nil {
		log.WithContainer(ctid).Error().Err(err).Msg("failed to set cores")
		return false
	}
	return true
}

func (s *Scaler) setMemory(ctx context.Context, ctid string, memMiB int) bool {
	_, err := s.Exec.Run(ctx, []string{"pct", "set", ctid, "-memory", fmt.Sprintf("%d", memMiB)}, executor.DefaultTimeout)
	if err != nil {
		log.WithContainer(ctid).Error().Err(err).Msg("failed to set memory")
		return false
	}
	return true
}

func (s *Scaler) recordAndNotify(ctid, action, change, title, message string) {
	if s.Events != nil {
		if err := s.Events.Record(ctid, action, change); err != nil {
			log.WithContainer(ctid).Error().Err(err).Msg("failed to append event record")
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.Notify(title, message, 5); err != nil {
			log.WithContainer(ctid).Error().Err(err).Msg("failed to send notification")
		}
	}
}

// cpuStepSize mirrors the tier's proportional-with-floor-and-ceiling rule:
// never less than core_min_increment, never more than core_max_increment,
// scaled by behaviour and by how far usage sits from its threshold.
func cpuStepSize(distance float64, minIncrement, maxIncrement int, mult float64) int {
	proportional := int(distance * float64(minIncrement) / CPUScaleDivisor)
	floor := int(float64(minIncrement) * mult)
	ceil := int(float64(maxIncrement) * mult)

	step := proportional
	if step < floor {
		step = floor
	}
	if step > ceil {
		step = ceil
	}
	return step
}

// memStepSize mirrors the tier's proportional-with-floor rule for memory;
// unlike cores there is no explicit per-tier ceiling on a single increase.
func memStepSize(distance float64, minIncrement int, mult float64) int {
	proportional := int(distance * float64(minIncrement) / MemScaleFactor)
	floor := int(float64(minIncrement) * mult)
	if proportional > floor {
		return proportional
	}
	return floor
}
