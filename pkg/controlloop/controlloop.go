// Package controlloop implements the Control Loop and Rollback Driver: the
// ticker-driven orchestration that, once per interval, probes every
// container, applies vertical and horizontal scaling decisions, and
// records what happened — plus the standalone rollback path invoked via
// the daemon's --rollback flag.
package controlloop

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/lxcautoscaled/pkg/accountant"
	"github.com/cuemby/lxcautoscaled/pkg/backup"
	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/horizontal"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/metrics"
	"github.com/cuemby/lxcautoscaled/pkg/probe"
	"github.com/cuemby/lxcautoscaled/pkg/snapshot"
	"github.com/cuemby/lxcautoscaled/pkg/tier"
	"github.com/cuemby/lxcautoscaled/pkg/types"
	"github.com/cuemby/lxcautoscaled/pkg/vertical"
)

// DefaultWorkers is the bounded probe fan-out width, matching the
// original daemon's ThreadPoolExecutor(max_workers=8).
const DefaultWorkers = 8

// Loop wires every component together and drives the periodic tick.
type Loop struct {
	Exec    executor.Executor
	Probe   *probe.Probe
	Backup  *backup.Store
	Events  *eventlog.Log
	Tiers   *tier.Resolver

	Vertical   *vertical.Scaler
	Horizontal *horizontal.Scaler
	Groups     map[string]*types.Group

	Ignore map[string]bool

	PollInterval time.Duration
	EnergyMode   bool
	Behaviour    types.Behaviour

	ReserveCPUPercent int
	ReserveMemoryMiB  int
	OffPeakStart      int
	OffPeakEnd        int

	Workers int

	SnapshotPath     string
	SnapshotInterval time.Duration

	lastSnapshot time.Time
}

// Run blocks, ticking every PollInterval until ctx is cancelled. A failed
// tick is logged and the loop sleeps the full interval before retrying —
// it never aborts the daemon and never busy-loops on a persistent fault.
func (l *Loop) Run(ctx context.Context) error {
	if l.Workers <= 0 {
		l.Workers = DefaultWorkers
	}

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.TickDuration)
		metrics.TicksTotal.Inc()
	}()

	ids, err := l.Probe.ListContainers(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to list containers, skipping tick")
		metrics.UpdateComponent("control_loop", false, err.Error())
		metrics.UpdateComponent("executor", false, err.Error())
		return
	}
	metrics.UpdateComponent("executor", true, "")

	active := make([]string, 0, len(ids))
	for _, id := range ids {
		if l.Ignore[id] {
			continue
		}
		active = append(active, id)
	}

	samples := l.collect(ctx, active)
	metrics.ContainersProbed.Set(float64(len(samples)))

	ordered := prioritize(samples)

	totalCores, totalMemMiB, err := hostTotals(ctx, l.Exec)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to measure host totals, skipping tick")
		return
	}
	acct := accountant.New(totalCores, l.ReserveCPUPercent, totalMemMiB, l.ReserveMemoryMiB)
	offPeak := isOffPeak(l.OffPeakStart, l.OffPeakEnd)

	log.Logger.Info().Str("resources", acct.Snapshot().String()).Msg("starting vertical scaling pass")

	for _, s := range ordered {
		dec := l.Vertical.Apply(ctx, s, acct, l.Behaviour, l.EnergyMode, offPeak)
		if dec.CoresChanged {
			metrics.VerticalActionsTotal.WithLabelValues("cores").Inc()
		}
		if dec.MemChanged {
			metrics.VerticalActionsTotal.WithLabelValues("memory").Inc()
		}
	}

	byCTID := make(map[string]types.Sample, len(samples))
	for _, s := range samples {
		byCTID[s.CTID] = s
	}
	for name, group := range l.Groups {
		before := len(group.Members)
		l.Horizontal.Evaluate(ctx, group, byCTID)
		if len(group.Members) > before {
			metrics.HorizontalActionsTotal.WithLabelValues(name, "scale_out").Inc()
		} else if len(group.Members) < before {
			metrics.HorizontalActionsTotal.WithLabelValues(name, "scale_in").Inc()
		}
	}

	final := acct.Snapshot()
	metrics.HostCoresAvailable.Set(float64(final.AvailableCores))
	metrics.HostMemoryAvailableMiB.Set(float64(final.AvailableMemMiB))
	log.Logger.Info().Str("resources", final.String()).Msg("tick complete")

	metrics.UpdateComponent("probe", true, "")
	metrics.UpdateComponent("control_loop", true, "")

	l.maybeSnapshot(ordered)
}

// collect fans out container probing across a bounded pool of goroutines
// and backs up each container's current configuration before it can be
// mutated — the state store write happens unconditionally, ahead of any
// scaling decision.
func (l *Loop) collect(ctx context.Context, ids []string) []types.Sample {
	sem := make(chan struct{}, l.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	samples := make([]types.Sample, 0, len(ids))

	for _, ctid := range ids {
		if !l.Probe.IsRunning(ctx, ctid) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(ctid string) {
			defer wg.Done()
			defer func() { <-sem }()

			result := l.Probe.Collect(ctx, ctid)
			if err := l.Backup.Save(ctid, result.InitialCores, result.InitialMemMiB); err != nil {
				log.WithContainer(ctid).Error().Err(err).Msg("failed to save backup settings")
			}

			t, err := l.Tiers.Resolve(ctid)
			if err != nil {
				log.WithContainer(ctid).Error().Err(err).Msg("invalid tier assignment, skipping container for this tick")
				if recErr := l.Events.Record(ctid, types.ActionError, err.Error()); recErr != nil {
					log.WithContainer(ctid).Error().Err(recErr).Msg("failed to append event record")
				}
				return
			}

			sample := types.Sample{
				CTID:          ctid,
				CPUPercent:    result.CPUPercent,
				MemPercent:    result.MemPercent,
				InitialCores:  result.InitialCores,
				InitialMemMiB: result.InitialMemMiB,
				Tier:          t,
			}

			mu.Lock()
			samples = append(samples, sample)
			mu.Unlock()
		}(ctid)
	}

	wg.Wait()
	return samples
}

// prioritize orders samples by descending (cpu, mem) with container ID as
// a final deterministic tiebreaker, matching the original daemon's
// resource-usage priority sort.
func prioritize(samples []types.Sample) []types.Sample {
	out := append([]types.Sample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CPUPercent != out[j].CPUPercent {
			return out[i].CPUPercent > out[j].CPUPercent
		}
		if out[i].MemPercent != out[j].MemPercent {
			return out[i].MemPercent > out[j].MemPercent
		}
		return out[i].CTID < out[j].CTID
	})
	return out
}

// isOffPeak reports whether the current hour falls within the configured
// off-peak window, which may wrap past midnight (start > end).
func isOffPeak(start, end int) bool {
	hour := time.Now().Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (l *Loop) maybeSnapshot(samples []types.Sample) {
	if l.SnapshotPath == "" {
		return
	}
	if l.SnapshotInterval > 0 && time.Since(l.lastSnapshot) < l.SnapshotInterval {
		return
	}
	if err := snapshot.Write(l.SnapshotPath, samples); err != nil {
		log.Logger.Error().Err(err).Msg("failed to write metrics snapshot")
		return
	}
	l.lastSnapshot = time.Now()
}
