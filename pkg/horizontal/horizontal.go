// Package horizontal implements the Horizontal Scaler: group-based
// scale-out (clone) and scale-in (destroy) decisions driven by a scaling
// group's averaged CPU/memory usage, independent of host-wide pressure —
// only the group's own thresholds and grace periods gate an action.
package horizontal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/notify"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Scaler evaluates and performs horizontal scale-out/scale-in for groups.
type Scaler struct {
	Exec     executor.Executor
	Events   *eventlog.Log
	Notifier notify.Notifier
}

// New returns a Scaler.
func New(exec executor.Executor, events *eventlog.Log, notifier notify.Notifier) *Scaler {
	return &Scaler{Exec: exec, Events: events, Notifier: notifier}
}

// Evaluate checks one group's averaged usage against its thresholds and,
// if warranted and the grace period has elapsed, performs a scale-out or
// scale-in. It never looks at host-wide accountant state — a group scales
// purely on its own members' average usage, per design.
func (s *Scaler) Evaluate(ctx context.Context, group *types.Group, samples map[string]types.Sample) {
	if len(group.Members) == 0 {
		return
	}

	var totalCPU, totalMem float64
	present := 0
	for _, ctid := range group.Members {
		if sample, ok := samples[ctid]; ok {
			totalCPU += sample.CPUPercent
			totalMem += sample.MemPercent
			present++
		}
	}
	if present == 0 {
		return
	}
	avgCPU := totalCPU / float64(present)
	avgMem := totalMem / float64(present)

	logger := log.WithGroup(group.Name)
	logger.Debug().Float64("avg_cpu", avgCPU).Float64("avg_mem", avgMem).Msg("evaluating group")

	now := time.Now()

	if avgCPU > group.CPUUpperThreshold || avgMem > group.MemUpperThreshold {
		if now.Sub(group.LastScaleOut) >= group.ScaleOutGracePeriod {
			s.scaleOut(ctx, group)
		} else {
			logger.Debug().Msg("scale-out threshold exceeded but grace period not elapsed")
		}
		return
	}

	if avgCPU < group.CPULowerThreshold && avgMem < group.MemLowerThreshold {
		if len(group.Members) > group.MinInstances && now.Sub(group.LastScaleIn) >= group.ScaleInGracePeriod {
			s.scaleIn(ctx, group)
		}
	}
}

// ForceScaleOut performs a scale-out for group regardless of its current
// usage averages or scale-out grace period, honoring only MaxInstances. It
// is the manual-override path invoked via the API, distinct from Evaluate's
// threshold-driven decision.
func (s *Scaler) ForceScaleOut(ctx context.Context, group *types.Group) {
	s.scaleOut(ctx, group)
}

// scaleOut clones the group's base container via a fresh snapshot, wires up
// networking, starts the clone, and adds it to the group's membership.
func (s *Scaler) scaleOut(ctx context.Context, group *types.Group) {
	logger := log.WithGroup(group.Name)

	if len(group.Members) >= group.MaxInstances {
		logger.Info().Msg("max instances reached, no scale out performed")
		return
	}

	newCTID := nextCloneID(group.StartingCloneID, group.Members)
	snapshotName := uniqueSnapshotName("snap")
	cloneHostname := fmt.Sprintf("%s-cloned-%d", group.BaseSnapshotCTID, len(group.Members)+1)

	logger.Info().Str("snapshot", snapshotName).Str("base", group.BaseSnapshotCTID).Msg("creating snapshot for scale-out")
	if _, err := s.Exec.Run(ctx, []string{"pct", "snapshot", group.BaseSnapshotCTID, snapshotName, "--description", "Auto snapshot for scaling"}, executor.DefaultTimeout); err != nil {
		logger.Error().Err(err).Msg("failed to create snapshot, aborting scale out")
		return
	}

	logger.Info().Str("new_ctid", newCTID).Msg("cloning container")
	if _, err := s.Exec.Run(ctx, []string{"pct", "clone", group.BaseSnapshotCTID, newCTID, "--snapname", snapshotName, "--hostname", cloneHostname}, executor.ExtendedTimeout); err != nil {
		logger.Error().Err(err).Msg("failed to clone container, group membership unchanged")
		return
	}

	switch group.CloneNetworkType {
	case types.NetworkDHCP:
		if _, err := s.Exec.Run(ctx, []string{"pct", "set", newCTID, "-net0", "name=eth0,bridge=vmbr0,ip=dhcp"}, executor.DefaultTimeout); err != nil {
			logger.Warn().Err(err).Msg("failed to configure dhcp network")
		}
	case types.NetworkStatic:
		ip := s.pickStaticIP(group)
		if ip != "" {
			argv := []string{"pct", "set", newCTID, "-net0", fmt.Sprintf("name=eth0,bridge=vmbr0,ip=%s/24", ip)}
			if _, err := s.Exec.Run(ctx, argv, executor.DefaultTimeout); err != nil {
				logger.Warn().Err(err).Msg("failed to configure static network")
			}
		} else {
			logger.Warn().Msg("no available static ips for scale out")
		}
	}

	if _, err := s.Exec.Run(ctx, []string{"pct", "start", newCTID}, executor.DefaultTimeout); err != nil {
		logger.Error().Err(err).Msg("clone created but failed to start")
		return
	}

	group.Members = append(group.Members, newCTID)
	group.LastScaleOut = time.Now()

	logger.Info().Str("new_ctid", newCTID).Msg("scale out complete")
	if s.Notifier != nil {
		_ = s.Notifier.Notify(fmt.Sprintf("Scale Out: %s", group.Name),
			fmt.Sprintf("New container %s with hostname %s started.", newCTID, cloneHostname), 5)
	}
	if s.Events != nil {
		_ = s.Events.Record(newCTID, types.ActionScaleOut, fmt.Sprintf("Container %s cloned to %s. %s started.", group.BaseSnapshotCTID, newCTID, newCTID))
	}
}

// scaleIn stops and destroys the most recently added member of the group,
// the mirror image of scaleOut's newest-first growth.
func (s *Scaler) scaleIn(ctx context.Context, group *types.Group) {
	logger := log.WithGroup(group.Name)

	victim := latestClone(group.Members, group.StartingCloneID)
	if victim == "" {
		return
	}

	logger.Info().Str("ctid", victim).Msg("scaling in: stopping and destroying container")
	if _, err := s.Exec.Run(ctx, []string{"pct", "stop", victim}, executor.DefaultTimeout); err != nil {
		logger.Error().Err(err).Msg("failed to stop container for scale in, aborting")
		return
	}
	if _, err := s.Exec.Run(ctx, []string{"pct", "destroy", victim}, executor.DefaultTimeout); err != nil {
		logger.Error().Err(err).Msg("failed to destroy container for scale in")
		return
	}

	group.Members = removeMember(group.Members, victim)
	group.LastScaleIn = time.Now()

	if s.Notifier != nil {
		_ = s.Notifier.Notify(fmt.Sprintf("Scale In: %s", group.Name), fmt.Sprintf("Container %s stopped and destroyed.", victim), 5)
	}
	if s.Events != nil {
		_ = s.Events.Record(victim, types.ActionScaleIn, fmt.Sprintf("Container %s removed from group %s.", victim, group.Name))
	}
}

func (s *Scaler) pickStaticIP(group *types.Group) string {
	used := make(map[string]bool, len(group.Members))
	for _, m := range group.Members {
		used[m] = true
	}
	for _, ip := range group.StaticIPRange {
		if !used[ip] {
			return ip
		}
	}
	return ""
}

// nextCloneID mirrors the original's derivation: starting_clone_id plus the
// count of existing members whose numeric ID is already >= starting_clone_id.
func nextCloneID(startingCloneID int, members []string) string {
	count := 0
	for _, m := range members {
		if n, err := strconv.Atoi(m); err == nil && n >= startingCloneID {
			count++
		}
	}
	return strconv.Itoa(startingCloneID + count)
}

func latestClone(members []string, startingCloneID int) string {
	var clones []int
	for _, m := range members {
		if n, err := strconv.Atoi(m); err == nil && n >= startingCloneID {
			clones = append(clones, n)
		}
	}
	if len(clones) == 0 {
		return ""
	}
	sort.Ints(clones)
	return strconv.Itoa(clones[len(clones)-1])
}

func removeMember(members []string, victim string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != victim {
			out = append(out, m)
		}
	}
	return out
}

// uniqueSnapshotName timestamps the base name and appends a short uuid
// suffix so concurrent scale-outs across groups never collide.
func uniqueSnapshotName(base string) string {
	return fmt.Sprintf("%s-%s-%s", base, time.Now().Format("20060102150405"), uuid.New().String()[:8])
}
