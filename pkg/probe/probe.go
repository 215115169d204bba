// Package probe implements the Container Probe component: it asks the host
// executor for one container's liveness, configured cores/memory, and
// current CPU/memory utilization.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/log"
)

// Probe collects per-container usage samples via an Executor.
type Probe struct {
	exec executor.Executor
}

// New returns a Probe driven by the given Executor.
func New(exec executor.Executor) *Probe {
	return &Probe{exec: exec}
}

// Result is the raw measurement for one container before tier thresholds
// are attached by the caller.
type Result struct {
	CPUPercent    float64
	MemPercent    float64
	InitialCores  int
	InitialMemMiB int
}

// IsRunning reports whether the container is currently running.
func (p *Probe) IsRunning(ctx context.Context, ctid string) bool {
	out, err := p.exec.Run(ctx, []string{"pct", "status", ctid}, executor.DefaultTimeout)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(out), "status: running")
}

// ListContainers returns every container ID known to the host.
func (p *Probe) ListContainers(ctx context.Context) ([]string, error) {
	out, err := p.exec.Run(ctx, []string{"pct", "list"}, executor.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("probe: list containers: %w", err)
	}

	lines := strings.Split(out, "\n")
	var ids []string
	// first line is the header (VMID STATUS LOCK NAME)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ids = append(ids, fields[0])
	}
	return ids, nil
}

// ReadConfig reads the currently configured cores and memory (MiB) for a
// container from `pct config`.
func (p *Probe) ReadConfig(ctx context.Context, ctid string) (cores int, memMiB int, err error) {
	out, err := p.exec.Run(ctx, []string{"pct", "config", ctid}, executor.DefaultTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("probe: read config for %s: %w", ctid, err)
	}

	for _, line := range strings.Split(out, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "cores":
			cores, _ = strconv.Atoi(val)
		case "memory":
			memMiB, _ = strconv.Atoi(val)
		}
	}
	return cores, memMiB, nil
}

// Collect gathers CPU and memory utilization plus the currently configured
// cores/memory for one container. It never returns an error for a
// measurement failure; per the degrade-to-zero policy, a failed metric
// reads as 0.0 and is logged.
func (p *Probe) Collect(ctx context.Context, ctid string) Result {
	cores, memMiB, err := p.ReadConfig(ctx, ctid)
	if err != nil {
		log.WithContainer(ctid).Warn().Err(err).Msg("failed to read container config")
	}

	return Result{
		CPUPercent:    p.cpuUsage(ctx, ctid, cores),
		MemPercent:    p.memUsage(ctx, ctid),
		InitialCores:  cores,
		InitialMemMiB: memMiB,
	}
}

type cpuMethod struct {
	name string
	fn   func(ctx context.Context, ctid string, cores int) (float64, error)
}

// cpuUsage tries the load-average method first, falling back to the
// /proc/stat delta method; the order is deliberate — load average is a
// single cheap read, the proc/stat method costs a one-second sleep.
func (p *Probe) cpuUsage(ctx context.Context, ctid string, cores int) float64 {
	methods := []cpuMethod{
		{"loadavg", p.cpuViaLoadAvg},
		{"proc_stat", p.cpuViaProcStat},
	}

	for _, m := range methods {
		cpu, err := m.fn(ctx, ctid, cores)
		if err == nil && cpu >= 0.0 {
			log.WithContainer(ctid).Debug().Str("method", m.name).Float64("cpu_pct", cpu).Msg("cpu usage measured")
			return cpu
		}
		log.WithContainer(ctid).Warn().Str("method", m.name).Err(err).Msg("cpu usage method failed")
	}

	log.WithContainer(ctid).Error().Msg("all cpu usage methods failed, using 0.0")
	return 0.0
}

func (p *Probe) cpuViaLoadAvg(ctx context.Context, ctid string, cores int) (float64, error) {
	out, err := p.exec.Run(ctx, []string{"pct", "exec", ctid, "--", "cat", "/proc/loadavg"}, executor.DefaultTimeout)
	if err != nil {
		return 0, fmt.Errorf("loadavg: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("loadavg: empty output")
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("loadavg: parse: %w", err)
	}
	if cores <= 0 {
		cores = 1
	}
	pct := (load / float64(cores)) * 100
	if pct > 100 {
		pct = 100
	}
	return round2(pct), nil
}

func (p *Probe) cpuViaProcStat(ctx context.Context, ctid string, _ int) (float64, error) {
	initial, err := p.readCPUStat(ctx, ctid)
	if err != nil {
		return 0, fmt.Errorf("proc_stat initial: %w", err)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(time.Second):
	}

	current, err := p.readCPUStat(ctx, ctid)
	if err != nil {
		return 0, fmt.Errorf("proc_stat current: %w", err)
	}

	totalDiff := current.total - initial.total
	idleDiff := current.idle - initial.idle
	if totalDiff == 0 {
		return 0.0, nil
	}

	usage := (float64(totalDiff-idleDiff) / float64(totalDiff)) * 100
	if usage > 100 {
		usage = 100
	}
	if usage < 0 {
		usage = 0
	}
	return round2(usage), nil
}

type cpuStat struct {
	idle  int64
	total int64
}

func (p *Probe) readCPUStat(ctx context.Context, ctid string) (cpuStat, error) {
	out, err := p.exec.Run(ctx, []string{"pct", "exec", ctid, "--", "sh", "-c", "grep '^cpu ' /proc/stat"}, executor.DefaultTimeout)
	if err != nil {
		return cpuStat{}, err
	}
	fields := strings.Fields(out)
	if len(fields) < 5 {
		return cpuStat{}, fmt.Errorf("unexpected /proc/stat format: %q", out)
	}

	var total int64
	values := make([]int64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return cpuStat{}, fmt.Errorf("parse /proc/stat field: %w", err)
		}
		values = append(values, v)
		total += v
	}
	idle := values[3]
	return cpuStat{idle: idle, total: total}, nil
}

func (p *Probe) memUsage(ctx context.Context, ctid string) float64 {
	script := "awk '/MemTotal/ {t=$2} /MemAvailable/ {a=$2} END {print t, t-a}' /proc/meminfo"
	out, err := p.exec.Run(ctx, []string{"pct", "exec", ctid, "--", "sh", "-c", script}, executor.DefaultTimeout)
	if err != nil {
		log.WithContainer(ctid).Error().Err(err).Msg("failed to get memory usage")
		return 0.0
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		log.WithContainer(ctid).Error().Str("output", out).Msg("failed to parse memory info")
		return 0.0
	}
	total, err1 := strconv.ParseInt(fields[0], 10, 64)
	used, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil || total == 0 {
		log.WithContainer(ctid).Error().Str("output", out).Msg("failed to parse memory info")
		return 0.0
	}

	return (float64(used) * 100) / float64(total)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
