package controlloop

import (
	"context"
	"fmt"

	"github.com/cuemby/lxcautoscaled/pkg/backup"
	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/metrics"
	"github.com/cuemby/lxcautoscaled/pkg/probe"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Rollback restores every container the host lists (running or not) that
// has a backup to its last backed-up cores/memory configuration. It is idempotent: running it twice in a row
// with no intervening scaling action is a no-op the second time, since the
// backup already matches the live configuration.
func Rollback(ctx context.Context, exec executor.Executor, p *probe.Probe, store *backup.Store, events *eventlog.Log) error {
	ids, err := p.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("rollback: list containers: %w", err)
	}

	for _, ctid := range ids {
		rec, ok, err := store.Load(ctid)
		if err != nil {
			log.WithContainer(ctid).Error().Err(err).Msg("failed to load backup for rollback")
			continue
		}
		if !ok {
			log.WithContainer(ctid).Warn().Msg("no backup found, skipping rollback")
			continue
		}

		log.WithContainer(ctid).Info().Int("cores", rec.Cores).Int("memory_mib", rec.MemMiB).Msg("rolling back container")

		if _, err := exec.Run(ctx, []string{"pct", "set", ctid, "-cores", fmt.Sprintf("%d", rec.Cores)}, executor.DefaultTimeout); err != nil {
			log.WithContainer(ctid).Error().Err(err).Msg("rollback: failed to restore cores")
			continue
		}
		if _, err := exec.Run(ctx, []string{"pct", "set", ctid, "-memory", fmt.Sprintf("%d", rec.MemMiB)}, executor.DefaultTimeout); err != nil {
			log.WithContainer(ctid).Error().Err(err).Msg("rollback: failed to restore memory")
			continue
		}

		metrics.RollbacksTotal.Inc()
		if events != nil {
			_ = events.Record(ctid, types.ActionRollback, fmt.Sprintf("restored to %d cores, %dMB", rec.Cores, rec.MemMiB))
		}
	}

	return nil
}
