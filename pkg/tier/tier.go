// Package tier implements the Tier Resolver: it maps a container ID to the
// validated threshold/bound configuration that governs its vertical
// scaling, falling back to the global defaults tier when unassigned.
package tier

import (
	"fmt"

	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Resolver looks up the tier for a container from a flattened
// container-id -> tier mapping built once at configuration load time, so
// the scaler never has to know about tier names or membership lists —
// only valid or invalid thresholds.
type Resolver struct {
	byCTID  map[string]*types.Tier
	fallback *types.Tier
}

// New returns a Resolver. byCTID is the flattened container -> tier
// assignment; fallback is used for any container with no explicit tier.
//
// Only the fallback tier is validated here: it backs every unassigned
// container, so an invalid fallback is a fatal configuration error. A bad
// per-container tier is not — one operator typo in one named tier must not
// take the whole daemon down. Per-container validity is instead checked on
// every Resolve call, so the caller can skip just that container for the
// tick.
func New(byCTID map[string]*types.Tier, fallback *types.Tier) (*Resolver, error) {
	if err := Validate(fallback); err != nil {
		return nil, fmt.Errorf("tier: invalid default tier: %w", err)
	}
	return &Resolver{byCTID: byCTID, fallback: fallback}, nil
}

// Resolve returns the tier governing ctid, or an error if ctid has an
// explicit tier assignment that fails validation. A container with no
// explicit assignment always resolves to the (already-validated) fallback.
func (r *Resolver) Resolve(ctid string) (*types.Tier, error) {
	t, ok := r.byCTID[ctid]
	if !ok {
		return r.fallback, nil
	}
	if err := Validate(t); err != nil {
		return nil, fmt.Errorf("tier: invalid tier for container %s: %w", ctid, err)
	}
	return t, nil
}

// Validate checks the structural invariants a tier must satisfy before it
// can be used by the Vertical Scaler: lower thresholds strictly below
// upper thresholds, and positive bounds and increments with min <= max.
func Validate(t *types.Tier) error {
	if t == nil {
		return fmt.Errorf("tier is nil")
	}
	if t.CPULowerThreshold >= t.CPUUpperThreshold {
		return fmt.Errorf("cpu lower threshold (%.2f) must be less than upper threshold (%.2f)", t.CPULowerThreshold, t.CPUUpperThreshold)
	}
	if t.MemLowerThreshold >= t.MemUpperThreshold {
		return fmt.Errorf("memory lower threshold (%.2f) must be less than upper threshold (%.2f)", t.MemLowerThreshold, t.MemUpperThreshold)
	}
	if t.MinCores <= 0 {
		return fmt.Errorf("min_cores must be positive, got %d", t.MinCores)
	}
	if t.MaxCores < t.MinCores {
		return fmt.Errorf("max_cores (%d) must be >= min_cores (%d)", t.MaxCores, t.MinCores)
	}
	if t.MinMemMiB <= 0 {
		return fmt.Errorf("min_memory must be positive, got %d", t.MinMemMiB)
	}
	if t.CoreMinIncrement <= 0 || t.CoreMaxIncrement < t.CoreMinIncrement {
		return fmt.Errorf("core_max_increment (%d) must be >= core_min_increment (%d) > 0", t.CoreMaxIncrement, t.CoreMinIncrement)
	}
	if t.MemMinIncrementMiB <= 0 {
		return fmt.Errorf("memory_min_increment must be positive, got %d", t.MemMinIncrementMiB)
	}
	if t.MinDecreaseChunkMiB <= 0 {
		return fmt.Errorf("min_decrease_chunk must be positive, got %d", t.MinDecreaseChunkMiB)
	}
	return nil
}
