// Package types holds the shared data model for the autoscaler: container
// samples, tier configuration, horizontal scaling groups, host resource
// state, and the records persisted by the backup store and event log.
package types

import "time"

// Sample is one tick's worth of observed resource usage for a container,
// merged with the tier thresholds that apply to it.
type Sample struct {
	CTID string

	CPUPercent float64
	MemPercent float64

	InitialCores int
	InitialMemMiB int

	Tier *Tier
}

// Tier holds the scaling thresholds and bounds associated with a container,
// resolved from either a named tier block or the global defaults.
type Tier struct {
	Name string

	CPUUpperThreshold float64
	CPULowerThreshold float64
	MemUpperThreshold float64
	MemLowerThreshold float64

	MinCores int
	MaxCores int
	MinMemMiB int

	CoreMinIncrement   int
	CoreMaxIncrement   int
	MemMinIncrementMiB int
	MinDecreaseChunkMiB int
}

// Behaviour scales increment/decrement magnitudes uniformly.
type Behaviour string

const (
	BehaviourNormal       Behaviour = "normal"
	BehaviourConservative Behaviour = "conservative"
	BehaviourAggressive   Behaviour = "aggressive"
)

// Multiplier returns the numeric scaling factor for a behaviour setting,
// defaulting to normal (1.0) for an unrecognized value.
func (b Behaviour) Multiplier() float64 {
	switch b {
	case BehaviourConservative:
		return 0.5
	case BehaviourAggressive:
		return 2.0
	default:
		return 1.0
	}
}

// NetworkType selects how a freshly cloned container's network is configured.
type NetworkType string

const (
	NetworkDHCP   NetworkType = "dhcp"
	NetworkStatic NetworkType = "static"
)

// Group describes a horizontal scaling group: a named set of containers that
// scale out (clone) or in (destroy) together based on averaged usage.
type Group struct {
	Name string

	Members         []string // container IDs currently in the group
	StartingCloneID int
	MaxInstances    int
	MinInstances    int
	BaseSnapshotCTID string

	CPUUpperThreshold float64
	MemUpperThreshold float64
	CPULowerThreshold float64
	MemLowerThreshold float64

	ScaleOutGracePeriod time.Duration
	ScaleInGracePeriod  time.Duration

	CloneNetworkType NetworkType
	StaticIPRange    []string

	LastScaleOut time.Time
	LastScaleIn  time.Time
}

// HostResources is the point-in-time view of host-wide capacity used by the
// accountant for a single control loop tick.
type HostResources struct {
	TotalCores  int
	TotalMemMiB int

	ReservedCores  int
	ReservedMemMiB int

	AvailableCores  int
	AvailableMemMiB int
}

// BackupRecord is the last-known-good core/memory configuration for a
// container, persisted before any mutating operation so it can be restored.
type BackupRecord struct {
	CTID   string `json:"-"`
	Cores  int    `json:"cores"`
	MemMiB int    `json:"memory"`
}

// EventRecord is one line of the append-only event log.
type EventRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Host        string    `json:"proxmox_host"`
	ContainerID string    `json:"container_id"`
	Action      string    `json:"action"`
	Change      string    `json:"change"`
}

// Action names used in EventRecord.Action, matching the vocabulary an
// operator would grep for in the event log.
const (
	ActionIncreaseCores     = "Increase Cores"
	ActionDecreaseCores     = "Decrease Cores"
	ActionIncreaseMemory    = "Increase Memory"
	ActionDecreaseMemory    = "Decrease Memory"
	ActionReduceCoresOffPeak  = "Reduce Cores (Off-Peak)"
	ActionReduceMemoryOffPeak = "Reduce Memory (Off-Peak)"
	ActionScaleOut          = "Scale Out"
	ActionScaleIn           = "Scale In"
	ActionRollback          = "Rollback"
	ActionError             = "Error"
)
