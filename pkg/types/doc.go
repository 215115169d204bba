/*
Package types defines the core data structures shared across the daemon:
the per-container sample taken each tick, the tier and group
configuration that governs scaling decisions, and the records persisted
to the backup store and event log.

# Core Types

Sampling:
  - Sample: one container's measured usage plus its resolved tier, taken
    fresh every tick
  - Tier: the thresholds, bounds, and increments that govern vertical
    scaling for a class of containers

Horizontal scaling:
  - Group: a named set of containers cloned from a common base, with its
    own thresholds, grace periods, and network configuration
  - NetworkType: dhcp or static, selects how a clone's network is
    configured after creation

Behaviour:
  - Behaviour: normal, conservative, or aggressive — scales the step
    size vertical scaling applies once a threshold is crossed

Persistence:
  - BackupRecord: a container's cores/memory as last observed, written
    before any scaling decision mutates it
  - EventRecord: one JSON line in the append-only event log describing
    an action taken against a container

Action constants (ActionIncreaseCores, ActionScaleOut, ActionRollback,
and so on) label EventRecord.Action in the records the vertical and
horizontal scalers, the control loop, and rollback append.

# Design Patterns

Enumerations are typed strings, not ints, so log output and the event
log are self-describing without a lookup table.

Optional tier overrides in configuration use pointers: nil means
"inherit the fallback tier's value".
*/
package types
