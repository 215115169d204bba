// Package accountant implements the Host Accountant: a per-tick ledger of
// host-wide CPU core and memory capacity, constructed fresh from a
// measurement at the start of every control loop iteration and never kept
// as a package-level singleton, so stale measurements never leak across
// ticks.
package accountant

import "fmt"

// Accountant tracks available cores/memory for a single control loop tick.
type Accountant struct {
	availableCores  int
	availableMemMiB int

	totalCores  int
	totalMemMiB int
	reservedCores  int
	reservedMemMiB int
}

// New builds an Accountant from measured host totals and configured
// reserve percentages/amounts.
func New(totalCores int, reserveCPUPercent int, totalMemMiB int, reserveMemMiB int) *Accountant {
	reservedCores := totalCores * reserveCPUPercent / 100
	if reservedCores < 1 {
		reservedCores = 1
	}
	availCores := totalCores - reservedCores
	if availCores < 0 {
		availCores = 0
	}

	availMem := totalMemMiB - reserveMemMiB
	if availMem < 0 {
		availMem = 0
	}

	return &Accountant{
		totalCores:      totalCores,
		totalMemMiB:     totalMemMiB,
		reservedCores:   reservedCores,
		reservedMemMiB:  reserveMemMiB,
		availableCores:  availCores,
		availableMemMiB: availMem,
	}
}

// TryAllocateCores reserves n cores if available, returning false without
// mutating state if capacity is insufficient.
func (a *Accountant) TryAllocateCores(n int) bool {
	if n <= 0 {
		return true
	}
	if a.availableCores < n {
		return false
	}
	a.availableCores -= n
	return true
}

// ReleaseCores returns n cores to the available pool (used on decrease).
func (a *Accountant) ReleaseCores(n int) {
	if n <= 0 {
		return
	}
	a.availableCores += n
}

// TryAllocateMemory reserves n MiB if available.
func (a *Accountant) TryAllocateMemory(n int) bool {
	if n <= 0 {
		return true
	}
	if a.availableMemMiB < n {
		return false
	}
	a.availableMemMiB -= n
	return true
}

// ReleaseMemory returns n MiB to the available pool.
func (a *Accountant) ReleaseMemory(n int) {
	if n <= 0 {
		return
	}
	a.availableMemMiB += n
}

// AvailableCores returns the cores currently unallocated this tick.
func (a *Accountant) AvailableCores() int { return a.availableCores }

// AvailableMemMiB returns the memory (MiB) currently unallocated this tick.
func (a *Accountant) AvailableMemMiB() int { return a.availableMemMiB }

// Snapshot describes the accountant's state for logging/metrics.
type Snapshot struct {
	TotalCores      int
	ReservedCores   int
	AvailableCores  int
	TotalMemMiB     int
	ReservedMemMiB  int
	AvailableMemMiB int
}

// Snapshot returns a point-in-time copy of the accountant's bookkeeping.
func (a *Accountant) Snapshot() Snapshot {
	return Snapshot{
		TotalCores:      a.totalCores,
		ReservedCores:   a.reservedCores,
		AvailableCores:  a.availableCores,
		TotalMemMiB:     a.totalMemMiB,
		ReservedMemMiB:  a.reservedMemMiB,
		AvailableMemMiB: a.availableMemMiB,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("cores: %d/%d available (reserved %d), memory: %dMiB/%dMiB available (reserved %dMiB)",
		s.AvailableCores, s.TotalCores, s.ReservedCores,
		s.AvailableMemMiB, s.TotalMemMiB, s.ReservedMemMiB)
}
