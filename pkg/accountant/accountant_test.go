package accountant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservesFloorOfOneCore(t *testing.T) {
	a := New(4, 0, 4096, 0)
	snap := a.Snapshot()
	assert.Equal(t, 1, snap.ReservedCores, "reserve_cpu_percent=0 still reserves at least one core")
	assert.Equal(t, 3, snap.AvailableCores)
}

func TestNewAppliesReservePercentAndMemory(t *testing.T) {
	a := New(10, 20, 8192, 2048)
	snap := a.Snapshot()
	require.Equal(t, 2, snap.ReservedCores)
	assert.Equal(t, 8, snap.AvailableCores)
	assert.Equal(t, 2048, snap.ReservedMemMiB)
	assert.Equal(t, 6144, snap.AvailableMemMiB)
}

func TestNewNeverGoesNegative(t *testing.T) {
	a := New(1, 100, 512, 1024)
	snap := a.Snapshot()
	assert.GreaterOrEqual(t, snap.AvailableCores, 0)
	assert.Equal(t, 0, snap.AvailableMemMiB)
}

func TestTryAllocateCores(t *testing.T) {
	a := New(8, 0, 4096, 0)
	require.Equal(t, 7, a.AvailableCores())

	assert.True(t, a.TryAllocateCores(3))
	assert.Equal(t, 4, a.AvailableCores())

	assert.False(t, a.TryAllocateCores(10), "insufficient capacity must fail without mutating state")
	assert.Equal(t, 4, a.AvailableCores())

	assert.True(t, a.TryAllocateCores(0), "a zero-sized request always succeeds")
}

func TestReleaseCores(t *testing.T) {
	a := New(8, 0, 4096, 0)
	a.TryAllocateCores(5)
	a.ReleaseCores(5)
	assert.Equal(t, 7, a.AvailableCores())

	a.ReleaseCores(-1)
	assert.Equal(t, 7, a.AvailableCores(), "a non-positive release is a no-op")
}

func TestTryAllocateMemory(t *testing.T) {
	a := New(8, 0, 4096, 1024)
	require.Equal(t, 3072, a.AvailableMemMiB())

	assert.True(t, a.TryAllocateMemory(1000))
	assert.Equal(t, 2072, a.AvailableMemMiB())

	assert.False(t, a.TryAllocateMemory(5000))
	assert.Equal(t, 2072, a.AvailableMemMiB())
}

func TestReleaseMemory(t *testing.T) {
	a := New(8, 0, 4096, 0)
	a.TryAllocateMemory(512)
	a.ReleaseMemory(512)
	assert.Equal(t, 4096, a.AvailableMemMiB())
}

func TestSnapshotString(t *testing.T) {
	a := New(4, 0, 2048, 0)
	s := a.Snapshot().String()
	assert.Contains(t, s, "cores:")
	assert.Contains(t, s, "memory:")
}
