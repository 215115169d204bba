package controlloop

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/lxcautoscaled/pkg/backup"
	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/probe"
	"github.com/cuemby/lxcautoscaled/pkg/tier"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

type fakeExecutor struct{}

func (fakeExecutor) Run(_ context.Context, argv []string, _ time.Duration) (string, error) {
	if len(argv) < 2 {
		return "", nil
	}
	switch argv[1] {
	case "status":
		return "status: running", nil
	case "config":
		return "cores: 2\nmemory: 1024\n", nil
	case "exec":
		last := argv[len(argv)-1]
		if strings.Contains(last, "loadavg") {
			return "0.10 0.05 0.01 1/200 1234", nil
		}
		return "8000000 4000000", nil
	}
	return "", nil
}

func validTestTier(name string) *types.Tier {
	return &types.Tier{
		Name:                name,
		CPUUpperThreshold:   80,
		CPULowerThreshold:   20,
		MemUpperThreshold:   80,
		MemLowerThreshold:   20,
		MinCores:            1,
		MaxCores:            4,
		MinMemMiB:           512,
		CoreMinIncrement:    1,
		CoreMaxIncrement:    2,
		MemMinIncrementMiB:  256,
		MinDecreaseChunkMiB: 128,
	}
}

func TestCollectSkipsContainerWithInvalidTierAndRecordsError(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "events.json")

	store, err := backup.New(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	bad := validTestTier("web")
	bad.MaxCores = 0 // invalid: below MinCores
	resolver, err := tier.New(map[string]*types.Tier{"101": bad}, validTestTier("default"))
	require.NoError(t, err, "an invalid per-container tier must not fail Resolver construction")

	l := &Loop{
		Exec:    fakeExecutor{},
		Probe:   probe.New(fakeExecutor{}),
		Backup:  store,
		Events:  eventlog.New(eventPath, "test-host"),
		Tiers:   resolver,
		Workers: 1,
	}

	samples := l.collect(context.Background(), []string{"101"})

	assert.Empty(t, samples, "a container with an invalid assigned tier must be skipped for the tick")

	data, err := os.ReadFile(eventPath)
	require.NoError(t, err, "the skip must still emit an error event record")
	assert.Contains(t, string(data), `"container_id":"101"`)
	assert.Contains(t, string(data), `"action":"`+types.ActionError+`"`)
}

func TestPrioritizeOrdersByCPUThenMemThenCTID(t *testing.T) {
	samples := []types.Sample{
		{CTID: "103", CPUPercent: 50, MemPercent: 10},
		{CTID: "101", CPUPercent: 90, MemPercent: 10},
		{CTID: "102", CPUPercent: 90, MemPercent: 50},
		{CTID: "104", CPUPercent: 90, MemPercent: 50},
	}

	ordered := prioritize(samples)

	var ids []string
	for _, s := range ordered {
		ids = append(ids, s.CTID)
	}
	assert.Equal(t, []string{"102", "104", "101", "103"}, ids)
}

func TestPrioritizeDoesNotMutateInput(t *testing.T) {
	samples := []types.Sample{
		{CTID: "101", CPUPercent: 10},
		{CTID: "102", CPUPercent: 90},
	}
	_ = prioritize(samples)
	assert.Equal(t, "101", samples[0].CTID, "prioritize must return a new slice, never reorder the caller's")
}

func TestIsOffPeakCurrentHourWithinWindow(t *testing.T) {
	hour := time.Now().Hour()
	// A one-hour window starting at the current hour always contains it.
	start := hour
	end := (hour + 1) % 24
	assert.True(t, isOffPeak(start, end))
}

func TestIsOffPeakCurrentHourOutsideWindow(t *testing.T) {
	hour := time.Now().Hour()
	// A zero-width window (start == end, both the current hour) never
	// matches: start <= end takes the non-wrapping branch, where hour >= start
	// && hour < end is false whenever start == end.
	assert.False(t, isOffPeak(hour, hour))
}

func TestIsOffPeakWrapsPastMidnight(t *testing.T) {
	hour := time.Now().Hour()
	// A window starting at the current hour and ending one hour earlier
	// (mod 24) spans all but a single hour, and always contains "now".
	start := hour
	end := (hour + 23) % 24
	assert.True(t, isOffPeak(start, end))
}

func TestParseFreeOutput(t *testing.T) {
	out := "              total        used        free      shared  buff/cache   available\n" +
		"Mem:           7942        2048        3000          10        2894        5500\n" +
		"Swap:          2048           0        2048\n"

	memMiB, err := parseFreeOutput(out)
	assert.NoError(t, err)
	assert.Equal(t, 7942, memMiB)
}

func TestParseFreeOutputMissingMemLine(t *testing.T) {
	_, err := parseFreeOutput("Swap: 2048 0 2048\n")
	assert.Error(t, err)
}
