package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/lxcautoscaled/pkg/secrets"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lxc_autoscale.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "defaults:\n  poll_interval: 60\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Defaults.PollIntervalSeconds)
	assert.Equal(t, 80.0, cfg.Defaults.CPUUpperThreshold)
	assert.Equal(t, "normal", cfg.Defaults.Behaviour)
	assert.Equal(t, 1, cfg.Defaults.MinCores)
	assert.False(t, cfg.Defaults.SnapshotEnabled, "snapshot export is opt-in")
	assert.Equal(t, 300, cfg.Defaults.SnapshotIntervalSeconds)
}

func TestLoadConfigAppliesSnapshotOverrides(t *testing.T) {
	path := writeConfig(t, "defaults:\n  snapshot_enabled: true\n  snapshot_path: /tmp/snap.json\n  snapshot_interval: 60\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Defaults.SnapshotEnabled)
	assert.Equal(t, "/tmp/snap.json", cfg.Defaults.SnapshotPath)
	assert.Equal(t, 60, cfg.Defaults.SnapshotIntervalSeconds)
}

func TestLoadConfigMissingFileIsAnError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFallsBackToDefaultsWhenUnconfigured(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Defaults.PollIntervalSeconds)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{
		CPULowerThreshold: 90, CPUUpperThreshold: 80,
		MemLowerThreshold: 20, MemUpperThreshold: 80,
		MinCores: 1, MaxCores: 4,
		Behaviour: "normal",
	}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBehaviour(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{
		CPULowerThreshold: 20, CPUUpperThreshold: 80,
		MemLowerThreshold: 20, MemUpperThreshold: 80,
		MinCores: 1, MaxCores: 4,
		Behaviour: "turbo",
	}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsGroupMissingSnapshot(t *testing.T) {
	cfg := &Config{
		Defaults: DefaultsConfig{
			CPULowerThreshold: 20, CPUUpperThreshold: 80,
			MemLowerThreshold: 20, MemUpperThreshold: 80,
			MinCores: 1, MaxCores: 4, Behaviour: "normal",
		},
		Groups: map[string]GroupConfig{"web": {MaxInstances: 2, MinInstances: 1}},
	}
	assert.Error(t, cfg.Validate())
}

func TestFlattenTiersAppliesOverridesOnTopOfDefaults(t *testing.T) {
	upper := 90.0
	cfg := &Config{
		Defaults: DefaultsConfig{
			CPUUpperThreshold: 80, CPULowerThreshold: 20,
			MemUpperThreshold: 80, MemLowerThreshold: 20,
			MinCores: 1, MaxCores: 4, MinMemoryMiB: 512,
			CoreMinIncrement: 1, CoreMaxIncrement: 2,
			MemoryMinIncrement: 256, MinDecreaseChunkMiB: 128,
		},
		Tiers: map[string]TierConfig{
			"high-priority": {
				LXCContainers:     []string{"101", "102"},
				CPUUpperThreshold: &upper,
			},
		},
	}

	flat := cfg.FlattenTiers()
	require.Contains(t, flat, "101")
	require.Contains(t, flat, "102")
	assert.Equal(t, 90.0, flat["101"].CPUUpperThreshold)
	assert.Equal(t, 20.0, flat["101"].CPULowerThreshold, "unoverridden fields fall through from defaults")
	assert.NotContains(t, flat, "999")
}

func TestBuildGroupsAppliesGracePeriodDefaults(t *testing.T) {
	cfg := &Config{Groups: map[string]GroupConfig{
		"web": {LXCContainers: []string{"201"}, CloneNetworkType: "dhcp"},
	}}
	groups := cfg.BuildGroups()
	require.Contains(t, groups, "web")
	assert.Equal(t, types.NetworkDHCP, groups["web"].CloneNetworkType)
	assert.Equal(t, []string{"201"}, groups["web"].Members)
	assert.Equal(t, 300*time.Second, groups["web"].ScaleOutGracePeriod)
	assert.Equal(t, 300*time.Second, groups["web"].ScaleInGracePeriod)
}

func TestLoadConfigDecryptsEncryptedRemotePassword(t *testing.T) {
	mgr, err := secrets.NewManagerFromPassphrase("test-passphrase")
	require.NoError(t, err)
	enc, err := mgr.Encrypt("s3cr3t")
	require.NoError(t, err)

	require.NoError(t, os.Setenv("LXC_AUTOSCALE_SECRETS_KEY", "test-passphrase"))
	defer os.Unsetenv("LXC_AUTOSCALE_SECRETS_KEY")

	path := writeConfig(t, "remote:\n  host: pve.local\n  user: root\n  password: \""+enc+"\"\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Remote.Password)
}

func TestLoadConfigRequiresKeyWhenCredentialsEncrypted(t *testing.T) {
	mgr, err := secrets.NewManagerFromPassphrase("test-passphrase")
	require.NoError(t, err)
	enc, err := mgr.Encrypt("s3cr3t")
	require.NoError(t, err)

	os.Unsetenv("LXC_AUTOSCALE_SECRETS_KEY")
	path := writeConfig(t, "remote:\n  host: pve.local\n  user: root\n  password: \""+enc+"\"\n")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
