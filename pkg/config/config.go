// Package config loads and validates the daemon's YAML configuration file
// with viper, the way teradata-labs/loom's cmd/looms/config.go does:
// mapstructure-tagged structs, SetDefault for every optional field, and a
// Validate method run once after load.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/cuemby/lxcautoscaled/pkg/secrets"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Config is the fully parsed, validated daemon configuration.
type Config struct {
	Defaults   DefaultsConfig            `mapstructure:"defaults"`
	Tiers      map[string]TierConfig     `mapstructure:"tiers"`
	Groups     map[string]GroupConfig    `mapstructure:"groups"`
	Remote     *RemoteConfig             `mapstructure:"remote"`
	Notifiers  NotifiersConfig           `mapstructure:"notifiers"`
}

// DefaultsConfig holds the global defaults and daemon-wide paths/flags.
type DefaultsConfig struct {
	LogFile   string `mapstructure:"log_file"`
	LockFile  string `mapstructure:"lock_file"`
	BackupDir string `mapstructure:"backup_dir"`
	EventLog  string `mapstructure:"event_log"`

	IgnoreLXC []string `mapstructure:"ignore_lxc"`

	PollIntervalSeconds int    `mapstructure:"poll_interval"`
	EnergyMode          bool   `mapstructure:"energy_mode"`
	Behaviour           string `mapstructure:"behaviour"`

	ReserveCPUPercent int `mapstructure:"reserve_cpu_percent"`
	ReserveMemoryMiB  int `mapstructure:"reserve_memory_mb"`

	OffPeakStart int `mapstructure:"off_peak_start"`
	OffPeakEnd   int `mapstructure:"off_peak_end"`

	CPUUpperThreshold float64 `mapstructure:"cpu_upper_threshold"`
	CPULowerThreshold float64 `mapstructure:"cpu_lower_threshold"`
	MemUpperThreshold float64 `mapstructure:"memory_upper_threshold"`
	MemLowerThreshold float64 `mapstructure:"memory_lower_threshold"`

	MinCores            int `mapstructure:"min_cores"`
	MaxCores            int `mapstructure:"max_cores"`
	MinMemoryMiB        int `mapstructure:"min_memory"`
	CoreMinIncrement    int `mapstructure:"core_min_increment"`
	CoreMaxIncrement    int `mapstructure:"core_max_increment"`
	MemoryMinIncrement  int `mapstructure:"memory_min_increment"`
	MinDecreaseChunkMiB int `mapstructure:"min_decrease_chunk"`

	HealthPort int  `mapstructure:"health_port"`
	UseRemote  bool `mapstructure:"use_remote_proxmox"`

	SnapshotEnabled         bool   `mapstructure:"snapshot_enabled"`
	SnapshotPath            string `mapstructure:"snapshot_path"`
	SnapshotIntervalSeconds int    `mapstructure:"snapshot_interval"`
}

// TierConfig overrides the defaults' thresholds/bounds for a named set of
// container IDs.
type TierConfig struct {
	LXCContainers []string `mapstructure:"lxc_containers"`

	CPUUpperThreshold *float64 `mapstructure:"cpu_upper_threshold"`
	CPULowerThreshold *float64 `mapstructure:"cpu_lower_threshold"`
	MemUpperThreshold *float64 `mapstructure:"memory_upper_threshold"`
	MemLowerThreshold *float64 `mapstructure:"memory_lower_threshold"`

	MinCores            *int `mapstructure:"min_cores"`
	MaxCores            *int `mapstructure:"max_cores"`
	MinMemoryMiB        *int `mapstructure:"min_memory"`
	CoreMinIncrement    *int `mapstructure:"core_min_increment"`
	CoreMaxIncrement    *int `mapstructure:"core_max_increment"`
	MemoryMinIncrement  *int `mapstructure:"memory_min_increment"`
	MinDecreaseChunkMiB *int `mapstructure:"min_decrease_chunk"`
}

// GroupConfig describes one horizontal scaling group.
type GroupConfig struct {
	LXCContainers    []string `mapstructure:"lxc_containers"`
	StartingCloneID  int      `mapstructure:"starting_clone_id"`
	MaxInstances     int      `mapstructure:"max_instances"`
	MinInstances     int      `mapstructure:"min_instances"`
	BaseSnapshotCTID string   `mapstructure:"base_snapshot_name"`

	HorizCPUUpperThreshold float64 `mapstructure:"horiz_cpu_upper_threshold"`
	HorizMemUpperThreshold float64 `mapstructure:"horiz_memory_upper_threshold"`
	HorizCPULowerThreshold float64 `mapstructure:"horiz_cpu_lower_threshold"`
	HorizMemLowerThreshold float64 `mapstructure:"horiz_memory_lower_threshold"`

	ScaleOutGracePeriodSeconds int `mapstructure:"scale_out_grace_period"`
	ScaleInGracePeriodSeconds  int `mapstructure:"scale_in_grace_period"`

	CloneNetworkType string   `mapstructure:"clone_network_type"`
	StaticIPRange    []string `mapstructure:"static_ip_range"`
}

// RemoteConfig describes the SSH back-end for the host executor.
type RemoteConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	KeyPath  string `mapstructure:"key_path"`
}

// NotifiersConfig lists the optional outbound notification sinks.
type NotifiersConfig struct {
	Gotify *GotifyConfig `mapstructure:"gotify"`
	Email  *EmailConfig  `mapstructure:"email"`
	Webhook *WebhookConfig `mapstructure:"webhook"`
}

// GotifyConfig configures the Gotify notifier.
type GotifyConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// EmailConfig configures the SMTP notifier.
type EmailConfig struct {
	SMTPServer string   `mapstructure:"smtp_server"`
	Port       int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"smtp_username"`
	Password   string   `mapstructure:"smtp_password"`
	From       string   `mapstructure:"smtp_from"`
	To         []string `mapstructure:"smtp_to"`
}

// WebhookConfig configures the webhook (e.g. Uptime Kuma push) notifier.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// LoadConfig reads the YAML configuration at path (or the default location
// if path is empty), applies defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lxc_autoscale")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/lxc_autoscale")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LXC_AUTOSCALE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: parse config file: %w", err)
		}
		if path != "" {
			return nil, fmt.Errorf("config: config file not found at %s: %w", path, err)
		}
		// No config file anywhere: proceed with defaults only, matching the
		// original daemon's "use defaults" fallback when unconfigured.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// decryptSecrets resolves any "enc:"-prefixed credential fields using the
// key derived from LXC_AUTOSCALE_SECRETS_KEY. Plaintext fields pass
// through untouched, so encryption is opt-in per deployment.
func (c *Config) decryptSecrets() error {
	hasEncrypted := (c.Remote != nil && secrets.IsEncrypted(c.Remote.Password)) ||
		(c.Notifiers.Gotify != nil && secrets.IsEncrypted(c.Notifiers.Gotify.Token)) ||
		(c.Notifiers.Email != nil && secrets.IsEncrypted(c.Notifiers.Email.Password))
	if !hasEncrypted {
		return nil
	}

	passphrase := os.Getenv("LXC_AUTOSCALE_SECRETS_KEY")
	if passphrase == "" {
		return fmt.Errorf("config carries encrypted credentials but LXC_AUTOSCALE_SECRETS_KEY is not set")
	}
	mgr, err := secrets.NewManagerFromPassphrase(passphrase)
	if err != nil {
		return err
	}

	if c.Remote != nil {
		if c.Remote.Password, err = mgr.Decrypt(c.Remote.Password); err != nil {
			return fmt.Errorf("remote.password: %w", err)
		}
	}
	if c.Notifiers.Gotify != nil {
		if c.Notifiers.Gotify.Token, err = mgr.Decrypt(c.Notifiers.Gotify.Token); err != nil {
			return fmt.Errorf("notifiers.gotify.token: %w", err)
		}
	}
	if c.Notifiers.Email != nil {
		if c.Notifiers.Email.Password, err = mgr.Decrypt(c.Notifiers.Email.Password); err != nil {
			return fmt.Errorf("notifiers.email.smtp_password: %w", err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.log_file", "/var/log/lxc_autoscale.log")
	v.SetDefault("defaults.lock_file", "/var/lock/lxc_autoscale.lock")
	v.SetDefault("defaults.backup_dir", "/var/lib/lxc_autoscale/backups")
	v.SetDefault("defaults.event_log", "/var/log/lxc_autoscale.json")

	v.SetDefault("defaults.poll_interval", 300)
	v.SetDefault("defaults.energy_mode", false)
	v.SetDefault("defaults.behaviour", "normal")

	v.SetDefault("defaults.reserve_cpu_percent", 10)
	v.SetDefault("defaults.reserve_memory_mb", 2048)

	v.SetDefault("defaults.off_peak_start", 22)
	v.SetDefault("defaults.off_peak_end", 6)

	v.SetDefault("defaults.cpu_upper_threshold", 80.0)
	v.SetDefault("defaults.cpu_lower_threshold", 20.0)
	v.SetDefault("defaults.memory_upper_threshold", 80.0)
	v.SetDefault("defaults.memory_lower_threshold", 20.0)

	v.SetDefault("defaults.min_cores", 1)
	v.SetDefault("defaults.max_cores", 4)
	v.SetDefault("defaults.min_memory", 512)
	v.SetDefault("defaults.core_min_increment", 1)
	v.SetDefault("defaults.core_max_increment", 2)
	v.SetDefault("defaults.memory_min_increment", 256)
	v.SetDefault("defaults.min_decrease_chunk", 128)

	v.SetDefault("defaults.health_port", 0)
	v.SetDefault("defaults.use_remote_proxmox", false)

	v.SetDefault("defaults.snapshot_enabled", false)
	v.SetDefault("defaults.snapshot_path", "/var/lib/lxc_autoscale/snapshot.json")
	v.SetDefault("defaults.snapshot_interval", 300)
}

// Validate checks the cross-field invariants the rest of the daemon relies
// on: ordered thresholds, positive bounds, and a behaviour value the
// Vertical Scaler knows how to multiply.
func (c *Config) Validate() error {
	d := c.Defaults
	if d.CPULowerThreshold >= d.CPUUpperThreshold {
		return fmt.Errorf("defaults: cpu_lower_threshold must be less than cpu_upper_threshold")
	}
	if d.MemLowerThreshold >= d.MemUpperThreshold {
		return fmt.Errorf("defaults: memory_lower_threshold must be less than memory_upper_threshold")
	}
	if d.MinCores <= 0 || d.MaxCores < d.MinCores {
		return fmt.Errorf("defaults: min_cores/max_cores out of range")
	}
	switch types.Behaviour(d.Behaviour) {
	case types.BehaviourNormal, types.BehaviourConservative, types.BehaviourAggressive:
	default:
		return fmt.Errorf("defaults: unrecognized behaviour %q", d.Behaviour)
	}
	if d.OffPeakStart < 0 || d.OffPeakStart > 23 || d.OffPeakEnd < 0 || d.OffPeakEnd > 23 {
		return fmt.Errorf("defaults: off_peak_start/off_peak_end must be hours 0-23")
	}

	for name, g := range c.Groups {
		if g.MaxInstances < g.MinInstances {
			return fmt.Errorf("group %s: max_instances must be >= min_instances", name)
		}
		if g.BaseSnapshotCTID == "" {
			return fmt.Errorf("group %s: base_snapshot_name is required", name)
		}
	}

	return nil
}

// DefaultTier builds the fallback types.Tier from the Defaults block.
func (c *Config) DefaultTier() *types.Tier {
	d := c.Defaults
	return &types.Tier{
		Name:                "default",
		CPUUpperThreshold:   d.CPUUpperThreshold,
		CPULowerThreshold:   d.CPULowerThreshold,
		MemUpperThreshold:   d.MemUpperThreshold,
		MemLowerThreshold:   d.MemLowerThreshold,
		MinCores:            d.MinCores,
		MaxCores:            d.MaxCores,
		MinMemMiB:           d.MinMemoryMiB,
		CoreMinIncrement:    d.CoreMinIncrement,
		CoreMaxIncrement:    d.CoreMaxIncrement,
		MemMinIncrementMiB:  d.MemoryMinIncrement,
		MinDecreaseChunkMiB: d.MinDecreaseChunkMiB,
	}
}

// FlattenTiers builds the container-id -> tier mapping the Tier Resolver
// needs, applying each tier's overrides on top of the defaults.
func (c *Config) FlattenTiers() map[string]*types.Tier {
	def := c.DefaultTier()
	out := make(map[string]*types.Tier)

	for name, tc := range c.Tiers {
		t := *def
		t.Name = name
		if tc.CPUUpperThreshold != nil {
			t.CPUUpperThreshold = *tc.CPUUpperThreshold
		}
		if tc.CPULowerThreshold != nil {
			t.CPULowerThreshold = *tc.CPULowerThreshold
		}
		if tc.MemUpperThreshold != nil {
			t.MemUpperThreshold = *tc.MemUpperThreshold
		}
		if tc.MemLowerThreshold != nil {
			t.MemLowerThreshold = *tc.MemLowerThreshold
		}
		if tc.MinCores != nil {
			t.MinCores = *tc.MinCores
		}
		if tc.MaxCores != nil {
			t.MaxCores = *tc.MaxCores
		}
		if tc.MinMemoryMiB != nil {
			t.MinMemMiB = *tc.MinMemoryMiB
		}
		if tc.CoreMinIncrement != nil {
			t.CoreMinIncrement = *tc.CoreMinIncrement
		}
		if tc.CoreMaxIncrement != nil {
			t.CoreMaxIncrement = *tc.CoreMaxIncrement
		}
		if tc.MemoryMinIncrement != nil {
			t.MemMinIncrementMiB = *tc.MemoryMinIncrement
		}
		if tc.MinDecreaseChunkMiB != nil {
			t.MinDecreaseChunkMiB = *tc.MinDecreaseChunkMiB
		}

		tcopy := t
		for _, ctid := range tc.LXCContainers {
			out[ctid] = &tcopy
		}
	}

	return out
}

// BuildGroups converts the configured groups into runtime types.Group
// values with their membership sets initialized.
func (c *Config) BuildGroups() map[string]*types.Group {
	out := make(map[string]*types.Group, len(c.Groups))
	for name, gc := range c.Groups {
		out[name] = &types.Group{
			Name:                name,
			Members:             append([]string(nil), gc.LXCContainers...),
			StartingCloneID:     gc.StartingCloneID,
			MaxInstances:        gc.MaxInstances,
			MinInstances:        gc.MinInstances,
			BaseSnapshotCTID:    gc.BaseSnapshotCTID,
			CPUUpperThreshold:   gc.HorizCPUUpperThreshold,
			MemUpperThreshold:   gc.HorizMemUpperThreshold,
			CPULowerThreshold:   gc.HorizCPULowerThreshold,
			MemLowerThreshold:   gc.HorizMemLowerThreshold,
			ScaleOutGracePeriod: secondsOrDefault(gc.ScaleOutGracePeriodSeconds, 300),
			ScaleInGracePeriod:  secondsOrDefault(gc.ScaleInGracePeriodSeconds, 300),
			CloneNetworkType:    types.NetworkType(gc.CloneNetworkType),
			StaticIPRange:       gc.StaticIPRange,
		}
	}
	return out
}

func secondsOrDefault(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
