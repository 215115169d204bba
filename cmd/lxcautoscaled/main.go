// Command lxcautoscaled runs the autonomic resource manager daemon:
// continuous tier-based vertical scaling and group-based horizontal
// scaling of LXC containers on a single Proxmox-style hypervisor host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/lxcautoscaled/pkg/api"
	"github.com/cuemby/lxcautoscaled/pkg/backup"
	"github.com/cuemby/lxcautoscaled/pkg/config"
	"github.com/cuemby/lxcautoscaled/pkg/controlloop"
	"github.com/cuemby/lxcautoscaled/pkg/eventlog"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/horizontal"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/metrics"
	"github.com/cuemby/lxcautoscaled/pkg/notify"
	"github.com/cuemby/lxcautoscaled/pkg/probe"
	"github.com/cuemby/lxcautoscaled/pkg/sshexec"
	"github.com/cuemby/lxcautoscaled/pkg/tier"
	"github.com/cuemby/lxcautoscaled/pkg/types"
	"github.com/cuemby/lxcautoscaled/pkg/vertical"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lxcautoscaled",
	Short:   "Autonomic resource manager for LXC containers on a hypervisor host",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")

	rootCmd.Flags().Int("poll-interval", 0, "Override the configured poll interval (seconds)")
	rootCmd.Flags().Bool("energy-mode", false, "Override the configured energy-saving mode")
	rootCmd.Flags().Bool("rollback", false, "Roll every container back to its last backed-up settings and exit")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	lock, err := controlloop.AcquireLock(cfg.Defaults.LockFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("executor", true, "")
	metrics.RegisterComponent("probe", false, "waiting for first tick")
	metrics.RegisterComponent("control_loop", false, "waiting for first tick")

	exec := buildExecutor(cfg)
	if c, ok := exec.(interface{ Close() error }); ok {
		defer c.Close()
	}
	p := probe.New(exec)

	store, err := backup.New(cfg.Defaults.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to initialize backup store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rollback, _ := cmd.Flags().GetBool("rollback"); rollback {
		events := eventlog.New(cfg.Defaults.EventLog, hostname())
		log.Logger.Info().Msg("rolling back all containers to backed-up settings")
		return controlloop.Rollback(ctx, exec, p, store, events)
	}

	events := eventlog.New(cfg.Defaults.EventLog, hostname())

	resolver, err := tier.New(cfg.FlattenTiers(), cfg.DefaultTier())
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	notifier := buildNotifier(cfg)

	pollInterval := cfg.Defaults.PollIntervalSeconds
	if override, _ := cmd.Flags().GetInt("poll-interval"); override > 0 {
		pollInterval = override
	}
	energyMode := cfg.Defaults.EnergyMode
	if override, _ := cmd.Flags().GetBool("energy-mode"); override {
		energyMode = true
	}

	ignore := make(map[string]bool, len(cfg.Defaults.IgnoreLXC))
	for _, id := range cfg.Defaults.IgnoreLXC {
		ignore[id] = true
	}

	horiz := horizontal.New(exec, events, notifier)
	groups := cfg.BuildGroups()

	loop := &controlloop.Loop{
		Exec:   exec,
		Probe:  p,
		Backup: store,
		Events: events,
		Tiers:  resolver,

		Vertical:   vertical.New(exec, events, notifier),
		Horizontal: horiz,
		Groups:     groups,

		Ignore: ignore,

		PollInterval: time.Duration(pollInterval) * time.Second,
		EnergyMode:   energyMode,
		Behaviour:    types.Behaviour(cfg.Defaults.Behaviour),

		ReserveCPUPercent: cfg.Defaults.ReserveCPUPercent,
		ReserveMemoryMiB:  cfg.Defaults.ReserveMemoryMiB,
		OffPeakStart:      cfg.Defaults.OffPeakStart,
		OffPeakEnd:        cfg.Defaults.OffPeakEnd,

		SnapshotPath:     snapshotPath(cfg),
		SnapshotInterval: time.Duration(cfg.Defaults.SnapshotIntervalSeconds) * time.Second,
	}

	var apiServer *api.Server
	if cfg.Defaults.HealthPort > 0 {
		apiServer = api.New(exec, p, store, horiz, groups)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Defaults.HealthPort)
			log.Logger.Info().Str("addr", addr).Msg("starting health/metrics endpoint")
			if err := apiServer.ListenAndServe(addr); err != nil {
				log.Logger.Error().Err(err).Msg("health endpoint exited")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control loop exited: %w", err)
		}
	}

	return nil
}

func buildExecutor(cfg *config.Config) executor.Executor {
	if cfg.Defaults.UseRemote && cfg.Remote != nil {
		return sshexec.New(sshexec.Config{
			Host:     cfg.Remote.Host,
			Port:     cfg.Remote.Port,
			User:     cfg.Remote.User,
			Password: cfg.Remote.Password,
			KeyPath:  cfg.Remote.KeyPath,
		})
	}
	return executor.NewLocal()
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if g := cfg.Notifiers.Gotify; g != nil && g.URL != "" && g.Token != "" {
		notifiers = append(notifiers, notify.NewGotify(g.URL, g.Token))
	}
	if e := cfg.Notifiers.Email; e != nil && e.SMTPServer != "" {
		notifiers = append(notifiers, &notify.Email{
			SMTPServer: e.SMTPServer,
			Port:       e.Port,
			Username:   e.Username,
			Password:   e.Password,
			From:       e.From,
			To:         e.To,
		})
	}
	if w := cfg.Notifiers.Webhook; w != nil && w.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(w.URL))
	}
	return notify.Fanout{Notifiers: notifiers}
}

// snapshotPath returns the configured metrics snapshot destination, or ""
// to keep the exporter disabled when snapshot_enabled is false.
func snapshotPath(cfg *config.Config) string {
	if !cfg.Defaults.SnapshotEnabled {
		return ""
	}
	return cfg.Defaults.SnapshotPath
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

