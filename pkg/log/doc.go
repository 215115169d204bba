/*
Package log provides structured logging for the autoscaler daemon using
zerolog. It wraps a single global logger with component- and
entity-specific child loggers, a configurable level, and JSON or
console output.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Entity Loggers                      │          │
	│  │  - WithComponent("controlloop")             │          │
	│  │  - WithContainer("105")                     │          │
	│  │  - WithGroup("web-tier")                    │          │
	│  │  - WithTier("high-priority")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "vertical",                 │          │
	│  │    "ctid": "105",                           │          │
	│  │    "time": "2026-01-13T10:30:00Z",          │          │
	│  │    "message": "increased cores"             │          │
	│  │  }                                           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	import "github.com/cuemby/lxcautoscaled/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("daemon starting")
	log.Warn("host memory reserve nearly exhausted")
	log.Fatal("failed to acquire singleton lock")

Structured logging:

	log.Logger.Info().
		Str("container", "105").
		Int("cores", 4).
		Msg("increased cores")

Entity loggers, used throughout the control loop and scalers so every
line carries the container, group, or tier it concerns without repeating
the field at every call site:

	containerLog := log.WithContainer("105")
	containerLog.Info().Msg("probe succeeded")

	groupLog := log.WithGroup("web-tier")
	groupLog.Info().Msg("scale out complete")

# Security

Never log decrypted credentials (SMTP passwords, Gotify tokens, SSH
passwords) — log that a notification was sent, not its payload.
*/
package log
