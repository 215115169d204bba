// Package notify is the notification fan-out collaborator: the core control
// loop and scalers depend only on the Notifier interface defined here, never
// on a concrete transport, so the Gotify, email, and webhook senders stay
// outside the core.
package notify

import "github.com/cuemby/lxcautoscaled/pkg/log"

// Notifier sends a single human-readable notification. Implementations
// must not block the control loop for long; callers fan out to every
// configured Notifier and log (rather than propagate) individual failures.
type Notifier interface {
	Notify(title, message string, priority int) error
}

// Fanout sends every notification to all of its members, logging (not
// returning) per-member failures — the duck-typed notifier list described
// by the external interfaces.
type Fanout struct {
	Notifiers []Notifier
}

// Notify implements Notifier by broadcasting to every member.
func (f Fanout) Notify(title, message string, priority int) error {
	if len(f.Notifiers) == 0 {
		log.Logger.Warn().Msg("no notification system configured")
		return nil
	}
	for _, n := range f.Notifiers {
		if err := n.Notify(title, message, priority); err != nil {
			log.Logger.Error().Err(err).Msg("notifier failed")
		}
	}
	return nil
}
