// Package eventlog implements the Event Log: an append-only,
// newline-delimited JSON stream of scaling actions. It is write-only from
// the daemon's perspective — nothing in the control loop ever reads it back.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Log appends one JSON line per recorded event to a file, serializing
// concurrent writers with a mutex.
type Log struct {
	path string
	host string

	mu sync.Mutex
}

// New returns a Log that appends to path (created if missing), tagging
// every record with host.
func New(path, host string) *Log {
	return &Log{path: path, host: host}
}

// Record appends one event. Failures are logged by the caller and never
// abort the scaling action that produced the event.
func (l *Log) Record(ctid, action, change string) error {
	rec := types.EventRecord{
		Timestamp:   time.Now(),
		Host:        l.host,
		ContainerID: ctid,
		Action:      action,
		Change:      change,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventlog: marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("eventlog: write %s: %w", l.path, err)
	}
	return nil
}
