// Package snapshot is the metrics-snapshot-exporter collaborator: it writes
// the most recently collected sample map to a JSON file on a fixed
// interval, for an external anomaly-detection process to consume. No
// anomaly detection is implemented here — only the export.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Document is the JSON document written to the snapshot path.
type Document struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Containers  []types.Sample  `json:"containers"`
}

// Write atomically writes samples to path (write-temp-then-rename, the same
// discipline the state store uses for its backup files).
func Write(path string, samples []types.Sample) error {
	doc := Document{GeneratedAt: time.Now(), Containers: samples}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename temp file: %w", err)
	}
	return nil
}
