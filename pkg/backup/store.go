// Package backup implements the State Store: it persists the last known
// cores/memory configuration for each container before any mutating
// operation, so the Rollback Driver can restore it later.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Store persists one BackupRecord per container as a JSON file under Dir.
// Writes are atomic (write to a temp file, then rename) and serialized
// per-container so concurrent Save/Load calls for different containers
// never block each other.
type Store struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns a Store rooted at dir, creating dir if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create directory %s: %w", dir, err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(ctid string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[ctid]
	if !ok {
		m = &sync.Mutex{}
		s.locks[ctid] = m
	}
	return m
}

func (s *Store) path(ctid string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_backup.json", ctid))
}

// Save durably records the current cores/memory for ctid, overwriting any
// previous backup. I/O failures are reported to the caller, who per the
// component's error policy logs and continues rather than aborting the tick.
func (s *Store) Save(ctid string, cores, memMiB int) error {
	mu := s.lockFor(ctid)
	mu.Lock()
	defer mu.Unlock()

	rec := types.BackupRecord{Cores: cores, MemMiB: memMiB}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("backup: marshal record for %s: %w", ctid, err)
	}

	target := s.path(ctid)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("backup: write temp file for %s: %w", ctid, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("backup: rename temp file for %s: %w", ctid, err)
	}
	return nil
}

// Load returns the last saved backup for ctid. ok is false if no backup
// file exists.
func (s *Store) Load(ctid string) (rec types.BackupRecord, ok bool, err error) {
	mu := s.lockFor(ctid)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(s.path(ctid))
	if os.IsNotExist(err) {
		return types.BackupRecord{}, false, nil
	}
	if err != nil {
		return types.BackupRecord{}, false, fmt.Errorf("backup: read file for %s: %w", ctid, err)
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return types.BackupRecord{}, false, fmt.Errorf("backup: parse file for %s: %w", ctid, err)
	}
	rec.CTID = ctid
	return rec, true, nil
}
