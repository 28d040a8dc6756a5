package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRegistry is a Registry persisted to a single JSON snapshot file.
// Every mutation rewrites the snapshot through a temp file and rename,
// so the file on disk is always a complete document. On open, an
// existing snapshot is loaded; the active set in it is what a
// restarted orchestrator resumes watching.
type FileRegistry struct {
	mu   sync.Mutex
	mem  *MemoryRegistry
	path string
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry opens (or creates) a file-backed registry at path.
// A corrupt snapshot is reported as an error rather than silently
// discarded: losing the relationship graph would orphan delegated runs.
func NewFileRegistry(path string) (*FileRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("registry: snapshot path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create directory: %w", err)
	}

	r := &FileRegistry{
		mem:  NewMemoryRegistry(),
		path: path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("registry: corrupt snapshot %s: %w", path, err)
	}
	r.mem.restore(&snap)
	return r, nil
}

// persist writes the current snapshot atomically.
// Must be called with the mutation lock held.
func (r *FileRegistry) persist() error {
	snap, err := r.mem.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("registry: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("registry: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("registry: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: rename snapshot: %w", err)
	}
	return nil
}

// Register records a delegation edge and persists the snapshot.
func (r *FileRegistry) Register(parentRunID, childRunID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.mem.Register(parentRunID, childRunID); err != nil {
		return err
	}
	return r.persist()
}

// MarkCompleted moves a run out of the active set and persists.
func (r *FileRegistry) MarkCompleted(runID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.mem.MarkCompleted(runID); err != nil {
		return err
	}
	return r.persist()
}

// Parent returns the run that delegated childRunID.
func (r *FileRegistry) Parent(childRunID int64) (int64, bool, error) {
	return r.mem.Parent(childRunID)
}

// Children returns the runs delegated by parentRunID, sorted.
func (r *FileRegistry) Children(parentRunID int64) ([]int64, error) {
	return r.mem.Children(parentRunID)
}

// Active returns a sorted snapshot of the runs being watched.
func (r *FileRegistry) Active() ([]int64, error) {
	return r.mem.Active()
}

// Snapshot returns a deep copy of the relationship state.
func (r *FileRegistry) Snapshot() (*Snapshot, error) {
	return r.mem.Snapshot()
}

// Close shuts down the registry. State is already on disk, so closing
// only releases the in-memory copy.
func (r *FileRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mem.Close()
}
