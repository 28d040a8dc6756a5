package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const taskFileExt = ".json"

// FileStore implements Store on a directory of JSON files, one per
// task. Writes go to a temporary file that is renamed into place, so a
// crash mid-write never leaves a half-written record and readers only
// ever see complete documents.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	opts   storeOptions
	closed atomic.Bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed task store rooted at dir. The
// directory is created if it does not exist.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("task store: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("task store: create directory: %w", err)
	}
	return &FileStore{
		dir:  dir,
		opts: applyOptions(opts),
	}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+taskFileExt)
}

// writeTask persists a record atomically: write to a temp file in the
// same directory, sync, then rename over the final path.
func (s *FileStore) writeTask(task *Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("task store: encode %s: %w", task.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".task-*.tmp")
	if err != nil {
		return fmt.Errorf("task store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("task store: write %s: %w", task.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("task store: sync %s: %w", task.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("task store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(task.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("task store: rename %s: %w", task.ID, err)
	}
	return nil
}

// readTask loads and decodes one record.
func (s *FileStore) readTask(id string) (*Task, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task store: read %s: %w", id, err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("task store: decode %s: %w", id, err)
	}
	return &task, nil
}

// Create persists a new task record.
func (s *FileStore) Create(task *Task) (*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := prepareCreate(task, s.opts.idGen, time.Now())
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path(stored.ID)); err == nil {
		return nil, ErrTaskExists
	}
	if err := s.writeTask(stored); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// Save persists the full task record, overwriting any previous version.
func (s *FileStore) Save(task *Task) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := task.Clone()
	stored.UpdatedAt = time.Now()
	return s.writeTask(stored)
}

// Load returns the task with the given ID.
func (s *FileStore) Load(id string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readTask(id)
}

// List returns up to limit tasks, most recently updated first. Records
// that fail to decode are logged and skipped so one corrupt file never
// hides the rest.
func (s *FileStore) List(limit int) ([]*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("task store: read directory: %w", err)
	}

	var tasks []*Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, taskFileExt) {
			continue
		}
		id := strings.TrimSuffix(name, taskFileExt)
		task, err := s.readTask(id)
		if err != nil {
			s.opts.logger.WithError(err).WithField("file", name).
				Warn("skipping unreadable task record")
			continue
		}
		tasks = append(tasks, task)
	}

	sortTasks(tasks)
	return limitTasks(tasks, limit), nil
}

// UpdateStatus transitions the task's lifecycle status.
func (s *FileStore) UpdateStatus(id string, status Status, result, errMsg string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.readTask(id)
	if err != nil {
		return nil, err
	}
	changed, err := applyStatus(task, status, result, errMsg, time.Now())
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.writeTask(task); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// Delete removes the task record.
func (s *FileStore) Delete(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("task store: delete %s: %w", id, err)
	}
	return true, nil
}

// Close shuts down the store.
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}
