package tasks

import (
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Useful for testing and single-process scenarios.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*Task
	opts   storeOptions
	closed atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Task),
		opts: applyOptions(opts),
	}
}

// Create persists a new task record.
func (s *MemoryStore) Create(task *Task) (*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := prepareCreate(task, s.opts.idGen, time.Now())
	if err != nil {
		return nil, err
	}
	if _, ok := s.data[stored.ID]; ok {
		return nil, ErrTaskExists
	}
	s.data[stored.ID] = stored

	// Return a copy to prevent mutation of the stored record.
	return stored.Clone(), nil
}

// Save persists the full task record, overwriting any previous version.
func (s *MemoryStore) Save(task *Task) error {
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
	s.data[stored.ID] = stored
	return nil
}

// Load returns the task with the given ID.
func (s *MemoryStore) Load(id string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.data[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns up to limit tasks, most recently updated first.
func (s *MemoryStore) List(limit int) ([]*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.RLock()
	tasks := make([]*Task, 0, len(s.data))
	for _, t := range s.data {
		tasks = append(tasks, t.Clone())
	}
	s.mu.RUnlock()

	sortTasks(tasks)
	return limitTasks(tasks, limit), nil
}

// UpdateStatus transitions the task's lifecycle status.
func (s *MemoryStore) UpdateStatus(id string, status Status, result, errMsg string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.data[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if _, err := applyStatus(task, status, result, errMsg, time.Now()); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// Delete removes the task record.
func (s *MemoryStore) Delete(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return false, nil
	}
	delete(s.data, id)
	return true, nil
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
	return nil
}
