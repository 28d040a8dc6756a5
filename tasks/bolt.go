package tasks

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

var taskBucket = []byte("tasks")

// BoltStore implements Store on a bbolt database. Every mutation runs
// in a single write transaction, so records are durable and never half
// written even across crashes.
type BoltStore struct {
	db     *bolt.DB
	opts   storeOptions
	closed atomic.Bool
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) a bbolt-backed task store at path.
func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("task store: database path required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("task store: open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(taskBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("task store: create bucket: %w", err)
	}
	return &BoltStore{
		db:   db,
		opts: applyOptions(opts),
	}, nil
}

func decodeTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func putTask(b *bolt.Bucket, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("task store: encode %s: %w", task.ID, err)
	}
	return b.Put([]byte(task.ID), data)
}

// Create persists a new task record.
func (s *BoltStore) Create(task *Task) (*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var stored *Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		prepared, err := prepareCreate(task, s.opts.idGen, time.Now())
		if err != nil {
			return err
		}
		if b.Get([]byte(prepared.ID)) != nil {
			return ErrTaskExists
		}
		if err := putTask(b, prepared); err != nil {
			return err
		}
		stored = prepared
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Save persists the full task record, overwriting any previous version.
func (s *BoltStore) Save(task *Task) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := task.Validate(); err != nil {
		return err
	}

	stored := task.Clone()
	stored.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		return putTask(tx.Bucket(taskBucket), stored)
	})
}

// Load returns the task with the given ID.
func (s *BoltStore) Load(id string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var task *Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(taskBucket).Get([]byte(id))
		if data == nil {
			return ErrTaskNotFound
		}
		decoded, err := decodeTask(data)
		if err != nil {
			return fmt.Errorf("task store: decode %s: %w", id, err)
		}
		task = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// List returns up to limit tasks, most recently updated first. Records
// that fail to decode are logged and skipped.
func (s *BoltStore) List(limit int) ([]*Task, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var tasks []*Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(taskBucket).ForEach(func(k, v []byte) error {
			task, err := decodeTask(v)
			if err != nil {
				s.opts.logger.WithError(err).WithField("key", string(k)).
					Warn("skipping unreadable task record")
				return nil
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortTasks(tasks)
	return limitTasks(tasks, limit), nil
}

// UpdateStatus transitions the task's lifecycle status.
func (s *BoltStore) UpdateStatus(id string, status Status, result, errMsg string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var task *Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrTaskNotFound
		}
		decoded, err := decodeTask(data)
		if err != nil {
			return fmt.Errorf("task store: decode %s: %w", id, err)
		}
		changed, err := applyStatus(decoded, status, result, errMsg, time.Now())
		if err != nil {
			return err
		}
		if changed {
			if err := putTask(b, decoded); err != nil {
				return err
			}
		}
		task = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the task record.
func (s *BoltStore) Delete(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrStoreClosed
	}

	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		if b.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(id))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// Close shuts down the store and the underlying database.
func (s *BoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
