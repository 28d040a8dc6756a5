package tasks

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/praxisworks/runkit/logging"
)

// Store persists task records. Implementations must be safe for
// concurrent use.
//
// Three implementations are provided: MemoryStore for tests and
// ephemeral use, FileStore for single-process durability, and
// BoltStore for transactional durability.
type Store interface {
	// Create persists a new task record. A zero ID is filled in by
	// the store's ID generator; a supplied ID must not collide with
	// an existing task. Status defaults to StatusPending. The stored
	// record is returned.
	Create(task *Task) (*Task, error)

	// Save persists the full task record, overwriting any previous
	// version. The record must already exist unless it carries a new
	// ID. UpdatedAt is refreshed.
	Save(task *Task) error

	// Load returns the task with the given ID, or ErrTaskNotFound.
	Load(id string) (*Task, error)

	// List returns up to limit tasks ordered by UpdatedAt, most
	// recent first. limit <= 0 means no limit. Records that fail to
	// decode are logged and skipped, never returned as errors.
	List(limit int) ([]*Task, error)

	// UpdateStatus transitions the task's lifecycle status and
	// records result and error text when non-empty. Transitions are
	// monotonic: terminal tasks accept a repeat of their own status
	// as a no-op but reject everything else with ErrTaskTerminal, and
	// backwards moves return ErrBadTransition. Entering a terminal
	// status stamps CompletedAt. The updated record is returned.
	UpdateStatus(id string, status Status, result, errMsg string) (*Task, error)

	// Delete removes the task record. It reports whether a record
	// existed; deleting a missing task is not an error.
	Delete(id string) (bool, error)

	// Close releases the store. Further operations return
	// ErrStoreClosed.
	Close() error
}

// Option configures a task store.
type Option func(*storeOptions)

type storeOptions struct {
	idGen  func() string
	logger *logging.Logger
}

// WithIDGenerator sets a custom task ID generator. The default
// generates UUIDs.
func WithIDGenerator(gen func() string) Option {
	return func(o *storeOptions) {
		o.idGen = gen
	}
}

// WithLogger sets the logger used for non-fatal store events, such as
// corrupt records skipped during List.
func WithLogger(logger *logging.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{
		idGen:  uuid.NewString,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.idGen == nil {
		o.idGen = uuid.NewString
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	return o
}

// prepareCreate normalizes a record for insertion: fills the ID when
// empty, defaults the status, stamps timestamps. Returns the record
// that should be persisted.
func prepareCreate(task *Task, gen func() string, now time.Time) (*Task, error) {
	if task == nil {
		return nil, ErrInvalidTask
	}
	stored := task.Clone()
	if stored.ID == "" {
		stored.ID = gen()
	}
	if err := ValidateID(stored.ID); err != nil {
		return nil, err
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if !stored.Status.Valid() {
		return nil, ErrBadTransition
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return stored, nil
}

// applyStatus mutates the record for a status transition. It reports
// whether the record changed; unchanged records need not be persisted.
// All three store implementations funnel UpdateStatus through here so
// transition rules live in one place.
func applyStatus(task *Task, status Status, result, errMsg string, now time.Time) (bool, error) {
	if !status.Valid() {
		return false, ErrBadTransition
	}
	if task.Status.IsTerminal() {
		if status == task.Status {
			return false, nil
		}
		return false, ErrTaskTerminal
	}
	if status.rank() < task.Status.rank() {
		return false, ErrBadTransition
	}
	task.Status = status
	if result != "" {
		task.Result = result
	}
	if errMsg != "" {
		task.Error = errMsg
	}
	if status.IsTerminal() && task.CompletedAt == nil {
		completed := now
		task.CompletedAt = &completed
	}
	task.UpdatedAt = now
	return true, nil
}

// sortTasks orders tasks by UpdatedAt descending, breaking ties by ID
// so listings are deterministic.
func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].UpdatedAt.Equal(tasks[j].UpdatedAt) {
			return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// limitTasks truncates a sorted listing to the requested size.
func limitTasks(tasks []*Task, limit int) []*Task {
	if limit > 0 && len(tasks) > limit {
		return tasks[:limit]
	}
	return tasks
}
