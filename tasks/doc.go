// Package tasks defines the task record, its lifecycle, and the stores
// that persist it.
//
// A task tracks one unit of work delegated to a remote agent run. Key
// properties:
//
//   - One-way lifecycle: pending → running → completed or failed
//   - Terminal records are immutable, transitions are validated in one place
//   - Remote statuses are normalized through a single mapping table
//   - Store backends share identical transition semantics
//
// # Basic Usage
//
// Create a store and record a task:
//
//	store := tasks.NewMemoryStore()
//
//	task, err := store.Create(&tasks.Task{
//	    Metadata: map[string]string{"purpose": "research"},
//	})
//
//	// Once the remote service accepts the work:
//	task.AssignRemoteRun(runID, webURL)
//	store.Save(task)
//	store.UpdateStatus(task.ID, tasks.StatusRunning, "", "")
//
//	// And when it finishes:
//	store.UpdateStatus(task.ID, tasks.StatusCompleted, result, "")
//
// # Task Lifecycle
//
// Tasks move through the following states:
//
//	Pending → Running → Completed
//	              ↓
//	           Failed
//
// Transitions are monotonic. A terminal task accepts a repeat of its
// own status as a no-op and rejects everything else with
// ErrTaskTerminal; moving backwards returns ErrBadTransition.
// Cancellation is recorded as Failed with CancellationMarker in the
// error field.
//
// # Remote Statuses
//
// The remote service reports run statuses in its own vocabulary.
// ParseRemoteStatus folds raw strings into a closed set (ACTIVE,
// COMPLETE, ERROR, PAUSED, CANCELLED, UNKNOWN), and each normalized
// status answers three questions through one table: which local status
// it maps to, whether it is terminal, and whether the run counts as
// actively attended.
//
// # Store Backends
//
// Three Store implementations are provided: MemoryStore for tests and
// ephemeral use, FileStore for a directory of JSON records with atomic
// replace-on-write, and BoltStore for transactional bbolt persistence.
// All three funnel status changes through the same helper, so lifecycle
// rules cannot drift between backends.
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use.
package tasks
