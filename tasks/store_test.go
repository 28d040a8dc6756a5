package tasks

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// backends builds one instance of every Store implementation so the
// shared lifecycle tests run identically against all of them.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	boltStore, err := NewBoltStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"bolt":   boltStore,
	}
}

// ============================================================================
// LEVEL 2: Store Tests — shared semantics across all backends
// ============================================================================

func TestStore_CreateDefaults(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			task, err := store.Create(&Task{})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if task.ID == "" {
				t.Error("expected generated ID")
			}
			if task.Status != StatusPending {
				t.Errorf("expected pending status, got %s", task.Status)
			}
			if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
				t.Error("expected timestamps to be stamped")
			}

			got, err := store.Load(task.ID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.ID != task.ID || got.Status != StatusPending {
				t.Errorf("loaded record does not match created one: %+v", got)
			}
		})
	}
}

func TestStore_CreateDuplicateID(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if _, err := store.Create(&Task{ID: "dup"}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if _, err := store.Create(&Task{ID: "dup"}); !errors.Is(err, ErrTaskExists) {
				t.Errorf("expected ErrTaskExists, got %v", err)
			}
		})
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if _, err := store.Load("missing"); !errors.Is(err, ErrTaskNotFound) {
				t.Errorf("expected ErrTaskNotFound, got %v", err)
			}
		})
	}
}

func TestStore_StatusTransitions(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			task, err := store.Create(&Task{ID: "t1"})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			// Forward transitions succeed.
			task, err = store.UpdateStatus(task.ID, StatusRunning, "", "")
			if err != nil {
				t.Fatalf("pending → running failed: %v", err)
			}
			if task.Status != StatusRunning {
				t.Errorf("expected running, got %s", task.Status)
			}

			// Backwards is rejected.
			if _, err := store.UpdateStatus(task.ID, StatusPending, "", ""); !errors.Is(err, ErrBadTransition) {
				t.Errorf("expected ErrBadTransition, got %v", err)
			}

			task, err = store.UpdateStatus(task.ID, StatusCompleted, "the answer", "")
			if err != nil {
				t.Fatalf("running → completed failed: %v", err)
			}
			if task.Result != "the answer" {
				t.Errorf("expected result recorded, got %q", task.Result)
			}
			if task.CompletedAt == nil {
				t.Fatal("expected CompletedAt stamped on terminal transition")
			}
			completedAt := *task.CompletedAt

			// Repeating the terminal status is a no-op.
			task, err = store.UpdateStatus(task.ID, StatusCompleted, "", "")
			if err != nil {
				t.Fatalf("repeated terminal status should be accepted: %v", err)
			}
			if !task.CompletedAt.Equal(completedAt) {
				t.Error("repeated terminal status must not restamp CompletedAt")
			}

			// Any other transition on a terminal task is rejected.
			if _, err := store.UpdateStatus(task.ID, StatusFailed, "", "boom"); !errors.Is(err, ErrTaskTerminal) {
				t.Errorf("expected ErrTaskTerminal, got %v", err)
			}

			// The record kept its terminal state.
			got, err := store.Load(task.ID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Status != StatusCompleted || got.Error != "" {
				t.Errorf("terminal record mutated: %+v", got)
			}
		})
	}
}

func TestStore_UpdateStatusFailure(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			task, err := store.Create(&Task{ID: "t1"})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			task, err = store.UpdateStatus(task.ID, StatusFailed, "", "remote exploded")
			if err != nil {
				t.Fatalf("pending → failed should be allowed: %v", err)
			}
			if task.Error != "remote exploded" {
				t.Errorf("expected error text recorded, got %q", task.Error)
			}
			if task.CompletedAt == nil {
				t.Error("expected CompletedAt stamped")
			}
		})
	}
}

func TestStore_SaveRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			task, err := store.Create(&Task{ID: "t1"})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			task.RemoteRunID = 99
			task.RemoteStatus = RemoteActive
			task.WebURL = "https://runs.example/99"
			if err := store.Save(task); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Load("t1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.RemoteRunID != 99 || got.RemoteStatus != RemoteActive {
				t.Errorf("saved fields lost: %+v", got)
			}
		})
	}
}

func TestStore_ListOrderAndLimit(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			for _, id := range []string{"a", "b", "c"} {
				if _, err := store.Create(&Task{ID: id}); err != nil {
					t.Fatalf("Create %s failed: %v", id, err)
				}
				time.Sleep(5 * time.Millisecond)
			}

			// Touch "a" so it becomes the most recently updated.
			if _, err := store.UpdateStatus("a", StatusRunning, "", ""); err != nil {
				t.Fatalf("UpdateStatus failed: %v", err)
			}

			all, err := store.List(0)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 tasks, got %d", len(all))
			}
			if all[0].ID != "a" {
				t.Errorf("expected most recently updated first, got %s", all[0].ID)
			}

			limited, err := store.List(2)
			if err != nil {
				t.Fatalf("List with limit failed: %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("expected 2 tasks, got %d", len(limited))
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if _, err := store.Create(&Task{ID: "t1"}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			existed, err := store.Delete("t1")
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if !existed {
				t.Error("expected Delete to report the record existed")
			}

			existed, err = store.Delete("t1")
			if err != nil {
				t.Fatalf("second Delete failed: %v", err)
			}
			if existed {
				t.Error("deleting a missing task should report false")
			}

			if _, err := store.Load("t1"); !errors.Is(err, ErrTaskNotFound) {
				t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			if _, err := store.Create(&Task{}); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Create after close: expected ErrStoreClosed, got %v", err)
			}
			if _, err := store.Load("t1"); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Load after close: expected ErrStoreClosed, got %v", err)
			}
			if _, err := store.List(0); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("List after close: expected ErrStoreClosed, got %v", err)
			}

			// Closing twice is safe.
			if err := store.Close(); err != nil {
				t.Errorf("second Close failed: %v", err)
			}
		})
	}
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	task, err := store.Create(&Task{ID: "t1", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mutating the returned record must not touch the stored one.
	task.Metadata["k"] = "mutated"
	task.Status = StatusFailed

	got, err := store.Load("t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Metadata["k"] != "v" || got.Status != StatusPending {
		t.Errorf("stored record mutated through returned copy: %+v", got)
	}
}

func TestStore_CustomIDGenerator(t *testing.T) {
	n := 0
	store := NewMemoryStore(WithIDGenerator(func() string {
		n++
		return "gen-1"
	}))
	defer store.Close()

	task, err := store.Create(&Task{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID != "gen-1" {
		t.Errorf("expected generated ID gen-1, got %s", task.ID)
	}
	if n != 1 {
		t.Errorf("expected generator called once, got %d", n)
	}
}
