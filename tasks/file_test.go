package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := store.Create(&Task{ID: "t1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.UpdateStatus("t1", StatusRunning, "", ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	store.Close()

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load("t1")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("expected running after reopen, got %s", got.Status)
	}
}

func TestFileStore_ListSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer store.Close()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Create(&Task{ID: id}); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}

	// Simulate a torn record on disk.
	corrupt := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("writing corrupt record failed: %v", err)
	}

	tasks, err := store.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 readable tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.ID == "broken" {
			t.Error("corrupt record leaked into listing")
		}
	}
}

func TestFileStore_LoadCorruptRecord(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer store.Close()

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("writing corrupt record failed: %v", err)
	}

	_, err = store.Load("bad")
	if err == nil {
		t.Fatal("expected decode error for corrupt record")
	}
	if errors.Is(err, ErrTaskNotFound) {
		t.Error("corrupt record must not be reported as missing")
	}
	if !strings.Contains(err.Error(), "decode") {
		t.Errorf("expected decode error, got: %v", err)
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer store.Close()

	for i := 0; i < 5; i++ {
		task, err := store.Create(&Task{})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := store.UpdateStatus(task.ID, StatusRunning, "", ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	if _, err := store.Create(&Task{ID: "t1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.UpdateStatus("t1", StatusCompleted, "done", ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load("t1")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if got.Status != StatusCompleted || got.Result != "done" {
		t.Errorf("record lost across reopen: %+v", got)
	}
}
