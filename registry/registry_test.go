package registry

import (
	"testing"
)

// ============================================================================
// LEVEL 1: Unit Tests — edges, active set, completion
// ============================================================================

func TestValidateRunID(t *testing.T) {
	if err := ValidateRunID(1); err != nil {
		t.Errorf("ValidateRunID(1) failed: %v", err)
	}
	for _, id := range []int64{0, -1} {
		if err := ValidateRunID(id); err != ErrInvalidRunID {
			t.Errorf("ValidateRunID(%d): expected ErrInvalidRunID, got %v", id, err)
		}
	}
}

func TestRegisterAndParent(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	if err := reg.Register(1, 10); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	parent, ok, err := reg.Parent(10)
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if !ok || parent != 1 {
		t.Errorf("expected parent 1, got %d (found=%v)", parent, ok)
	}

	_, ok, err = reg.Parent(99)
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if ok {
		t.Error("expected no parent for unregistered run")
	}
}

func TestRegisterInvalidIDs(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	if err := reg.Register(0, 10); err != ErrInvalidRunID {
		t.Errorf("expected ErrInvalidRunID for zero parent, got %v", err)
	}
	if err := reg.Register(1, -5); err != ErrInvalidRunID {
		t.Errorf("expected ErrInvalidRunID for negative child, got %v", err)
	}
}

func TestChildrenSorted(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	for _, child := range []int64{30, 10, 20} {
		if err := reg.Register(1, child); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	kids, err := reg.Children(1)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	want := []int64{10, 20, 30}
	if len(kids) != len(want) {
		t.Fatalf("expected %d children, got %d", len(want), len(kids))
	}
	for i := range want {
		if kids[i] != want[i] {
			t.Errorf("children[%d] = %d, want %d", i, kids[i], want[i])
		}
	}
}

func TestActiveSet(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	reg.Register(1, 10)
	reg.Register(1, 20)
	reg.Register(2, 30)

	active, err := reg.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active runs, got %d", len(active))
	}

	if err := reg.MarkCompleted(20); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	active, err = reg.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active runs after completion, got %d", len(active))
	}
	for _, id := range active {
		if id == 20 {
			t.Error("completed run still in active set")
		}
	}
}

func TestMarkCompletedIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	reg.Register(1, 10)

	if err := reg.MarkCompleted(10); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := reg.MarkCompleted(10); err != nil {
		t.Errorf("repeated MarkCompleted should be a no-op, got %v", err)
	}

	// Completing a run the registry never saw is fine too.
	if err := reg.MarkCompleted(77); err != nil {
		t.Errorf("MarkCompleted of unknown run should be a no-op, got %v", err)
	}
}

func TestCompletedRunStaysCompleted(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	reg.Register(1, 10)
	reg.MarkCompleted(10)

	// A late re-register must not resurrect the run.
	if err := reg.Register(1, 10); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}
	active, _ := reg.Active()
	for _, id := range active {
		if id == 10 {
			t.Error("completed run resurrected by late Register")
		}
	}

	// The edge itself is still queryable.
	parent, ok, _ := reg.Parent(10)
	if !ok || parent != 1 {
		t.Error("edge lost after completion")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	reg.Register(1, 10)
	reg.Register(1, 10)
	reg.Register(1, 10)

	kids, err := reg.Children(1)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(kids) != 1 {
		t.Errorf("expected 1 child after repeated Register, got %d", len(kids))
	}
}

func TestSnapshotDeepCopy(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()

	reg.Register(1, 10)
	reg.Register(1, 20)
	reg.MarkCompleted(10)

	snap, err := reg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Children[1]) != 2 || snap.Parents[10] != 1 {
		t.Errorf("snapshot missing edges: %+v", snap)
	}
	if len(snap.Active) != 1 || snap.Active[0] != 20 {
		t.Errorf("snapshot active set wrong: %v", snap.Active)
	}
	if len(snap.Completed) != 1 || snap.Completed[0] != 10 {
		t.Errorf("snapshot completed set wrong: %v", snap.Completed)
	}

	// Mutating the snapshot must not touch the registry.
	snap.Children[1][0] = 999
	kids, _ := reg.Children(1)
	if kids[0] == 999 {
		t.Error("snapshot shares slices with the registry")
	}
}

func TestRegistryClosed(t *testing.T) {
	reg := NewMemoryRegistry()
	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := reg.Register(1, 10); err != ErrClosed {
		t.Errorf("Register after close: expected ErrClosed, got %v", err)
	}
	if _, err := reg.Active(); err != ErrClosed {
		t.Errorf("Active after close: expected ErrClosed, got %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
