// ABOUTME: Tests for the in-memory record store: CRUD, copy isolation, clear.
package workflow

import (
	"errors"
	"testing"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	rec, err := s.Create("classify tickets", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(rec.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Goal != "classify tickets" {
		t.Errorf("goal = %q", got.Goal)
	}
	if got.Stage != StageDiscovery {
		t.Errorf("stage = %s", got.Stage)
	}
}

func TestMemoryStoreGetUnknownID(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get("01J00000000000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	rec, _ := s.Create("goal", "")
	id := rec.ID.String()

	got, _ := s.Get(id)
	got.Goal = "mutated"
	got.Artifacts.Set("x", "y")

	again, _ := s.Get(id)
	if again.Goal != "goal" {
		t.Errorf("store shares memory with callers: goal = %q", again.Goal)
	}
	if again.Artifacts.Len() != 0 {
		t.Error("store shares artifact memory with callers")
	}
}

func TestMemoryStoreReplace(t *testing.T) {
	s := NewMemoryStore()
	rec, _ := s.Create("goal", "")
	id := rec.ID.String()

	rec.Stage = StageValidation
	if err := s.Replace(id, rec); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := s.Get(id)
	if got.Stage != StageValidation {
		t.Errorf("replace not persisted: stage = %s", got.Stage)
	}

	if err := s.Replace("01J00000000000000000000000", rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("replace unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteAndClear(t *testing.T) {
	s := NewMemoryStore()
	a, _ := s.Create("a", "")
	b, _ := s.Create("b", "")

	if err := s.Delete(a.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(a.ID.String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted record still readable: %v", err)
	}
	if err := s.Delete(a.ID.String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: expected ErrNotFound, got %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Get(b.ID.String()); !errors.Is(err, ErrNotFound) {
		t.Error("clear left records behind")
	}

	recs, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty list, got %d", len(recs))
	}
}
