package session //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hive/pkg/protocol"
)

func TestSaveGetDelete(t *testing.T) {
	m := NewManager(t.TempDir())

	rec := protocol.AgentRecord{ID: 1, State: protocol.AgentIdle, Phase: "starting"}
	if err := m.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != "starting" {
		t.Errorf("phase = %q, want starting", got.Phase)
	}

	if err := m.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var notFound *protocol.SessionNotFoundError
	if _, err := m.Get(1); !errors.As(err, &notFound) {
		t.Fatalf("get after delete: err = %v, want SessionNotFoundError", err)
	}
	if err := m.Delete(1); !errors.As(err, &notFound) {
		t.Fatalf("double delete: err = %v, want SessionNotFoundError", err)
	}
}

func TestUpdate(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(protocol.AgentRecord{ID: 2, State: protocol.AgentWorking}); err != nil {
		t.Fatal(err)
	}

	err := m.Update(2, func(rec *protocol.AgentRecord) {
		rec.TasksCompleted++
		rec.State = protocol.AgentIdle
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := m.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if got.TasksCompleted != 1 || got.State != protocol.AgentIdle {
		t.Errorf("record after update = %+v", got)
	}

	var notFound *protocol.SessionNotFoundError
	if err := m.Update(9, func(*protocol.AgentRecord) {}); !errors.As(err, &notFound) {
		t.Fatalf("update unknown id: err = %v, want SessionNotFoundError", err)
	}
}

func TestListOrderedByID(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, id := range []int{3, 1, 2} {
		if err := m.Save(protocol.AgentRecord{ID: id, State: protocol.AgentIdle}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, rec := range all {
		if rec.ID != i+1 {
			t.Errorf("position %d has id %d, want %d", i, rec.ID, i+1)
		}
	}
}

func TestListWithErrors(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(protocol.AgentRecord{ID: 1, State: protocol.AgentIdle}); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(protocol.AgentRecord{ID: 2, State: protocol.AgentIdle, LastError: "boom", ErrorCount: 3}); err != nil {
		t.Fatal(err)
	}

	bad, err := m.ListWithErrors()
	if err != nil {
		t.Fatal(err)
	}
	if len(bad) != 1 || bad[0].ID != 2 {
		t.Fatalf("ListWithErrors = %+v, want only agent 2", bad)
	}
}

func TestCorruptSessionsFileSelfHeals(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, protocol.SessionsFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	all, err := m.List()
	if err != nil {
		t.Fatalf("list on corrupt store: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("corrupt store should read as empty, got %d records", len(all))
	}
}
