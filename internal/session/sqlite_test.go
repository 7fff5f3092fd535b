package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/phonectl/phonectl/internal/action"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	s := &Session{
		ID:               "abc123",
		Task:             "打开美团搜索附近的火锅店",
		DeviceID:         "emulator-5554",
		MaxSteps:         10,
		Status:           StatusFinished,
		Message:          "找到3家",
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		TokensUsed:       100,
		PromptTokens:     60,
		CompletionTokens: 40,
	}
	s.Append(Step{Action: action.Do(action.NameLaunch, map[string]string{"app": "美团"}), Status: StepApplied, Thinking: "先打开美团"})
	s.Append(Step{Action: action.Finish("找到3家"), Status: StepFinished})

	if err := store.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID != s.ID {
		t.Errorf("ID = %q, want %q", loaded.ID, s.ID)
	}
	if loaded.Task != s.Task {
		t.Errorf("Task = %q, want %q", loaded.Task, s.Task)
	}
	if loaded.Status != StatusFinished || !loaded.Finished() {
		t.Errorf("Status = %q, want %q", loaded.Status, StatusFinished)
	}
	if loaded.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d, want 10", loaded.MaxSteps)
	}
	if loaded.TokensUsed != 100 || loaded.PromptTokens != 60 || loaded.CompletionTokens != 40 {
		t.Errorf("tokens = %d/%d/%d, want 100/60/40", loaded.TokensUsed, loaded.PromptTokens, loaded.CompletionTokens)
	}
	if loaded.StepCount() != 2 {
		t.Fatalf("StepCount = %d, want 2", loaded.StepCount())
	}
	first := loaded.Steps[0]
	if first.Index != 0 || first.Action.Name != action.NameLaunch || first.Action.Param("app") != "美团" {
		t.Errorf("first step = %+v", first)
	}
	if first.Thinking != "先打开美团" {
		t.Errorf("Thinking = %q", first.Thinking)
	}
	if !loaded.Steps[1].Action.IsFinish() {
		t.Errorf("second step should be finish, got %+v", loaded.Steps[1].Action)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set after Save")
	}
}

func TestLoadNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrderedByUpdatedAt(t *testing.T) {
	store := newTestStore(t)

	s1 := &Session{ID: "older", Task: "a", Status: StatusRunning, CreatedAt: time.Now().Add(-2 * time.Hour)}
	s2 := &Session{ID: "newer", Task: "b", Status: StatusCancelled, CreatedAt: time.Now().Add(-1 * time.Hour)}

	if err := store.Save(s1); err != nil {
		t.Fatal(err)
	}
	// Small delay to ensure different updated_at.
	time.Sleep(10 * time.Millisecond)
	if err := store.Save(s2); err != nil {
		t.Fatal(err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List len = %d, want 2", len(infos))
	}
	// Newest first.
	if infos[0].ID != "newer" || infos[0].Status != StatusCancelled || infos[0].Task != "b" {
		t.Errorf("first session = %+v", infos[0])
	}
	if infos[1].ID != "older" {
		t.Errorf("second session = %q, want %q", infos[1].ID, "older")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	s := &Session{ID: "del-me", CreatedAt: time.Now()}
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete("del-me"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Load("del-me"); err == nil {
		t.Fatal("expected error after delete")
	}

	if err := store.Delete("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for nonexistent delete, got %v", err)
	}
}

func TestSaveUpdatesExisting(t *testing.T) {
	store := newTestStore(t)

	s := New("task", "", 5)
	s.Append(Step{Action: action.Do(action.NameBack, nil), Status: StepApplied})
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}

	s.Append(Step{Action: action.Do(action.NameHome, nil), Status: StepApplied})
	s.AddUsage(30, 20)
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.StepCount() != 2 {
		t.Errorf("StepCount = %d, want 2", loaded.StepCount())
	}
	if loaded.TokensUsed != 50 {
		t.Errorf("TokensUsed = %d, want 50", loaded.TokensUsed)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("List len = %d, want 1", len(infos))
	}
	if infos[0].Steps != 2 {
		t.Errorf("List steps = %d, want 2", infos[0].Steps)
	}
}

func TestInMemoryStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	s := New("task", "", 3)
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(s.ID); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
