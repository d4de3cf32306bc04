package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simsynai/platform/internal/app/domain/chat"
	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/domain/user"
	"github.com/simsynai/platform/internal/app/storage"
)

func TestTaskLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	task, err := s.CreateTask(ctx, simulation.Task{
		OwnerID: "u1", Name: "t", ModelPath: "/m", Duration: 1, StepSize: 0.1,
		Status:     simulation.StatusPending,
		Parameters: map[string]any{"a": 1.0},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID == "" || task.CreatedAt.IsZero() {
		t.Fatalf("missing generated fields: %+v", task)
	}

	// Mutating the returned value must not leak into the store.
	task.Parameters["a"] = 99.0
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Parameters["a"] != 1.0 {
		t.Fatal("stored task aliased caller's map")
	}

	got.Status = simulation.StatusRunning
	updated, err := s.UpdateTask(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != simulation.StatusRunning {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && updated.UpdatedAt != updated.CreatedAt {
		t.Fatal("updated_at not maintained")
	}

	if _, err := s.GetTask(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateTask(ctx, simulation.Task{ID: "missing"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasksOrderAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.CreateTask(ctx, simulation.Task{OwnerID: "u1", Name: "t", ModelPath: "/m", Duration: 1, StepSize: 0.1}); err != nil {
			t.Fatalf("create: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := s.CreateTask(ctx, simulation.Task{OwnerID: "u2", Name: "other", ModelPath: "/m", Duration: 1, StepSize: 0.1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := s.ListTasks(ctx, "u1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].CreatedAt.After(tasks[i-1].CreatedAt) {
			t.Fatal("tasks must be newest first")
		}
	}

	page, err := s.ListTasks(ctx, "u1", 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != tasks[1].ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	empty, err := s.ListTasks(ctx, "u1", 10, 5)
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestListStaleRunning(t *testing.T) {
	s := New()
	ctx := context.Background()

	running, _ := s.CreateTask(ctx, simulation.Task{OwnerID: "u", Name: "r", ModelPath: "/m", Duration: 1, StepSize: 0.1, Status: simulation.StatusRunning})
	s.CreateTask(ctx, simulation.Task{OwnerID: "u", Name: "p", ModelPath: "/m", Duration: 1, StepSize: 0.1, Status: simulation.StatusPending})

	stale, err := s.ListStaleRunning(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != running.ID {
		t.Fatalf("unexpected stale set: %+v", stale)
	}

	none, err := s.ListStaleRunning(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected none stale, got %d", len(none))
	}
}

func TestResultRecords(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.CreateResult(ctx, simulation.ResultRecord{TaskID: "t1", DataPath: "/r/t1.json", Metadata: map[string]any{"model": "/m"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.GetResultByTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DataPath != "/r/t1.json" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.GetResultByTask(ctx, "t2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserLookups(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, user.User{Username: "alice", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != u.ID {
		t.Fatalf("by username: %v %+v", err, byName)
	}
	byEmail, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("by email: %v %+v", err, byEmail)
	}
	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChatMessageWindow(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := s.CreateMessage(ctx, chat.Message{UserID: "u1", Role: role, Content: "m", Model: "gpt-4o-mini"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	s.CreateMessage(ctx, chat.Message{UserID: "u2", Role: "user", Content: "other", Model: "gpt-4o-mini"})

	msgs, err := s.ListMessages(ctx, "u1", "", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected window of 3, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatal("window must be chronological")
		}
	}
}
