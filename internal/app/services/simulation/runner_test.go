package simulation

import (
	"context"
	"testing"
	"time"

	domain "github.com/simsynai/platform/internal/app/domain/simulation"
)

func TestRunnerExecutesQueuedTask(t *testing.T) {
	svc, _, ownerID := newTestService(t, &stubEngine{})
	task := createTask(t, svc, ownerID)

	r := NewRunner(svc, 2, 8, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop(context.Background())

	if err := r.Enqueue(task.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		got, err := svc.GetTask(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != domain.StatusCompleted {
				t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("queued task never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunnerQueueFull(t *testing.T) {
	svc, _, _ := newTestService(t, &stubEngine{})

	// Not started, so nothing drains the queue.
	r := NewRunner(svc, 1, 2, nil)
	if err := r.Enqueue("a"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := r.Enqueue("b"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := r.Enqueue("c"); err == nil {
		t.Fatal("expected queue-full error")
	}
}

func TestRunnerDoubleStart(t *testing.T) {
	svc, _, _ := newTestService(t, &stubEngine{})
	r := NewRunner(svc, 1, 2, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop on a stopped runner is a no-op.
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
