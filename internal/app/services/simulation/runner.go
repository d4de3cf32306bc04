package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/simsynai/platform/pkg/logger"
)

// Runner executes queued simulation tasks on a bounded worker pool. Accepting
// work is decoupled from running it so the HTTP layer can acknowledge an
// execution request immediately.
type Runner struct {
	service *Service
	workers int
	queue   chan string
	log     *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner creates a runner draining into the given service. Workers and
// queue size fall back to sane minimums when unset.
func NewRunner(service *Service, workers, queueSize int, log *logger.Logger) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = logger.NewDefault("simulation-runner")
	}
	return &Runner{
		service: service,
		workers: workers,
		queue:   make(chan string, queueSize),
		log:     log,
	}
}

// Name implements system.Service.
func (r *Runner) Name() string { return "simulation-runner" }

// Start launches the worker pool.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(runCtx)
		}()
	}
	go func() {
		wg.Wait()
		close(r.done)
	}()

	r.log.WithField("workers", r.workers).Info("simulation runner started")
	return nil
}

// Stop cancels the workers and waits for in-flight executions to settle or
// the shutdown context to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	cancel, done := r.cancel, r.done
	r.started = false
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue submits a task id for asynchronous execution. It never blocks;
// when the queue is saturated the caller gets an error and can retry.
func (r *Runner) Enqueue(taskID string) error {
	select {
	case r.queue <- taskID:
		return nil
	default:
		return fmt.Errorf("execution queue is full")
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-r.queue:
			if _, err := r.service.ExecuteTask(ctx, taskID); err != nil {
				r.log.WithField("task_id", taskID).WithError(err).Warn("execute queued task")
			}
		}
	}
}
