package workers

import (
	"context"
	"fmt"
	"log/slog"
)

// Task is one deferred continuation, named for logging.
type Task struct {
	Name string
	Fn   func(ctx context.Context)
}

// TaskQueue runs deferred resolution work on a single consumer.
// Tasks submitted from the same source event keep their submission order;
// no ordering is guaranteed across sources. A panicking task is logged and
// dropped, the queue keeps consuming.
type TaskQueue struct {
	log   *slog.Logger
	tasks chan Task
}

func NewTaskQueue(log *slog.Logger, bufferSize int) *TaskQueue {
	return &TaskQueue{log: log, tasks: make(chan Task, bufferSize)}
}

// Submit enqueues a task and returns immediately. When the queue is full the
// task is dropped with a warning; callers treat that as an abandoned
// resolution attempt.
func (q *TaskQueue) Submit(name string, fn func(ctx context.Context)) {
	select {
	case q.tasks <- Task{Name: name, Fn: fn}:
	default:
		q.log.Warn("Task queue full, dropping task", "name", name)
	}
}

// Run consumes tasks until the context is canceled.
func (q *TaskQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.log.Debug("Stopping task queue")
			return ctx.Err()
		case task, ok := <-q.tasks:
			if !ok {
				return nil
			}
			q.runOne(ctx, task)
		}
	}
}

// Flush synchronously drains every task queued so far. Used during shutdown
// and by tests that need deterministic completion of deferred work.
func (q *TaskQueue) Flush(ctx context.Context) {
	for {
		select {
		case task := <-q.tasks:
			q.runOne(ctx, task)
		default:
			return
		}
	}
}

func (q *TaskQueue) runOne(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error(fmt.Sprintf("Deferred task %q panicked: %v", task.Name, r))
		}
	}()
	task.Fn(ctx)
}
