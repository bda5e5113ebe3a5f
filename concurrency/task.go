package concurrency

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work executed by the pool. Execute receives a context
// that is cancelled on ShutdownNow (and bounded by Config.TaskTimeout when
// set); long-running tasks should honor it cooperatively.
type Task interface {
	Execute(ctx context.Context) (interface{}, error)
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context) (interface{}, error)

func (f TaskFunc) Execute(ctx context.Context) (interface{}, error) {
	return f(ctx)
}

// TaskStatus is the lifecycle state of a submitted task.
type TaskStatus int32

const (
	// TaskPending means the task has been admitted but not yet queued or
	// handed to a worker.
	TaskPending TaskStatus = iota
	// TaskQueued means the task is waiting in the work queue.
	TaskQueued
	// TaskRunning means a worker (or, under CallerRuns, the submitter) is
	// executing the task.
	TaskRunning
	// TaskCompleted means the task finished without error.
	TaskCompleted
	// TaskFailed means the task returned an error or panicked.
	TaskFailed
	// TaskRejected means the task was refused by a rejection policy or
	// drained by ShutdownNow before running.
	TaskRejected
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskRejected
}

// TaskHandle tracks a submitted task. Await blocks for the outcome; Poll is
// the non-blocking probe. A handle resolves exactly once: completed, failed,
// or rejected. A task is never lost and never finishes twice.
type TaskHandle struct {
	id   string
	task Task

	status atomic.Int32
	done   chan struct{}

	// Written once before done is closed, read only after.
	result interface{}
	err    error

	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
}

func newTaskHandle(task Task) *TaskHandle {
	h := &TaskHandle{
		id:          uuid.NewString(),
		task:        task,
		done:        make(chan struct{}),
		submittedAt: time.Now(),
	}
	h.status.Store(int32(TaskPending))
	return h
}

// ID returns the handle's unique identifier.
func (h *TaskHandle) ID() string {
	return h.id
}

// Poll returns the current status without blocking.
func (h *TaskHandle) Poll() TaskStatus {
	return TaskStatus(h.status.Load())
}

// Done returns a channel closed when the task reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Await blocks until the task reaches a terminal state or ctx is cancelled.
// It returns the task's result, or the task's error wrapped in *TaskError,
// or the rejection error for tasks that never ran.
func (h *TaskHandle) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Duration returns how long the task ran, or zero if it never started.
func (h *TaskHandle) Duration() time.Duration {
	if h.startedAt.IsZero() || h.finishedAt.IsZero() {
		return 0
	}
	return h.finishedAt.Sub(h.startedAt)
}

func (h *TaskHandle) setStatus(s TaskStatus) {
	h.status.Store(int32(s))
}

// markQueued stamps the handle Queued only while it is still Pending. The
// stamp races the receiver: with a parked worker (or direct handoff) the
// task can run to completion before the submitter gets here, and a terminal
// status must never regress.
func (h *TaskHandle) markQueued() {
	h.status.CompareAndSwap(int32(TaskPending), int32(TaskQueued))
}

// markRunning records the execution start.
func (h *TaskHandle) markRunning() {
	h.startedAt = time.Now()
	h.setStatus(TaskRunning)
}

// complete resolves the handle with the task's outcome. result and err must
// be set before done is closed so that Await observes them safely.
func (h *TaskHandle) complete(result interface{}, err error) {
	h.finishedAt = time.Now()
	h.result = result
	if err != nil {
		h.err = &TaskError{TaskID: h.id, Err: err}
		h.setStatus(TaskFailed)
	} else {
		h.setStatus(TaskCompleted)
	}
	close(h.done)
}

// reject resolves the handle for a task that will never run.
func (h *TaskHandle) reject(err error) {
	h.finishedAt = time.Now()
	h.err = err
	h.setStatus(TaskRejected)
	close(h.done)
}
