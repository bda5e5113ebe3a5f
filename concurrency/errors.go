package concurrency

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolShutdown is returned by Submit after Shutdown or ShutdownNow,
	// and delivered through the handles of tasks drained by ShutdownNow.
	ErrPoolShutdown = errors.New("worker pool is shut down")

	// ErrNilTask is returned by Submit when given a nil task.
	ErrNilTask = errors.New("task must not be nil")

	// ErrTaskDiscarded resolves the handle of a task dropped by the Discard
	// or DiscardOldest rejection policies.
	ErrTaskDiscarded = errors.New("task discarded by rejection policy")

	// ErrContended is returned by VersionedRef.TryUpdate when the bounded
	// attempt budget is exhausted. Routine under contention; retry or take a
	// blocking path.
	ErrContended = errors.New("versioned ref: update contended past attempt budget")
)

// CapacityError reports a submission rejected under the Abort policy. It
// carries a load snapshot so the caller can decide whether to retry, shed
// load, or fail the enclosing request.
type CapacityError struct {
	Policy        RejectionPolicy
	Workers       int
	MaxWorkers    int
	QueueDepth    int
	QueueCapacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("pool capacity exceeded (policy=%s workers=%d/%d queue=%d/%d)",
		e.Policy, e.Workers, e.MaxWorkers, e.QueueDepth, e.QueueCapacity)
}

// InitError wraps an error returned by a OnceCell factory.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// TaskError wraps a failure produced by a task body, including recovered
// panics. It is delivered through the task's handle, never to the worker.
type TaskError struct {
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
