package concurrency

import (
	"fmt"
	"sync/atomic"
	"time"
)

// PoolMetrics tracks statistics for a worker pool. All fields are updated
// atomically; readers may load them at any time without coordination.
type PoolMetrics struct {
	TasksSubmitted atomic.Uint64
	TasksCompleted atomic.Uint64
	TasksFailed    atomic.Uint64
	TasksRejected  atomic.Uint64
	TasksCallerRun atomic.Uint64
	WorkersStarted atomic.Uint64
	WorkersRetired atomic.Uint64
	ActiveWorkers  atomic.Int32
	TotalLatency   atomic.Int64 // nanoseconds
	MinLatency     atomic.Int64 // nanoseconds
	MaxLatency     atomic.Int64 // nanoseconds
}

// AverageLatency returns the mean task execution time.
func (m *PoolMetrics) AverageLatency() time.Duration {
	finished := m.TasksCompleted.Load() + m.TasksFailed.Load()
	if finished == 0 {
		return 0
	}
	return time.Duration(m.TotalLatency.Load() / int64(finished))
}

// recordLatency folds one task duration into the latency aggregates.
func (m *PoolMetrics) recordLatency(duration time.Duration) {
	nanos := duration.Nanoseconds()
	m.TotalLatency.Add(nanos)

	for {
		current := m.MinLatency.Load()
		if current != 0 && nanos >= current {
			break
		}
		if m.MinLatency.CompareAndSwap(current, nanos) {
			break
		}
	}

	for {
		current := m.MaxLatency.Load()
		if nanos <= current {
			break
		}
		if m.MaxLatency.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// String returns a one-line summary of the metrics.
func (m *PoolMetrics) String() string {
	return fmt.Sprintf(
		"Tasks: %d submitted, %d completed, %d failed, %d rejected, %d caller-run | "+
			"Latency: avg=%v, min=%v, max=%v | "+
			"Workers: %d started, %d retired, %d active",
		m.TasksSubmitted.Load(),
		m.TasksCompleted.Load(),
		m.TasksFailed.Load(),
		m.TasksRejected.Load(),
		m.TasksCallerRun.Load(),
		m.AverageLatency(),
		time.Duration(m.MinLatency.Load()),
		time.Duration(m.MaxLatency.Load()),
		m.WorkersStarted.Load(),
		m.WorkersRetired.Load(),
		m.ActiveWorkers.Load(),
	)
}

// Sink receives pool events for export to an external metrics system. The
// pool constructs its sink lazily, exactly once, via a OnceCell on first
// worker activity; implementations must be safe for concurrent use.
type Sink interface {
	// TaskObserved records a finished task execution.
	TaskObserved(duration time.Duration, err error)
	// TaskRejected records a rejection under the given policy.
	TaskRejected(policy RejectionPolicy)
	// WorkerStarted records a worker joining the pool.
	WorkerStarted(core bool)
	// WorkerStopped records a worker leaving the pool.
	WorkerStopped(core bool)
	// QueueDepth records the current queue occupancy.
	QueueDepth(depth int)
}
