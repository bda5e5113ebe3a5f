package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ByteMirror/cogs/log"
)

// RejectionPolicy decides what happens to a submission that finds the pool
// saturated: every worker busy, the queue full, and the worker count at its
// maximum.
type RejectionPolicy int

const (
	// Abort rejects the submission with a *CapacityError.
	Abort RejectionPolicy = iota
	// CallerRuns executes the task synchronously on the submitting
	// goroutine, which doubles as natural backpressure on the producer.
	CallerRuns
	// Discard drops the new task. Submit returns no error; the task's
	// handle resolves rejected with ErrTaskDiscarded so awaiters never hang.
	Discard
	// DiscardOldest evicts the head of the queue to make room for the new
	// task, resolving the evicted handle with ErrTaskDiscarded.
	DiscardOldest
)

func (p RejectionPolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case CallerRuns:
		return "caller-runs"
	case Discard:
		return "discard"
	case DiscardOldest:
		return "discard-oldest"
	default:
		return "unknown"
	}
}

// PoolState is the lifecycle state of a pool.
type PoolState int32

const (
	// PoolRunning accepts submissions.
	PoolRunning PoolState = iota
	// PoolShuttingDown refuses submissions while in-flight work drains.
	PoolShuttingDown
	// PoolStopped means all workers have exited.
	PoolStopped
)

func (s PoolState) String() string {
	switch s {
	case PoolRunning:
		return "running"
	case PoolShuttingDown:
		return "shutting-down"
	case PoolStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds worker pool configuration.
type Config struct {
	// CorePoolSize is the number of workers kept alive regardless of
	// idleness (unless AllowCoreTimeout is set).
	CorePoolSize int
	// MaxPoolSize caps the worker count; must be >= CorePoolSize and > 0.
	MaxPoolSize int
	// KeepAlive is how long an idle non-core worker survives before it
	// retires.
	KeepAlive time.Duration
	// QueueCapacity bounds the work queue. Zero means no queueing: a
	// submission is handed directly to an idle worker or falls through to
	// worker growth and then the rejection policy.
	QueueCapacity int
	// Policy decides the fate of submissions that exceed capacity.
	Policy RejectionPolicy
	// PrewarmCoreWorkers starts CorePoolSize workers eagerly instead of on
	// first submissions.
	PrewarmCoreWorkers bool
	// AllowCoreTimeout lets core workers retire after KeepAlive idleness
	// like non-core ones.
	AllowCoreTimeout bool
	// TaskTimeout, when positive, bounds each task's execution context.
	TaskTimeout time.Duration
	// SinkFactory, when set, is invoked lazily (exactly once) to build the
	// pool's metrics sink. A factory error is logged and the pool runs
	// without a sink until a later execution retries it.
	SinkFactory func() (Sink, error)
}

// DefaultConfig returns a configuration suitable for general-purpose
// background work.
func DefaultConfig() Config {
	return Config{
		CorePoolSize:  2,
		MaxPoolSize:   8,
		KeepAlive:     time.Minute,
		QueueCapacity: 64,
		Policy:        Abort,
	}
}

func (c *Config) validate() error {
	if c.CorePoolSize < 0 {
		return fmt.Errorf("core pool size must be >= 0, got %d", c.CorePoolSize)
	}
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("max pool size must be > 0, got %d", c.MaxPoolSize)
	}
	if c.MaxPoolSize < c.CorePoolSize {
		return fmt.Errorf("max pool size %d must be >= core pool size %d", c.MaxPoolSize, c.CorePoolSize)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keep-alive must be >= 0, got %v", c.KeepAlive)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must be >= 0, got %d", c.QueueCapacity)
	}
	if c.Policy < Abort || c.Policy > DiscardOldest {
		return fmt.Errorf("unknown rejection policy %d", c.Policy)
	}
	return nil
}

// worker is the pool's accounting record for one worker goroutine.
type worker struct {
	id   int
	core bool
}

// Pool is a bounded worker pool with admission control. Submissions are
// placed on the first available path in order: a new core worker, an idle
// worker or the queue, a new non-core worker, and finally the rejection
// policy. Workers beyond CorePoolSize retire after KeepAlive of idleness, so
// the pool shrinks back to its core size when load subsides.
type Pool struct {
	cfg     Config
	metrics *PoolMetrics

	mu        sync.Mutex
	workers   map[int]*worker
	workerSeq int
	queue     chan *TaskHandle

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sink     OnceCell[Sink]
	sinkWarn sync.Once
}

// NewPool creates a pool in the running state. Workers are started lazily as
// submissions arrive unless PrewarmCoreWorkers is set.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:     cfg,
		metrics: &PoolMetrics{},
		workers: make(map[int]*worker),
		queue:   make(chan *TaskHandle, cfg.QueueCapacity),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.state.Store(int32(PoolRunning))

	if cfg.PrewarmCoreWorkers {
		p.mu.Lock()
		for len(p.workers) < cfg.CorePoolSize {
			p.startWorkerLocked(nil, true)
		}
		p.mu.Unlock()
	}

	log.Debugf("pool created: core=%d max=%d queue=%d policy=%s",
		cfg.CorePoolSize, cfg.MaxPoolSize, cfg.QueueCapacity, cfg.Policy)
	return p, nil
}

// State returns the pool lifecycle state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Metrics returns the pool's live metrics.
func (p *Pool) Metrics() *PoolMetrics {
	return p.metrics
}

// WorkerCount returns the current number of workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// QueueDepth returns the number of queued tasks.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Submit admits a task. The returned handle exposes the task's eventual
// outcome via Await and Poll. Submit itself blocks only under the
// CallerRuns policy, when the submitting goroutine executes the task before
// Submit returns.
//
// ctx guards the submission, not the task: a cancelled ctx fails Submit
// (and bounds a CallerRuns execution), while the running task's context is
// the pool's, bounded by Config.TaskTimeout.
func (p *Pool) Submit(ctx context.Context, task Task) (*TaskHandle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := newTaskHandle(task)

	p.mu.Lock()
	if p.State() != PoolRunning {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}
	p.metrics.TasksSubmitted.Add(1)

	// Below core size: start a core worker and hand it the task directly.
	if len(p.workers) < p.cfg.CorePoolSize {
		p.startWorkerLocked(h, true)
		p.mu.Unlock()
		return h, nil
	}

	// An idle worker blocked on the queue receives a sent task directly;
	// otherwise the send lands in the buffer. Either way this covers both
	// the direct-handoff and queueing stages of admission.
	select {
	case p.queue <- h:
		h.markQueued()
		// All workers may have retired between their idle check and this
		// enqueue; make sure someone will serve the queue.
		if len(p.workers) == 0 {
			p.startWorkerLocked(nil, false)
		}
		p.mu.Unlock()
		return h, nil
	default:
	}

	// Queue full: grow toward the maximum.
	if len(p.workers) < p.cfg.MaxPoolSize {
		p.startWorkerLocked(h, false)
		p.mu.Unlock()
		return h, nil
	}

	return p.rejectLocked(ctx, h)
}

// rejectLocked applies the configured rejection policy. Called with p.mu
// held; releases it.
func (p *Pool) rejectLocked(ctx context.Context, h *TaskHandle) (*TaskHandle, error) {
	switch p.cfg.Policy {
	case CallerRuns:
		p.mu.Unlock()
		p.metrics.TasksCallerRun.Add(1)
		log.Debugf("pool saturated, task %s runs on submitter", h.ID())
		p.executeOn(ctx, h)
		return h, nil

	case Discard:
		p.mu.Unlock()
		p.metrics.TasksRejected.Add(1)
		if s := p.currentSink(); s != nil {
			s.TaskRejected(Discard)
		}
		h.reject(ErrTaskDiscarded)
		return h, nil

	case DiscardOldest:
		select {
		case victim := <-p.queue:
			p.metrics.TasksRejected.Add(1)
			victim.reject(ErrTaskDiscarded)
			log.Debugf("discarded oldest task %s for %s", victim.ID(), h.ID())
		default:
		}
		select {
		case p.queue <- h:
			h.markQueued()
			p.mu.Unlock()
			return h, nil
		default:
			// Another submitter refilled the slot; treat as Abort rather
			// than evicting in a loop.
		}
		fallthrough

	default: // Abort
		capErr := &CapacityError{
			Policy:        p.cfg.Policy,
			Workers:       len(p.workers),
			MaxWorkers:    p.cfg.MaxPoolSize,
			QueueDepth:    len(p.queue),
			QueueCapacity: p.cfg.QueueCapacity,
		}
		p.mu.Unlock()
		p.metrics.TasksRejected.Add(1)
		if s := p.currentSink(); s != nil {
			s.TaskRejected(capErr.Policy)
		}
		log.Warnf("submission rejected: %v", capErr)
		return nil, capErr
	}
}

// startWorkerLocked registers and launches a worker, optionally seeded with
// a first task. Called with p.mu held.
func (p *Pool) startWorkerLocked(first *TaskHandle, core bool) {
	w := &worker{id: p.workerSeq, core: core}
	p.workerSeq++
	p.workers[w.id] = w
	p.metrics.WorkersStarted.Add(1)
	p.wg.Add(1)
	go p.runWorker(w, first)
}

// runWorker is the worker goroutine body: execute the seed task if any,
// then loop on the queue until shutdown or idle retirement.
func (p *Pool) runWorker(w *worker, first *TaskHandle) {
	defer p.wg.Done()
	log.Debugf("worker %d started (core=%t)", w.id, w.core)
	if s := p.ensureSink(); s != nil {
		s.WorkerStarted(w.core)
	}

	if first != nil {
		p.execute(w, first)
	}

	for {
		if w.core && !p.cfg.AllowCoreTimeout {
			h, ok := <-p.queue
			if !ok {
				p.exitWorker(w)
				return
			}
			p.execute(w, h)
			continue
		}

		idle := time.NewTimer(p.cfg.KeepAlive)
		select {
		case h, ok := <-p.queue:
			idle.Stop()
			if !ok {
				p.exitWorker(w)
				return
			}
			p.execute(w, h)
		case <-idle.C:
			if p.tryRetire(w) {
				return
			}
		}
	}
}

// tryRetire removes an idle worker from the set unless queued work remains.
// The queue check happens under the pool lock so a concurrent Submit either
// sees the worker gone (and may start a replacement) or the worker sees the
// queued task and keeps serving.
func (p *Pool) tryRetire(w *worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) > 0 {
		return false
	}
	delete(p.workers, w.id)
	p.metrics.WorkersRetired.Add(1)
	log.Debugf("worker %d retired after %v idle (core=%t)", w.id, p.cfg.KeepAlive, w.core)
	if s := p.currentSink(); s != nil {
		s.WorkerStopped(w.core)
	}
	return true
}

// exitWorker removes a worker that stopped because the queue closed.
func (p *Pool) exitWorker(w *worker) {
	p.mu.Lock()
	delete(p.workers, w.id)
	p.mu.Unlock()
	log.Debugf("worker %d stopped", w.id)
	if s := p.currentSink(); s != nil {
		s.WorkerStopped(w.core)
	}
}

// execute runs one task on a worker goroutine.
func (p *Pool) execute(_ *worker, h *TaskHandle) {
	p.executeOn(p.ctx, h)
}

// executeOn runs the task on the calling goroutine (a worker, or the
// submitter under CallerRuns) with panic containment: a task failure is
// recorded on its handle and never takes the goroutine down.
func (p *Pool) executeOn(ctx context.Context, h *TaskHandle) {
	p.metrics.ActiveWorkers.Add(1)
	defer p.metrics.ActiveWorkers.Add(-1)

	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	h.markRunning()
	result, err := runTask(ctx, h.task)
	duration := time.Since(h.startedAt)

	if err != nil {
		p.metrics.TasksFailed.Add(1)
	} else {
		p.metrics.TasksCompleted.Add(1)
	}
	p.metrics.recordLatency(duration)
	if s := p.ensureSink(); s != nil {
		s.TaskObserved(duration, err)
		s.QueueDepth(len(p.queue))
	}

	h.complete(result, err)
}

// runTask invokes the task body, converting a panic into an error.
func runTask(ctx context.Context, task Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}

// ensureSink lazily constructs the metrics sink through the pool's OnceCell.
// A factory failure is logged once and leaves the cell empty, so a later
// execution retries the construction.
func (p *Pool) ensureSink() Sink {
	if p.cfg.SinkFactory == nil {
		return nil
	}
	s, err := p.sink.GetOrInit(p.cfg.SinkFactory)
	if err != nil {
		p.sinkWarn.Do(func() {
			log.Warnf("metrics sink unavailable: %v", err)
		})
		return nil
	}
	return s
}

// currentSink returns the sink only if it is already built; it never
// triggers construction (used on paths that must not block on a factory).
func (p *Pool) currentSink() Sink {
	s, ok := p.sink.Get()
	if !ok {
		return nil
	}
	return s
}

// Shutdown stops intake, lets queued and running tasks finish, and joins
// all workers. It is idempotent: repeated calls wait for the same drain and
// return nil once it is done. ctx bounds only the wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state.CompareAndSwap(int32(PoolRunning), int32(PoolShuttingDown)) {
		log.Infof("pool shutting down: draining %d queued tasks", len(p.queue))
		// Closing the queue lets workers drain remaining tasks and exit.
		// Submit enqueues under p.mu after checking the state, so holding
		// the lock here rules out a send on the closed channel.
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.state.Store(int32(PoolStopped))
		p.cancel()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown wait: %w", ctx.Err())
	}
}

// ShutdownNow stops intake, cancels the context seen by running tasks
// (cooperative, best effort), and returns the handles of tasks that were
// still queued, each resolved rejected with ErrPoolShutdown. Safe to call
// after Shutdown; it then only hurries the drain along.
func (p *Pool) ShutdownNow() []*TaskHandle {
	var drained []*TaskHandle

	p.mu.Lock()
	if p.state.CompareAndSwap(int32(PoolRunning), int32(PoolShuttingDown)) {
		// Drain before closing so idle workers woken by the close find the
		// queue empty instead of racing us for the remaining tasks.
	drain:
		for {
			select {
			case h := <-p.queue:
				drained = append(drained, h)
			default:
				break drain
			}
		}
		close(p.queue)
	}
	p.mu.Unlock()

	p.cancel()

	for _, h := range drained {
		p.metrics.TasksRejected.Add(1)
		h.reject(ErrPoolShutdown)
	}
	if len(drained) > 0 {
		log.Infof("pool shutdown now: %d queued tasks returned unrun", len(drained))
	}

	p.wg.Wait()
	p.state.Store(int32(PoolStopped))
	return drained
}
