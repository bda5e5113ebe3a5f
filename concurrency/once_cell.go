package concurrency

import (
	"sync"
	"sync/atomic"
)

// Cell states. Transitions:
//
//	cellEmpty → cellInitializing      [slow path winner, under mu]
//	cellInitializing → cellReady      [factory succeeded; terminal]
//	cellInitializing → cellEmpty      [factory failed; retryable]
//
// cellReady is stored only after the value write, so a reader that observes
// cellReady also observes the fully constructed value (release/acquire
// pairing through the atomic state word).
const (
	cellEmpty uint32 = iota
	cellInitializing
	cellReady
)

// OnceCell is a lazily initialized cell: the first caller to win the race
// runs the factory exactly once and publishes the result; every other
// caller, concurrent or later, gets the same value.
//
// The fast path is a single atomic load once the cell is Ready; readers
// never touch the mutex after publication. Losing and late-arriving callers
// block on the slow-path mutex only while initialization is in flight.
//
// A factory error reverts the cell to empty rather than poisoning it: the
// failing caller gets the error (wrapped in *InitError) and a later call may
// retry. Waiters serialized behind a failed attempt re-run the factory
// themselves rather than inheriting the loser's error.
//
// The zero OnceCell is empty and ready to use.
type OnceCell[T any] struct {
	state atomic.Uint32
	mu    sync.Mutex
	value T
}

// GetOrInit returns the published value, running factory first if the cell
// is still empty. The publication of value happens-before every GetOrInit
// return that observes it, so the value may be shared freely afterwards.
func (c *OnceCell[T]) GetOrInit(factory func() (T, error)) (T, error) {
	if c.state.Load() == cellReady {
		return c.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have finished initializing while we waited.
	if c.state.Load() == cellReady {
		return c.value, nil
	}

	c.state.Store(cellInitializing)
	v, err := factory()
	if err != nil {
		c.state.Store(cellEmpty)
		var zero T
		return zero, &InitError{Err: err}
	}

	c.value = v
	// Publishes value: the store below is what fast-path readers pair with.
	c.state.Store(cellReady)
	return v, nil
}

// Get returns the value and true if the cell is Ready, the zero value and
// false otherwise. It never blocks and never triggers initialization.
func (c *OnceCell[T]) Get() (T, bool) {
	if c.state.Load() == cellReady {
		return c.value, true
	}
	var zero T
	return zero, false
}

// Ready reports whether the cell has been initialized.
func (c *OnceCell[T]) Ready() bool {
	return c.state.Load() == cellReady
}
