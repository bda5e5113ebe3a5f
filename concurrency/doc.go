// Package concurrency provides three small, hard-to-get-right concurrency
// primitives for embedding in a host process.
//
// # Core Components
//
// Pool - bounded worker pool with admission control and backpressure
//
//	pool, _ := concurrency.NewPool(concurrency.DefaultConfig())
//	handle, err := pool.Submit(ctx, task)
//	result, err := handle.Await(ctx)
//	pool.Shutdown(ctx)
//
// OnceCell - safe one-time lazy initialization
//
//	var cell concurrency.OnceCell[*Thing]
//	thing, err := cell.GetOrInit(buildThing)
//
// VersionedRef - optimistic compare-and-update with ABA protection
//
//	ref := concurrency.NewVersionedRef(0)
//	v, ver := ref.Read()
//	ok := ref.CompareAndSwap(v, ver, v+1)
//
// # Design principles
//
//  1. Admission control - work is accepted, queued, grown into, or rejected
//     deterministically; nothing buffers unboundedly and no task is lost.
//  2. Safe publication - values cross goroutines only through release/acquire
//     edges; no reader ever observes a partially constructed value.
//  3. Routine contention is not an error - a failed CompareAndSwap is a bool,
//     a rejected submission carries a load snapshot, and the caller decides.
//  4. Context awareness - blocking operations accept a context; task bodies
//     receive one for cooperative cancellation.
//  5. Workers never die from task failures - errors and panics are delivered
//     through the task's handle.
package concurrency
