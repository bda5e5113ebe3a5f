package concurrency

import (
	"sync/atomic"
)

// versioned pairs a value with the stamp of the update that produced it.
// Instances are immutable once published; every successful update installs
// a freshly allocated pair.
type versioned[T comparable] struct {
	value   T
	version uint64
}

// VersionedRef is an optimistically updatable cell holding a value together
// with a monotonically increasing version stamp.
//
// A plain compare-and-swap on the value alone is vulnerable to the ABA
// hazard: a concurrent A→B→A sequence between a read and the swap leaves the
// value observably unchanged while the world has moved on. Pairing the value
// with a version defeats this: even if the value returns to A, the version
// has advanced, so a stale swap fails.
//
// Read never blocks, CompareAndSwap never blocks, and a failed swap is the
// expected contention signal rather than an error. Callers retry (see Update
// and TryUpdate) or fall back to a blocking path of their own.
//
// The zero VersionedRef is not usable; create one with NewVersionedRef.
type VersionedRef[T comparable] struct {
	cur atomic.Pointer[versioned[T]]
}

// NewVersionedRef creates a VersionedRef holding initial at version 0.
func NewVersionedRef[T comparable](initial T) *VersionedRef[T] {
	r := &VersionedRef[T]{}
	r.cur.Store(&versioned[T]{value: initial})
	return r
}

// Read returns a consistent (value, version) snapshot. The pair is always
// from a single update; no torn reads are possible because each update
// installs an immutable pair as a unit.
func (r *VersionedRef[T]) Read() (T, uint64) {
	v := r.cur.Load()
	return v.value, v.version
}

// Version returns the current version stamp.
func (r *VersionedRef[T]) Version() uint64 {
	return r.cur.Load().version
}

// CompareAndSwap installs next if and only if the cell currently holds
// exactly (expected, expectedVersion). On success the version advances to
// expectedVersion+1 and true is returned. On failure the cell is left
// unchanged and false is returned; this is a routine outcome under
// contention, not an error.
func (r *VersionedRef[T]) CompareAndSwap(expected T, expectedVersion uint64, next T) bool {
	cur := r.cur.Load()
	if cur.value != expected || cur.version != expectedVersion {
		return false
	}
	// The pointer identity of cur pins the exact (value, version) pair we
	// validated; a concurrent update swaps in a different pointer, so this
	// CAS cannot succeed against a state we did not observe.
	return r.cur.CompareAndSwap(cur, &versioned[T]{value: next, version: expectedVersion + 1})
}

// Update applies fn to the current value and retries until the swap wins.
// It returns the installed value and its version. fn may run multiple times
// and must be side-effect free.
func (r *VersionedRef[T]) Update(fn func(T) T) (T, uint64) {
	for {
		cur := r.cur.Load()
		next := &versioned[T]{value: fn(cur.value), version: cur.version + 1}
		if r.cur.CompareAndSwap(cur, next) {
			return next.value, next.version
		}
	}
}

// TryUpdate is Update with a bounded number of attempts, for callers that
// prefer to back off or take a blocking path instead of spinning under heavy
// contention. It returns ErrContended once maxAttempts swaps have failed.
func (r *VersionedRef[T]) TryUpdate(fn func(T) T, maxAttempts int) (T, uint64, error) {
	for i := 0; i < maxAttempts; i++ {
		cur := r.cur.Load()
		next := &versioned[T]{value: fn(cur.value), version: cur.version + 1}
		if r.cur.CompareAndSwap(cur, next) {
			return next.value, next.version, nil
		}
	}
	var zero T
	return zero, 0, ErrContended
}
