package concurrency

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestVersionedRef_ReadInitial(t *testing.T) {
	ref := NewVersionedRef(42)

	value, version := ref.Read()
	if value != 42 {
		t.Errorf("Expected initial value 42, got %d", value)
	}
	if version != 0 {
		t.Errorf("Expected initial version 0, got %d", version)
	}
}

func TestVersionedRef_CompareAndSwap(t *testing.T) {
	ref := NewVersionedRef("a")

	if !ref.CompareAndSwap("a", 0, "b") {
		t.Fatal("CAS with matching (value, version) should succeed")
	}
	value, version := ref.Read()
	if value != "b" || version != 1 {
		t.Errorf("Expected (b, 1), got (%s, %d)", value, version)
	}

	// Stale version.
	if ref.CompareAndSwap("b", 0, "c") {
		t.Error("CAS with stale version should fail")
	}
	// Wrong value.
	if ref.CompareAndSwap("a", 1, "c") {
		t.Error("CAS with wrong expected value should fail")
	}
	value, version = ref.Read()
	if value != "b" || version != 1 {
		t.Errorf("Failed CAS must leave state unchanged, got (%s, %d)", value, version)
	}
}

func TestVersionedRef_ABADetection(t *testing.T) {
	ref := NewVersionedRef("A")

	// A reader takes a snapshot, then the world changes A -> B -> A.
	snapValue, snapVersion := ref.Read()

	if !ref.CompareAndSwap("A", 0, "B") {
		t.Fatal("A -> B should succeed")
	}
	if !ref.CompareAndSwap("B", 1, "A") {
		t.Fatal("B -> A should succeed")
	}

	// The value is back to A, but the stale snapshot must not pass.
	if ref.CompareAndSwap(snapValue, snapVersion, "C") {
		t.Error("stale CAS succeeded after A->B->A cycle: ABA hazard not detected")
	}

	value, version := ref.Read()
	if value != "A" || version != 2 {
		t.Errorf("Expected (A, 2), got (%s, %d)", value, version)
	}
}

func TestVersionedRef_ConcurrentSingleWinner(t *testing.T) {
	ref := NewVersionedRef(0)

	const contenders = 32
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if ref.CompareAndSwap(0, 0, n+1) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly 1 winner among contenders with the same snapshot, got %d", wins.Load())
	}
	if _, version := ref.Read(); version != 1 {
		t.Errorf("Expected version 1 after single successful update, got %d", version)
	}
}

func TestVersionedRef_ConcurrentUpdates(t *testing.T) {
	ref := NewVersionedRef(0)

	const goroutines = 16
	const updatesEach = 200

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < updatesEach; j++ {
				ref.Update(func(v int) int { return v + 1 })
			}
		}()
	}
	wg.Wait()

	value, version := ref.Read()
	if value != goroutines*updatesEach {
		t.Errorf("Expected value %d, got %d", goroutines*updatesEach, value)
	}
	// Version advances by exactly 1 per successful update.
	if version != uint64(goroutines*updatesEach) {
		t.Errorf("Expected version %d, got %d", goroutines*updatesEach, version)
	}
}

func TestVersionedRef_TryUpdate(t *testing.T) {
	ref := NewVersionedRef(10)

	value, version, err := ref.TryUpdate(func(v int) int { return v * 2 }, 3)
	if err != nil {
		t.Fatalf("Uncontended TryUpdate failed: %v", err)
	}
	if value != 20 || version != 1 {
		t.Errorf("Expected (20, 1), got (%d, %d)", value, version)
	}

	_, _, err = ref.TryUpdate(func(v int) int { return v }, 0)
	if !errors.Is(err, ErrContended) {
		t.Errorf("Expected ErrContended with zero attempt budget, got %v", err)
	}
}

func BenchmarkVersionedRef_Read(b *testing.B) {
	ref := NewVersionedRef(1)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ref.Read()
		}
	})
}

func BenchmarkVersionedRef_Update(b *testing.B) {
	ref := NewVersionedRef(0)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ref.Update(func(v int) int { return v + 1 })
		}
	})
}
