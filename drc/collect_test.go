// ABOUTME: Tests for the two-phase trace/sweep collection protocol
// ABOUTME: Covers OASR reconciliation, mark hygiene, cycles, and leak freedom

package drc

import (
	"math/rand"
	"testing"
)

func TestExposeIdempotent(t *testing.T) {
	h := newTestHeap(1 << 12)
	r := mustAllocStruct(t, h, tyLeaf)

	h.ExposeToWasm(r)
	h.ExposeToWasm(r)
	if h.NumExposed() != 1 {
		t.Errorf("exposed count = %d, want 1 after double expose", h.NumExposed())
	}
	if !h.ExposedToWasm(r) {
		t.Error("object should be on the stack-roots list")
	}
}

func TestExposeI31AndNullNoOp(t *testing.T) {
	h := newTestHeap(1 << 12)
	h.ExposeToWasm(FromI31(7))
	h.ExposeToWasm(NullRef)
	if h.NumExposed() != 0 {
		t.Errorf("exposed count = %d, want 0", h.NumExposed())
	}
}

func TestExposeDoesNotTouchRefCount(t *testing.T) {
	h := newTestHeap(1 << 12)
	r := mustAllocStruct(t, h, tyLeaf)

	h.ExposeToWasm(r)
	if h.RefCount(r) != 1 {
		t.Errorf("refcount after expose = %d, want 1", h.RefCount(r))
	}
}

// Scenario: allocate a struct, expose it, run a cycle with it on the stack,
// then a second cycle with no roots.
func TestCollectTwoCycleLifetime(t *testing.T) {
	h := newTestHeap(1 << 12)
	s := mustAllocStruct(t, h, tyLeaf)
	baseline := h.UsedBytes()
	h.ExposeToWasm(s)

	// First cycle: s is a precise on-stack root. It survives, stays listed,
	// and its mark bit is cleared again.
	h.Collect(nil, RootSlice{{Ref: s, InGuestFrame: true}})
	if h.NumObjects() != 1 {
		t.Fatalf("object count after first cycle = %d, want 1", h.NumObjects())
	}
	if !h.ExposedToWasm(s) {
		t.Error("s should still be on the stack-roots list")
	}
	if h.flagSet(s, flagMarked) {
		t.Error("mark bit should be cleared after sweep")
	}
	if h.UsedBytes() != baseline {
		t.Errorf("used bytes = %d, want %d", h.UsedBytes(), baseline)
	}

	// Second cycle: no roots. s is unlinked, decremented to zero, and freed.
	h.Collect(nil, RootSlice{})
	if h.NumObjects() != 0 {
		t.Errorf("object count after second cycle = %d, want 0", h.NumObjects())
	}
	if h.NumExposed() != 0 {
		t.Errorf("exposed count = %d, want 0", h.NumExposed())
	}
	if h.UsedBytes() != 0 {
		t.Errorf("used bytes = %d, want 0", h.UsedBytes())
	}
}

func TestCollectIncrementPhases(t *testing.T) {
	h := newTestHeap(1 << 12)
	s := mustAllocStruct(t, h, tyLeaf)
	h.ExposeToWasm(s)

	c := h.StartCollection(nil, RootSlice{{Ref: s, InGuestFrame: true}})
	if p := c.CollectIncrement(); p != ProgressContinue {
		t.Errorf("after trace: progress = %v, want ProgressContinue", p)
	}
	// Traced but not yet swept: the mark is still set.
	if !h.flagSet(s, flagMarked) {
		t.Error("expected s to be marked between trace and sweep")
	}
	if p := c.CollectIncrement(); p != ProgressComplete {
		t.Errorf("after sweep: progress = %v, want ProgressComplete", p)
	}
	if p := c.CollectIncrement(); p != ProgressComplete {
		t.Errorf("after completion: progress = %v, want ProgressComplete", p)
	}
	if h.flagSet(s, flagMarked) {
		t.Error("mark bit should be cleared after sweep")
	}
}

func TestCollectSkipsNonFrameRoots(t *testing.T) {
	h := newTestHeap(1 << 12)
	s := mustAllocStruct(t, h, tyLeaf)
	h.ExposeToWasm(s)

	// A root held only in a global is not re-traced; with no frame roots the
	// sweep drops the list's count and frees s.
	h.Collect(nil, RootSlice{{Ref: s, InGuestFrame: false}})
	if h.NumObjects() != 0 {
		t.Errorf("object count = %d, want 0", h.NumObjects())
	}
}

func TestCollectIgnoresI31AndNullRoots(t *testing.T) {
	h := newTestHeap(1 << 12)
	h.Collect(nil, RootSlice{
		{Ref: FromI31(3), InGuestFrame: true},
		{Ref: NullRef, InGuestFrame: true},
	})
	if h.NumExposed() != 0 {
		t.Errorf("exposed count = %d, want 0", h.NumExposed())
	}
}

func TestCollectUnexposedFrameRootPanics(t *testing.T) {
	h := newTestHeap(1 << 12)
	s := mustAllocStruct(t, h, tyLeaf)

	c := h.StartCollection(nil, RootSlice{{Ref: s, InGuestFrame: true}})
	expectPanic(t, "on-stack root missing from the stack-roots list", func() {
		c.CollectIncrement()
	})
}

func TestSweepCascadesIntoUnlistedObjects(t *testing.T) {
	h := newTestHeap(1 << 12)

	// An exposed array owns three structs that were never exposed. Sweeping
	// the array away must cascade through them.
	arr := mustAllocArray(t, h, tyRefArray, 3)
	for i := uint32(0); i < 3; i++ {
		s := mustAllocStruct(t, h, tyLeaf)
		h.WriteArrayElemRef(nil, arr, i, s)
		h.DecRefAndMaybeDealloc(nil, s)
	}
	h.ExposeToWasm(arr)

	h.Collect(nil, RootSlice{})
	if h.NumObjects() != 0 {
		t.Errorf("object count = %d, want 0 after sweep cascade", h.NumObjects())
	}
	if h.UsedBytes() != 0 {
		t.Errorf("used bytes = %d, want 0", h.UsedBytes())
	}
}

func TestSweepCascadesThroughException(t *testing.T) {
	h := newTestHeap(1 << 12)

	// An exposed exception owns a payload struct that was never exposed.
	// Sweeping the exception away must trace its fields and free both.
	exc, err := h.AllocException(tyExc)
	if err != nil {
		t.Fatalf("AllocException failed: %v", err)
	}
	payload := mustAllocStruct(t, h, tyLeaf)
	h.WriteStructFieldRef(nil, exc, 0, payload)
	h.DecRefAndMaybeDealloc(nil, payload)
	h.ExposeToWasm(exc)

	h.Collect(nil, RootSlice{{Ref: exc, InGuestFrame: true}})
	if h.NumObjects() != 2 {
		t.Fatalf("object count = %d, want 2 while the stack holds the exception", h.NumObjects())
	}

	h.Collect(nil, RootSlice{})
	if h.NumObjects() != 0 {
		t.Errorf("object count = %d, want 0 after sweep cascade", h.NumObjects())
	}
	if h.UsedBytes() != 0 {
		t.Errorf("used bytes = %d, want 0", h.UsedBytes())
	}
}

func TestSweepKeepsHeapReferencedSurvivors(t *testing.T) {
	h := newTestHeap(1 << 12)

	// parent (exposed, on stack) -> child (exposed, not on stack this cycle).
	// The child survives because the parent's field owns a count; only its
	// list membership ends.
	parent := mustAllocStruct(t, h, tyNode)
	child := mustAllocStruct(t, h, tyLeaf)
	h.WriteStructFieldRef(nil, parent, 0, child) // child: 2 (ours + field)
	h.ExposeToWasm(parent)                       // our count of parent moves into the list
	h.ExposeToWasm(child)                        // our count of child moves into the list

	h.Collect(nil, RootSlice{{Ref: parent, InGuestFrame: true}})
	if h.NumObjects() != 2 {
		t.Fatalf("object count = %d, want 2", h.NumObjects())
	}
	if h.ExposedToWasm(child) {
		t.Error("child should have left the stack-roots list")
	}
	if h.RefCount(child) != 1 {
		t.Errorf("child refcount = %d, want 1 (parent's field)", h.RefCount(child))
	}

	// Dropping the parent's chain now frees both.
	h.Collect(nil, RootSlice{})
	if h.NumObjects() != 0 {
		t.Errorf("object count = %d, want 0", h.NumObjects())
	}
}

func TestCyclesAreRetained(t *testing.T) {
	h := newTestHeap(1 << 12)

	// a <-> b with no external owners. Reference counting cannot reclaim
	// cycles; this documents the limitation rather than fixing it.
	a := mustAllocStruct(t, h, tyNode)
	b := mustAllocStruct(t, h, tyNode)
	h.WriteStructFieldRef(nil, a, 0, b)
	h.WriteStructFieldRef(nil, b, 0, a)
	h.DecRefAndMaybeDealloc(nil, a)
	h.DecRefAndMaybeDealloc(nil, b)

	h.Collect(nil, RootSlice{})
	if h.NumObjects() != 2 {
		t.Errorf("cycle members reclaimed: object count = %d, want 2", h.NumObjects())
	}
}

func TestMarkHygieneAfterSweep(t *testing.T) {
	h := newTestHeap(1 << 14)

	var survivors []Ref
	for i := 0; i < 8; i++ {
		s := mustAllocStruct(t, h, tyLeaf)
		h.ExposeToWasm(s)
		survivors = append(survivors, s)
	}
	roots := make(RootSlice, len(survivors))
	for i, s := range survivors {
		roots[i] = Root{Ref: s, InGuestFrame: true}
	}

	h.Collect(nil, roots)
	if h.NumExposed() != len(survivors) {
		t.Errorf("exposed count = %d, want %d", h.NumExposed(), len(survivors))
	}
	for _, s := range survivors {
		if h.flagSet(s, flagMarked) {
			t.Errorf("object %#x still marked after sweep", uint32(s))
		}
	}
}

// Property: for any acyclic reference graph, dropping every root and running
// one cycle with an empty root set returns the heap to its baseline.
func TestPropertyNoLeaksWithoutCycles(t *testing.T) {
	for seed := 0; seed < 30; seed++ {
		r := rand.New(rand.NewSource(int64(seed)))
		h := newTestHeap(1 << 18)

		n := r.Intn(60) + 2
		nodes := make([]Ref, n)
		for i := range nodes {
			nodes[i] = mustAllocStruct(t, h, tyPair)
		}

		// Wire random edges that only point backwards, so the graph stays
		// acyclic.
		for i := 1; i < n; i++ {
			for _, off := range []uint32{0, 4} {
				if r.Float32() < 0.5 {
					h.WriteStructFieldRef(nil, nodes[i], off, nodes[r.Intn(i)])
				}
			}
		}

		// Every node escapes to the stack; ownership transfers to the list.
		for _, node := range nodes {
			h.ExposeToWasm(node)
		}

		h.Collect(nil, RootSlice{})
		if h.UsedBytes() != 0 {
			t.Errorf("seed %d: used bytes = %d, want 0", seed, h.UsedBytes())
		}
		if h.NumObjects() != 0 {
			t.Errorf("seed %d: object count = %d, want 0", seed, h.NumObjects())
		}
	}
}
