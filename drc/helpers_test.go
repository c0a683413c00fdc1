// ABOUTME: Shared fixtures for the drc package tests
// ABOUTME: In-memory type registry, recording host-data table, and alloc helpers

package drc

import "testing"

// Test type identities, registered in newTestRegistry.
const (
	tyLeaf     TypeID = iota + 1 // struct, 8 bytes, no refs
	tyNode                       // struct, 8 bytes: ref at 0, scalar at 4
	tyPair                       // struct, 8 bytes: refs at 0 and 4
	tyRefArray                   // array of refs
	tyI64Array                   // array of 8-byte scalars
	tyExc                        // exception, 8 bytes: ref at 0
)

// testRegistry is a map-backed TypeRegistry.
type testRegistry map[TypeID]TypeLayout

func (r testRegistry) LayoutOf(ty TypeID) (TypeLayout, bool) {
	l, ok := r[ty]
	return l, ok
}

func newTestRegistry() testRegistry {
	return testRegistry{
		tyLeaf: {Struct: &StructLayout{Size: 8, Align: 8}},
		tyNode: {Struct: &StructLayout{Size: 8, Align: 8, Fields: []FieldLayout{
			{Offset: 0, IsRef: true},
			{Offset: 4, IsRef: false},
		}}},
		tyPair: {Struct: &StructLayout{Size: 8, Align: 4, Fields: []FieldLayout{
			{Offset: 0, IsRef: true},
			{Offset: 4, IsRef: true},
		}}},
		tyRefArray: {Array: &ArrayLayout{ElemSize: 4, ElemIsRef: true}},
		tyI64Array: {Array: &ArrayLayout{ElemSize: 8, ElemIsRef: false}},
		tyExc: {Struct: &StructLayout{Size: 8, Align: 8, Fields: []FieldLayout{
			{Offset: 0, IsRef: true},
		}}},
	}
}

func newTestHeap(capacity uint32) *Heap {
	return NewHeap(newTestRegistry(), make([]byte, capacity))
}

// recordingTable records every host-data release.
type recordingTable struct {
	deallocs []HostDataID
}

func (rt *recordingTable) Dealloc(id HostDataID) {
	rt.deallocs = append(rt.deallocs, id)
}

func mustAllocStruct(t *testing.T, h *Heap, ty TypeID) Ref {
	t.Helper()
	r, err := h.AllocStruct(ty)
	if err != nil {
		t.Fatalf("AllocStruct(%d) failed: %v", ty, err)
	}
	return r
}

func mustAllocArray(t *testing.T, h *Heap, ty TypeID, count uint32) Ref {
	t.Helper()
	r, err := h.AllocArray(ty, count)
	if err != nil {
		t.Fatalf("AllocArray(%d, %d) failed: %v", ty, count, err)
	}
	return r
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic: %s", what)
		}
	}()
	fn()
}
