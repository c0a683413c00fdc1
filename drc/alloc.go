// ABOUTME: Allocation facade over the free list, plus deallocation
// ABOUTME: Computes object sizes, writes headers, and negotiates capacity growth

package drc

import (
	"fmt"

	"github.com/prateek/drcheap/freelist"
)

// refSize is the encoded size of a Ref in guest-visible memory.
const refSize = 4

// objectAlign is the alignment of every heap object. The header's 64-bit
// refcount field requires 8, and 8-alignment keeps the low bit of every heap
// offset clear for i31 tagging.
const objectAlign = 8

// maxObjectSize caps a single object at what a 32-bit size field and heap
// offset can address.
const maxObjectSize = 1<<32 - objectAlign

func roundedSize(size uint32) uint32 {
	return (size + objectAlign - 1) &^ (objectAlign - 1)
}

// OutOfMemoryError is the one recoverable failure in this package: the free
// list could not satisfy an allocation. The caller is expected to grow the
// backing memory by at least BytesNeeded (TakeMemory, grow, ReplaceMemory)
// and retry, or surface out-of-memory to the guest.
type OutOfMemoryError struct {
	// BytesNeeded is the additional capacity that would let this allocation
	// succeed.
	BytesNeeded uint64
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("drc: out of memory, need %d more bytes", e.BytesNeeded)
}

// allocRaw acquires a byte range for a total object size, writes the header,
// and returns the new ref with a reference count of 1, owned by the caller.
// Trace info must already be registered for non-extern kinds.
func (h *Heap) allocRaw(kind Kind, ty TypeID, total uint32) (Ref, error) {
	h.ensureAttached()
	if kind != KindExtern {
		if _, ok := h.traceInfo[ty]; !ok {
			panic(fmt.Sprintf("drc: allocating %s of type %d before its trace info", kind, ty))
		}
	}

	layout := freelist.Layout{Size: total, Align: objectAlign}
	off, ok := h.free.Alloc(layout)
	if !ok {
		return NullRef, &OutOfMemoryError{BytesNeeded: uint64(freelist.RoundedSize(layout))}
	}

	// Fresh objects start fully zeroed: null guest fields, clear flags, and
	// a null OASR link.
	clear(h.mem[off : off+total])
	r := Ref(off)
	h.putU32(off+headerKindOff, uint32(kind))
	h.putU32(off+headerTypeOff, uint32(ty))
	h.setRefCount(r, 1)
	h.putU32(off+headerSizeOff, total)
	return r, nil
}

// dealloc returns an object's byte range to the free list. The size comes
// straight from the header, so no type lookup is needed.
func (h *Heap) dealloc(r Ref) {
	size := h.ObjectSize(r)
	h.free.Dealloc(r.heapOffset(), freelist.Layout{Size: size, Align: objectAlign})
}

// AllocStruct allocates a struct object of the given type with all fields
// zeroed. The returned ref has a reference count of 1, owned by the caller.
func (h *Heap) AllocStruct(ty TypeID) (Ref, error) {
	return h.allocStructLike(KindStruct, ty)
}

// AllocException allocates an exception object, laid out like a struct.
func (h *Heap) AllocException(ty TypeID) (Ref, error) {
	return h.allocStructLike(KindException, ty)
}

func (h *Heap) allocStructLike(kind Kind, ty TypeID) (Ref, error) {
	h.ensureAttached()
	ti := h.ensureTraceInfo(ty)
	if ti.isArray {
		panic(fmt.Sprintf("drc: type %d is an array type, not a %s type", ty, kind))
	}
	return h.allocRaw(kind, ty, headerSize+ti.dataSize)
}

// AllocArray allocates an array object of the given type with count zeroed
// elements.
func (h *Heap) AllocArray(ty TypeID, count uint32) (Ref, error) {
	h.ensureAttached()
	ti := h.ensureTraceInfo(ty)
	if !ti.isArray {
		panic(fmt.Sprintf("drc: type %d is not an array type", ty))
	}
	// The count is guest-controllable, so the total is computed in 64 bits:
	// a wrapped 32-bit size would allocate a tiny object whose header claims
	// billions of elements, and every later element access or trace would
	// walk off the object.
	total64 := uint64(headerSize) + uint64(refSize) + uint64(count)*uint64(ti.elemSize)
	rounded := (total64 + objectAlign - 1) &^ uint64(objectAlign-1)
	if rounded > maxObjectSize {
		return NullRef, &OutOfMemoryError{BytesNeeded: rounded}
	}
	r, err := h.allocRaw(KindArray, ty, uint32(total64))
	if err != nil {
		return NullRef, err
	}
	h.putU32(r.heapOffset()+arrayLenOff, count)
	return r, nil
}

// AllocExtern allocates an opaque host-reference object whose payload is an
// id into the embedder's host-data side table.
func (h *Heap) AllocExtern(id HostDataID) (Ref, error) {
	r, err := h.allocRaw(KindExtern, NoTypeID, headerSize+refSize)
	if err != nil {
		return NullRef, err
	}
	h.putU32(r.heapOffset()+externIDOff, uint32(id))
	return r, nil
}
