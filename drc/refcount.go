// ABOUTME: Reference-count engine: inc, dec, cascading dealloc, write barrier
// ABOUTME: Cascade deletion uses an explicit worklist so stack depth stays bounded

package drc

import "fmt"

// IncRef increments the reference count of r. A no-op for null and i31 refs.
// The count must already be nonzero: a zero count means the object is being
// reclaimed, and reviving it is a bug.
func (h *Heap) IncRef(r Ref) {
	if !r.IsHeapObject() {
		return
	}
	h.ensureAttached()
	rc := h.RefCount(r)
	if rc == 0 {
		panic(fmt.Sprintf("drc: IncRef on object %#x with zero refcount", uint32(r)))
	}
	h.setRefCount(r, rc+1)
}

// CloneRef returns a new owned copy of r, incrementing its reference count.
func (h *Heap) CloneRef(r Ref) Ref {
	h.IncRef(r)
	return r
}

// decRef decrements r's reference count and reports whether it reached
// exactly zero. False for null and i31 refs.
func (h *Heap) decRef(r Ref) bool {
	if !r.IsHeapObject() {
		return false
	}
	rc := h.RefCount(r)
	if rc == 0 {
		panic(fmt.Sprintf("drc: refcount underflow on object %#x", uint32(r)))
	}
	h.setRefCount(r, rc-1)
	return rc == 1
}

// DecRefAndMaybeDealloc drops one reference to r, deallocating it if the
// count reaches zero and cascading through everything it referenced. The
// cascade runs on an explicit LIFO worklist, never native recursion: guest
// programs can build reference chains of arbitrary depth, and the call stack
// must not scale with them. Extern objects release their host-data table
// entry; table may be nil on heaps that never allocate externs.
func (h *Heap) DecRefAndMaybeDealloc(table HostDataTable, r Ref) {
	h.ensureAttached()
	worklist := []Ref{r}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !h.decRef(cur) {
			continue
		}
		// A zero count on an OASR member would leave a dangling list node.
		// The list owns one count per member, so this cannot happen unless
		// a barrier was missed.
		if h.flagSet(cur, flagInOASR) {
			panic(fmt.Sprintf("drc: refcount of object %#x reached zero while on the stack-roots list",
				uint32(cur)))
		}
		if h.Kind(cur) == KindExtern {
			if table == nil {
				panic(fmt.Sprintf("drc: extern object %#x reclaimed without a host-data table",
					uint32(cur)))
			}
			table.Dealloc(h.ExternID(cur))
		} else {
			h.traceEdges(cur, &worklist)
		}
		h.dealloc(cur)
	}
}

// WriteRef stores src into the host-side slot dst with the write barrier
// applied: src gains a count before the previous occupant loses one, so
// writing a slot's current value back into it can never transiently drop the
// count to zero and free a live object.
func (h *Heap) WriteRef(table HostDataTable, dst *Ref, src Ref) {
	h.IncRef(src)
	old := *dst
	*dst = src
	h.DecRefAndMaybeDealloc(table, old)
}

// StructFieldRef reads the reference stored at a data-relative field offset
// of a struct or exception object.
func (h *Heap) StructFieldRef(obj Ref, offset uint32) Ref {
	h.ensureAttached()
	return Ref(h.u32(obj.heapOffset() + headerSize + offset))
}

// WriteStructFieldRef stores src into a reference field of a struct or
// exception object, applying the write barrier.
func (h *Heap) WriteStructFieldRef(table HostDataTable, obj Ref, offset uint32, src Ref) {
	h.ensureAttached()
	h.IncRef(src)
	addr := obj.heapOffset() + headerSize + offset
	old := Ref(h.u32(addr))
	h.putU32(addr, uint32(src))
	h.DecRefAndMaybeDealloc(table, old)
}

// ArrayElemRef reads element i of a reference-typed array.
func (h *Heap) ArrayElemRef(obj Ref, i uint32) Ref {
	h.ensureAttached()
	if n := h.ArrayLen(obj); i >= n {
		panic(fmt.Sprintf("drc: array index %d out of range [0, %d)", i, n))
	}
	return Ref(h.u32(obj.heapOffset() + arrayElemsOff + i*refSize))
}

// WriteArrayElemRef stores src into element i of a reference-typed array,
// applying the write barrier.
func (h *Heap) WriteArrayElemRef(table HostDataTable, obj Ref, i uint32, src Ref) {
	h.ensureAttached()
	if n := h.ArrayLen(obj); i >= n {
		panic(fmt.Sprintf("drc: array index %d out of range [0, %d)", i, n))
	}
	h.IncRef(src)
	addr := obj.heapOffset() + arrayElemsOff + i*refSize
	old := Ref(h.u32(addr))
	h.putU32(addr, uint32(src))
	h.DecRefAndMaybeDealloc(table, old)
}
