// ABOUTME: The Heap type owning backing memory, free list, and collector state
// ABOUTME: Handles memory attach/detach/grow, no-GC scopes, and object walking

// Package drc implements a deferred reference-counting garbage collector for
// heap-allocated guest values (structs, arrays, exceptions, and opaque host
// references) inside a sandboxed VM runtime.
//
// Reference-count updates for references passing through guest execution
// frames are not paid per use. Instead, every reference crossing into
// compiled code is inserted once into an over-approximated stack-roots list
// threaded through object headers, and a two-phase trace/sweep collection
// reconciles that list against the precise roots discovered from stack maps.
//
// A heap is single-threaded: it belongs to exactly one execution context and
// none of its methods may be called concurrently.
package drc

import "github.com/prateek/drcheap/freelist"

// Heap is one GC heap instance backed by a contiguous, growable byte buffer.
type Heap struct {
	registry TypeRegistry
	free     *freelist.FreeList

	// mem is the backing memory. All object access is base-relative; the
	// buffer may be detached and reattached (possibly reallocated elsewhere)
	// between operations.
	mem      []byte
	attached bool

	// oasrHead is the head of the over-approximated stack-roots list,
	// threaded through object headers via the next-in-OASR link.
	oasrHead Ref

	// traceInfo caches each type's outgoing-reference layout, built lazily
	// from the registry. Type identities are never redefined within one
	// heap, so entries live for the heap's lifetime.
	traceInfo map[TypeID]*traceInfo

	// noGCScopes counts nested no-GC scopes. Collection while nonzero is a
	// fatal programming error.
	noGCScopes int
}

// NewHeap creates a heap managing mem. The registry resolves guest type
// layouts and must answer for every type the guest allocates.
func NewHeap(registry TypeRegistry, mem []byte) *Heap {
	return &Heap{
		registry:  registry,
		free:      freelist.New(uint32(len(mem))),
		mem:       mem,
		attached:  true,
		oasrHead:  NullRef,
		traceInfo: make(map[TypeID]*traceInfo),
	}
}

func (h *Heap) ensureAttached() {
	if !h.attached {
		panic("drc: heap memory is detached")
	}
}

// TakeMemory detaches the backing memory and transfers ownership to the
// caller, typically so the embedder can grow it. Every other heap operation
// panics until ReplaceMemory reattaches a buffer.
func (h *Heap) TakeMemory() []byte {
	h.ensureAttached()
	mem := h.mem
	h.mem = nil
	h.attached = false
	return mem
}

// ReplaceMemory reattaches backing memory and extends the free list's
// addressable capacity by deltaBytes. The buffer must hold the same object
// bytes as the one TakeMemory returned, grown by exactly deltaBytes.
func (h *Heap) ReplaceMemory(mem []byte, deltaBytes uint32) {
	if h.attached {
		panic("drc: ReplaceMemory on an attached heap")
	}
	// Validate before growing, so a mismatch leaves the free list untouched.
	if uint32(len(mem)) != h.free.Capacity()+deltaBytes {
		panic("drc: replacement memory does not match heap capacity")
	}
	h.free.AddCapacity(deltaBytes)
	h.mem = mem
	h.attached = true
}

// EnterNoGCScope opens a scope during which collection is forbidden, because
// the embedder holds a raw view derived from a Ref (e.g. a borrowed slice
// into an array) that a sweep-triggered deallocation could invalidate.
// Scopes nest.
func (h *Heap) EnterNoGCScope() {
	h.noGCScopes++
}

// ExitNoGCScope closes the innermost no-GC scope.
func (h *Heap) ExitNoGCScope() {
	if h.noGCScopes == 0 {
		panic("drc: ExitNoGCScope without a matching EnterNoGCScope")
	}
	h.noGCScopes--
}

// InNoGCScope reports whether any no-GC scope is open.
func (h *Heap) InNoGCScope() bool {
	return h.noGCScopes > 0
}

// UsedBytes returns the bytes currently allocated to live objects.
func (h *Heap) UsedBytes() uint32 {
	return h.free.UsedBytes()
}

// Capacity returns the total addressable bytes of the backing memory.
func (h *Heap) Capacity() uint32 {
	return h.free.Capacity()
}

// ForEachObject calls fn for every allocated object, in ascending address
// order. Allocated runs are the complement of the free list's blocks, and
// object boundaries within a run follow from the size field each header
// stores. fn must not allocate or deallocate.
func (h *Heap) ForEachObject(fn func(Ref)) {
	h.ensureAttached()
	pos := uint32(freelist.Reserved)
	h.free.ForEachFree(func(off, size uint32) {
		h.walkRun(pos, off, fn)
		pos = off + size
	})
	h.walkRun(pos, h.free.Capacity(), fn)
}

func (h *Heap) walkRun(start, end uint32, fn func(Ref)) {
	for pos := start; pos < end; {
		r := Ref(pos)
		fn(r)
		pos += roundedSize(h.ObjectSize(r))
	}
}

// NumObjects returns the number of currently allocated objects.
func (h *Heap) NumObjects() int {
	n := 0
	h.ForEachObject(func(Ref) { n++ })
	return n
}
