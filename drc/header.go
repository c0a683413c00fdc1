// ABOUTME: Object header layout and base-relative accessors
// ABOUTME: Encodes kind, flags, type id, refcount, OASR link, and object size

package drc

import (
	"encoding/binary"
	"fmt"
)

// Every heap object begins with a fixed 24-byte header:
//
//	offset 0:  kind (low byte) and flag bits (u32)
//	offset 4:  type identity (u32), NoTypeID for extern objects
//	offset 8:  reference count (u64)
//	offset 16: next-in-OASR link (u32 Ref), meaningful only while flagInOASR
//	offset 20: total object size in bytes (u32)
//
// Arrays store their element count at offset 24, elements from 28. Extern
// objects store their host-data id at offset 24. Struct and exception fields
// start at offset 24.
const (
	headerKindOff     = 0
	headerTypeOff     = 4
	headerRefCountOff = 8
	headerNextOff     = 16
	headerSizeOff     = 20
	headerSize        = 24

	arrayLenOff   = headerSize
	arrayElemsOff = headerSize + 4
	externIDOff   = headerSize
)

// Flag bits packed above the kind byte in the header's first word.
const (
	// flagInOASR marks the object as a member of the over-approximated
	// stack-roots list.
	flagInOASR uint32 = 1 << 8
	// flagMarked marks the object as found in the current trace phase's
	// precise root set. Transient; cleared by the sweep that follows.
	flagMarked uint32 = 1 << 9
)

func (h *Heap) u32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[off : off+4])
}

func (h *Heap) putU32(off, v uint32) {
	binary.LittleEndian.PutUint32(h.mem[off:off+4], v)
}

func (h *Heap) u64(off uint32) uint64 {
	return binary.LittleEndian.Uint64(h.mem[off : off+8])
}

func (h *Heap) putU64(off uint32, v uint64) {
	binary.LittleEndian.PutUint64(h.mem[off:off+8], v)
}

func (h *Heap) kindFlags(r Ref) uint32 {
	return h.u32(r.heapOffset() + headerKindOff)
}

// Kind returns the kind tag of a heap object.
func (h *Heap) Kind(r Ref) Kind {
	return Kind(h.kindFlags(r) & 0xff)
}

func (h *Heap) flagSet(r Ref, flag uint32) bool {
	return h.kindFlags(r)&flag != 0
}

func (h *Heap) setFlag(r Ref, flag uint32) {
	h.putU32(r.heapOffset()+headerKindOff, h.kindFlags(r)|flag)
}

func (h *Heap) clearFlag(r Ref, flag uint32) {
	h.putU32(r.heapOffset()+headerKindOff, h.kindFlags(r)&^flag)
}

// TypeOf returns the guest type identity of a heap object. For extern
// objects it returns NoTypeID.
func (h *Heap) TypeOf(r Ref) TypeID {
	return TypeID(h.u32(r.heapOffset() + headerTypeOff))
}

// RefCount returns the current reference count of a heap object.
func (h *Heap) RefCount(r Ref) uint64 {
	return h.u64(r.heapOffset() + headerRefCountOff)
}

func (h *Heap) setRefCount(r Ref, n uint64) {
	h.putU64(r.heapOffset()+headerRefCountOff, n)
}

// ObjectSize returns the total byte size of a heap object, header included.
func (h *Heap) ObjectSize(r Ref) uint32 {
	return h.u32(r.heapOffset() + headerSizeOff)
}

func (h *Heap) nextInOASR(r Ref) Ref {
	return Ref(h.u32(r.heapOffset() + headerNextOff))
}

func (h *Heap) setNextInOASR(r, next Ref) {
	h.putU32(r.heapOffset()+headerNextOff, uint32(next))
}

// ExternID returns the host-data table id stored in an extern object.
func (h *Heap) ExternID(r Ref) HostDataID {
	if k := h.Kind(r); k != KindExtern {
		panic(fmt.Sprintf("drc: ExternID on %s object %#x", k, uint32(r)))
	}
	return HostDataID(h.u32(r.heapOffset() + externIDOff))
}

// ArrayLen returns the element count of an array object.
func (h *Heap) ArrayLen(r Ref) uint32 {
	if k := h.Kind(r); k != KindArray {
		panic(fmt.Sprintf("drc: ArrayLen on %s object %#x", k, uint32(r)))
	}
	return h.u32(r.heapOffset() + arrayLenOff)
}
