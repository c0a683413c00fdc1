// ABOUTME: Core handle and identity types for the GC heap
// ABOUTME: Defines Ref with i31 tagging, object kinds, and external table ids

package drc

// Ref is an opaque handle to a GC-managed value. It is either null, a heap
// object (a byte offset into the heap's backing memory), or an unboxed 31-bit
// integer ("i31") that carries no allocation and is never refcounted or
// listed. Heap objects are always 8-aligned, so the low bit of a heap offset
// is always clear; a set low bit marks an i31.
type Ref uint32

// NullRef is the null reference. Offset 0 is reserved by the free list and
// never hands out an object, so 0 is unambiguous.
const NullRef Ref = 0

// FromI31 boxes a 31-bit integer into a Ref. The top bit of v is discarded.
func FromI31(v int32) Ref {
	return Ref(uint32(v)<<1 | 1)
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == NullRef
}

// IsI31 reports whether r is an unboxed 31-bit integer.
func (r Ref) IsI31() bool {
	return r&1 != 0
}

// I31 returns the integer payload of an i31 ref, sign-extended.
func (r Ref) I31() int32 {
	return int32(r) >> 1
}

// IsHeapObject reports whether r refers to an actual heap allocation, i.e. it
// is neither null nor an i31.
func (r Ref) IsHeapObject() bool {
	return r != NullRef && r&1 == 0
}

// heapOffset returns the byte offset of the object's header in the backing
// memory. Only valid when IsHeapObject.
func (r Ref) heapOffset() uint32 {
	return uint32(r)
}

// Kind tags what lives behind a heap object's header.
type Kind uint8

const (
	// KindStruct is a guest struct with a fixed field layout.
	KindStruct Kind = iota
	// KindArray is a guest array with a per-object element count.
	KindArray
	// KindExtern is an opaque host reference; its payload is an id into the
	// embedder's host-data side table.
	KindExtern
	// KindException is a guest exception object, laid out like a struct.
	KindException
)

// String returns the kind name for diagnostics and heap dumps.
func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindExtern:
		return "extern"
	case KindException:
		return "exception"
	}
	return "invalid"
}

// TypeID identifies a guest type in the embedder's type-layout registry.
// Type identities are never redefined within one heap's lifetime.
type TypeID uint32

// NoTypeID is stored in the header of extern objects, which have no guest
// type.
const NoTypeID TypeID = 0xffffffff

// HostDataID identifies an entry in the embedder's host-data side table,
// associated with an extern object.
type HostDataID uint32
