// ABOUTME: External interfaces the collector depends on
// ABOUTME: Type-layout registry, host-data side table, and root iteration

package drc

// TypeRegistry maps a guest type identity to its field layout. The collector
// queries it once per distinct TypeID and caches the result for the heap's
// lifetime. Extraction of layouts from the guest's type section is the
// embedder's concern.
type TypeRegistry interface {
	// LayoutOf returns the layout for ty, or ok=false if the type is unknown.
	// An unknown type at allocation time is a programming error and fatal.
	LayoutOf(ty TypeID) (TypeLayout, bool)
}

// TypeLayout describes one guest type. Exactly one of Struct and Array is
// non-nil; exception types use Struct.
type TypeLayout struct {
	Struct *StructLayout
	Array  *ArrayLayout
}

// StructLayout describes a struct or exception type's guest-visible fields.
// Field offsets are relative to the start of the object's data area, which
// begins immediately after the object header.
type StructLayout struct {
	Size   uint32 // total data size in bytes
	Align  uint32 // required data alignment, at most 8
	Fields []FieldLayout
}

// FieldLayout is one field of a struct or exception type.
type FieldLayout struct {
	Offset uint32 // byte offset within the data area
	IsRef  bool   // whether the field holds a Ref
}

// ArrayLayout describes an array type.
type ArrayLayout struct {
	ElemSize  uint32 // byte size of one element
	ElemIsRef bool   // whether elements hold Refs
}

// HostDataTable is the side table holding host-language data associated with
// extern objects. The collector calls Dealloc when it reclaims the extern
// object owning an entry.
type HostDataTable interface {
	Dealloc(id HostDataID)
}

// Root is one reference currently live outside the heap, as reported by the
// embedder's stack maps, globals, and tables.
type Root struct {
	Ref Ref
	// InGuestFrame reports whether the reference is held inside a guest
	// execution frame. Only such roots participate in the trace phase;
	// references held in globals, tables, and host locals are already
	// accounted for by ordinary reference counts.
	InGuestFrame bool
}

// RootSource yields every currently-live root known to the embedder.
type RootSource interface {
	ForEachRoot(fn func(Root))
}

// RootSlice adapts a fixed set of roots to RootSource.
type RootSlice []Root

// ForEachRoot calls fn for each root in the slice.
func (rs RootSlice) ForEachRoot(fn func(Root)) {
	for _, r := range rs {
		fn(r)
	}
}
