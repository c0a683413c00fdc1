// ABOUTME: Per-type trace info cache and the generic edge-walking primitive
// ABOUTME: Built lazily from the type-layout registry, cached for the heap lifetime

package drc

import "fmt"

// traceInfo describes one guest type's outgoing reference edges: either
// "array whose elements are (or are not) references" or the byte offsets of
// a struct/exception type's reference-typed fields.
type traceInfo struct {
	isArray    bool
	elemIsRef  bool
	elemSize   uint32
	dataSize   uint32   // struct/exception data bytes after the header
	refOffsets []uint32 // data-relative offsets, struct/exception only
}

// ensureTraceInfo queries the registry for ty once and caches the result.
// Called on every allocation of a non-extern object; a type the registry
// does not know is a fatal programming error.
func (h *Heap) ensureTraceInfo(ty TypeID) *traceInfo {
	if ti, ok := h.traceInfo[ty]; ok {
		return ti
	}
	layout, ok := h.registry.LayoutOf(ty)
	if !ok {
		panic(fmt.Sprintf("drc: no layout registered for type %d", ty))
	}
	ti := &traceInfo{}
	switch {
	case layout.Array != nil:
		ti.isArray = true
		ti.elemIsRef = layout.Array.ElemIsRef
		ti.elemSize = layout.Array.ElemSize
	case layout.Struct != nil:
		if layout.Struct.Align > objectAlign {
			panic(fmt.Sprintf("drc: type %d requires alignment %d, max is %d",
				ty, layout.Struct.Align, objectAlign))
		}
		ti.dataSize = layout.Struct.Size
		for _, f := range layout.Struct.Fields {
			if f.IsRef {
				ti.refOffsets = append(ti.refOffsets, f.Offset)
			}
		}
	default:
		panic(fmt.Sprintf("drc: layout for type %d is neither struct nor array", ty))
	}
	h.traceInfo[ty] = ti
	return ti
}

// traceEdges pushes every non-null, non-i31 reference held by r onto the
// worklist. This is the sole generic graph-walking primitive; cascading
// deallocation uses it, and any future tracing collector variant could too.
// r must not be an extern object (externs hold no guest-visible references).
func (h *Heap) traceEdges(r Ref, worklist *[]Ref) {
	ti, ok := h.traceInfo[h.TypeOf(r)]
	if !ok {
		panic(fmt.Sprintf("drc: tracing object %#x of type %d with no trace info",
			uint32(r), h.TypeOf(r)))
	}
	base := r.heapOffset()
	if ti.isArray {
		if !ti.elemIsRef {
			return
		}
		n := h.ArrayLen(r)
		for i := uint32(0); i < n; i++ {
			if e := Ref(h.u32(base + arrayElemsOff + i*refSize)); e.IsHeapObject() {
				*worklist = append(*worklist, e)
			}
		}
		return
	}
	for _, off := range ti.refOffsets {
		if e := Ref(h.u32(base + headerSize + off)); e.IsHeapObject() {
			*worklist = append(*worklist, e)
		}
	}
}

// ForEachRef calls fn for every non-null, non-i31 reference held by r.
// Extern objects hold no guest-visible references, so fn is never called for
// them. Used by heap dump serialization.
func (h *Heap) ForEachRef(r Ref, fn func(Ref)) {
	h.ensureAttached()
	if h.Kind(r) == KindExtern {
		return
	}
	var edges []Ref
	h.traceEdges(r, &edges)
	for _, e := range edges {
		fn(e)
	}
}
