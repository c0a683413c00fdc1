// ABOUTME: JSON snapshot serialization of a live GC heap
// ABOUTME: Captures objects, refcounts, edges, and stack-roots membership for debugging

// Package heapdump serializes a live drc heap into a JSON snapshot for
// debugging and postmortem analysis, and parses such snapshots back.
package heapdump

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prateek/drcheap/drc"
)

// Object is one heap object in a snapshot.
type Object struct {
	ID       uint32   `json:"id"`   // heap offset of the object
	Kind     string   `json:"kind"` // struct, array, extern, or exception
	Type     uint32   `json:"type"` // guest type identity
	Size     uint32   `json:"size"`
	RefCount uint64   `json:"refcount"`
	Exposed  bool     `json:"exposed"` // on the stack-roots list
	Ptrs     []uint32 `json:"ptrs"`    // IDs of objects this object points to
}

// Snapshot is the dump of one heap at one moment.
type Snapshot struct {
	Objects []Object `json:"objects"`
	// Roots lists the IDs of objects on the stack-roots list, i.e. the
	// over-approximation of what compiled code may be holding.
	Roots []uint32 `json:"roots"`
}

// Capture walks every allocated object of h into a Snapshot. The heap must
// be quiescent and attached for the duration.
func Capture(h *drc.Heap) *Snapshot {
	snap := &Snapshot{
		Objects: []Object{},
		Roots:   []uint32{},
	}
	h.ForEachObject(func(r drc.Ref) {
		obj := Object{
			ID:       uint32(r),
			Kind:     h.Kind(r).String(),
			Type:     uint32(h.TypeOf(r)),
			Size:     h.ObjectSize(r),
			RefCount: h.RefCount(r),
			Exposed:  h.ExposedToWasm(r),
			Ptrs:     []uint32{},
		}
		h.ForEachRef(r, func(e drc.Ref) {
			obj.Ptrs = append(obj.Ptrs, uint32(e))
		})
		snap.Objects = append(snap.Objects, obj)
		if obj.Exposed {
			snap.Roots = append(snap.Roots, obj.ID)
		}
	})
	return snap
}

// Write captures h and writes the snapshot as JSON.
func Write(w io.Writer, h *drc.Heap) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Capture(h)); err != nil {
		return fmt.Errorf("failed to encode heap snapshot: %w", err)
	}
	return nil
}

// Parse reads a JSON snapshot previously produced by Write.
func Parse(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode heap snapshot: %w", err)
	}
	// Validate edges against the object set; a dangling pointer in a dump
	// means the heap was captured mid-mutation.
	ids := make(map[uint32]bool, len(snap.Objects))
	for _, obj := range snap.Objects {
		ids[obj.ID] = true
	}
	for _, obj := range snap.Objects {
		for _, ptr := range obj.Ptrs {
			if !ids[ptr] {
				return nil, fmt.Errorf("object %d points to unknown object %d", obj.ID, ptr)
			}
		}
	}
	for _, root := range snap.Roots {
		if !ids[root] {
			return nil, fmt.Errorf("root %d is not an object in the snapshot", root)
		}
	}
	return &snap, nil
}
