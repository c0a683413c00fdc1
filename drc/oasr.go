// ABOUTME: Over-approximated stack-roots list threaded through object headers
// ABOUTME: Implements the deferred side of DRC: exposing a ref to wasm is one flag and one link

package drc

// ExposeToWasm records that r is escaping into compiled guest code by
// inserting it at the head of the over-approximated stack-roots list. The
// caller's owned count transfers into the list; no reference count is
// touched, which is what makes crossing into compiled code nearly free. The
// membership is reconciled against the precise stack roots at the next
// collection's sweep. Idempotent: an object already on the list stays a
// single entry. No-op for null and i31 refs.
func (h *Heap) ExposeToWasm(r Ref) {
	if !r.IsHeapObject() {
		return
	}
	h.ensureAttached()
	if h.flagSet(r, flagInOASR) {
		return
	}
	h.setFlag(r, flagInOASR)
	h.setNextInOASR(r, h.oasrHead)
	h.oasrHead = r
}

// ExposedToWasm reports whether r is currently on the stack-roots list.
func (h *Heap) ExposedToWasm(r Ref) bool {
	if !r.IsHeapObject() {
		return false
	}
	h.ensureAttached()
	return h.flagSet(r, flagInOASR)
}

// NumExposed returns the length of the stack-roots list.
func (h *Heap) NumExposed() int {
	h.ensureAttached()
	n := 0
	for r := h.oasrHead; r != NullRef; r = h.nextInOASR(r) {
		n++
	}
	return n
}
