// ABOUTME: Full structural heap verification, enabled by the drcdebug build tag
// ABOUTME: Scans every object for mark hygiene, flag/list agreement, and live refcounts

//go:build drcdebug

package drc

import "fmt"

// verifyAfterSweep scans the whole heap checking the post-sweep invariants:
// no mark bit anywhere, the membership flag agrees with actual list
// membership, and every allocated object has a nonzero refcount.
func (h *Heap) verifyAfterSweep() {
	listed := make(map[Ref]bool)
	for r := h.oasrHead; r != NullRef; r = h.nextInOASR(r) {
		if listed[r] {
			panic(fmt.Sprintf("drc: object %#x appears twice on the stack-roots list", uint32(r)))
		}
		listed[r] = true
	}
	h.ForEachObject(func(r Ref) {
		if h.flagSet(r, flagMarked) {
			panic(fmt.Sprintf("drc: object %#x still marked after sweep", uint32(r)))
		}
		if h.flagSet(r, flagInOASR) != listed[r] {
			panic(fmt.Sprintf("drc: object %#x membership flag disagrees with the list", uint32(r)))
		}
		if h.RefCount(r) == 0 {
			panic(fmt.Sprintf("drc: allocated object %#x has zero refcount", uint32(r)))
		}
	})
}
