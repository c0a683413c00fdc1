// ABOUTME: Two-phase trace/sweep collection reconciling the stack-roots list
// ABOUTME: Exposed as a resumable step function: Trace, then Sweep, then done

package drc

import "fmt"

// Progress is the result of one collection increment.
type Progress int

const (
	// ProgressContinue means the cycle has more phases to run.
	ProgressContinue Progress = iota
	// ProgressComplete means the cycle has finished.
	ProgressComplete
)

type collectPhase int

const (
	phaseTrace collectPhase = iota
	phaseSweep
	phaseDone
)

// Collection is one in-flight collection cycle. The heap must stay quiescent
// for the whole cycle: the step API exists so a caller can interleave
// bounded chunks of collector work with its own bookkeeping, not so the
// guest can keep mutating the heap. A sweep that has begun deallocating
// cannot be abandoned partway.
type Collection struct {
	heap  *Heap
	table HostDataTable
	roots RootSource
	phase collectPhase
}

// StartCollection begins a collection cycle over the roots the embedder
// currently knows. Fatal if called inside a no-GC scope.
func (h *Heap) StartCollection(table HostDataTable, roots RootSource) *Collection {
	h.ensureAttached()
	if h.noGCScopes > 0 {
		panic("drc: collection started inside a no-GC scope")
	}
	return &Collection{heap: h, table: table, roots: roots, phase: phaseTrace}
}

// CollectIncrement runs the current phase of the cycle and advances to the
// next. Returns ProgressComplete once the sweep has run.
func (c *Collection) CollectIncrement() Progress {
	switch c.phase {
	case phaseTrace:
		c.trace()
		c.phase = phaseSweep
		return ProgressContinue
	case phaseSweep:
		c.sweep()
		c.phase = phaseDone
		return ProgressComplete
	default:
		return ProgressComplete
	}
}

// Collect runs one full collection cycle to completion.
func (h *Heap) Collect(table HostDataTable, roots RootSource) {
	c := h.StartCollection(table, roots)
	for c.CollectIncrement() == ProgressContinue {
	}
}

// trace marks every object the precise root set shows live inside a guest
// execution frame. Roots held only in globals, tables, and host locals are
// already accounted for by ordinary reference counts and are skipped here.
func (c *Collection) trace() {
	h := c.heap
	c.roots.ForEachRoot(func(root Root) {
		if !root.InGuestFrame {
			return
		}
		r := root.Ref
		if !r.IsHeapObject() {
			return
		}
		// Upstream barrier/expose discipline guarantees every on-stack root
		// is already on the list; a miss means compiled code smuggled a ref
		// past ExposeToWasm.
		if !h.flagSet(r, flagInOASR) {
			panic(fmt.Sprintf("drc: on-stack root %#x is not on the stack-roots list", uint32(r)))
		}
		h.setFlag(r, flagMarked)
	})
}

// sweep walks the stack-roots list once. Marked members survive with their
// mark cleared; unmarked members are unlinked, lose their membership flag,
// and give up the count the list owned, cascading through whatever they
// referenced. Afterwards the list is exactly the set of objects the trace
// found, with no mark bits left set.
func (c *Collection) sweep() {
	h := c.heap
	prev := NullRef
	for cur := h.oasrHead; cur != NullRef; {
		next := h.nextInOASR(cur)
		if h.flagSet(cur, flagMarked) {
			h.clearFlag(cur, flagMarked)
			prev = cur
		} else {
			if prev == NullRef {
				h.oasrHead = next
			} else {
				h.setNextInOASR(prev, next)
			}
			h.clearFlag(cur, flagInOASR)
			h.DecRefAndMaybeDealloc(c.table, cur)
		}
		cur = next
	}
	h.verifyAfterSweep()
}
