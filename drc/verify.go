// ABOUTME: No-op heap verification for regular builds
// ABOUTME: The drcdebug build tag swaps in the full structural scan

//go:build !drcdebug

package drc

// verifyAfterSweep is a no-op without the drcdebug build tag; the structural
// scan is too expensive for the allocation-adjacent hot path.
func (h *Heap) verifyAfterSweep() {}
