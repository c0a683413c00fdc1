// ABOUTME: First-fit free-list allocator over a contiguous byte range
// ABOUTME: Backs the GC heap with layout-keyed alloc, dealloc, and capacity growth

// Package freelist implements the byte-range allocator backing the GC heap.
// It hands out offsets into a contiguous region of the caller's memory; it
// never touches the bytes themselves. Offset 0 is permanently reserved so
// callers can use 0 as a null sentinel.
package freelist

import "fmt"

// minAlign is the granularity of every allocation. Sizes are rounded up to a
// multiple of minAlign, and every returned offset is minAlign-aligned.
const minAlign = 8

// Reserved is the size of the prefix at the bottom of the range that is
// never allocated, keeping offset 0 free for use as a null sentinel.
const Reserved = minAlign

// Layout describes the size and alignment of a requested byte range.
type Layout struct {
	Size  uint32
	Align uint32
}

// block is a free run of bytes. Blocks are kept sorted by offset and never
// adjacent (adjacent blocks are coalesced on dealloc).
type block struct {
	off  uint32
	size uint32
}

// FreeList is a first-fit allocator over the range [minAlign, capacity).
type FreeList struct {
	capacity uint32
	used     uint32
	blocks   []block
}

// New creates a free list covering capacity bytes. The first minAlign bytes
// are reserved and never allocated.
func New(capacity uint32) *FreeList {
	f := &FreeList{capacity: capacity}
	if capacity > minAlign {
		f.blocks = []block{{off: minAlign, size: capacity - minAlign}}
	}
	return f
}

// roundSize returns the number of bytes actually consumed by a request.
func roundSize(l Layout) uint32 {
	if l.Align > minAlign {
		panic(fmt.Sprintf("freelist: unsupported alignment %d (max %d)", l.Align, minAlign))
	}
	return (l.Size + minAlign - 1) &^ (minAlign - 1)
}

// RoundedSize reports how many bytes Alloc would consume for the given
// layout. Callers use it to size capacity growth after an allocation failure.
func RoundedSize(l Layout) uint32 {
	return roundSize(l)
}

// Alloc finds the first free block that can hold the layout and carves the
// range from its front. Returns the offset and true, or 0 and false if no
// block is large enough.
func (f *FreeList) Alloc(l Layout) (uint32, bool) {
	size := roundSize(l)
	if size == 0 {
		size = minAlign
	}
	for i := range f.blocks {
		b := &f.blocks[i]
		if b.size < size {
			continue
		}
		off := b.off
		b.off += size
		b.size -= size
		if b.size == 0 {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
		}
		f.used += size
		return off, true
	}
	return 0, false
}

// Dealloc returns a previously allocated range to the free list, coalescing
// with adjacent free blocks. The layout must match the one passed to Alloc.
func (f *FreeList) Dealloc(off uint32, l Layout) {
	size := roundSize(l)
	if size == 0 {
		size = minAlign
	}
	if off < minAlign || off+size > f.capacity {
		panic(fmt.Sprintf("freelist: dealloc of range [%d, %d) outside heap", off, off+size))
	}
	if size > f.used {
		panic("freelist: dealloc of more bytes than are allocated")
	}
	f.used -= size

	// Find the insertion point keeping blocks sorted by offset.
	i := 0
	for i < len(f.blocks) && f.blocks[i].off < off {
		i++
	}
	if i < len(f.blocks) && off+size > f.blocks[i].off {
		panic(fmt.Sprintf("freelist: double free at offset %d", off))
	}
	if i > 0 && f.blocks[i-1].off+f.blocks[i-1].size > off {
		panic(fmt.Sprintf("freelist: double free at offset %d", off))
	}

	// Coalesce with the previous block, the next block, both, or neither.
	prevAdj := i > 0 && f.blocks[i-1].off+f.blocks[i-1].size == off
	nextAdj := i < len(f.blocks) && off+size == f.blocks[i].off
	switch {
	case prevAdj && nextAdj:
		f.blocks[i-1].size += size + f.blocks[i].size
		f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
	case prevAdj:
		f.blocks[i-1].size += size
	case nextAdj:
		f.blocks[i].off = off
		f.blocks[i].size += size
	default:
		f.blocks = append(f.blocks, block{})
		copy(f.blocks[i+1:], f.blocks[i:])
		f.blocks[i] = block{off: off, size: size}
	}
}

// AddCapacity extends the addressable range by extra bytes, making the new
// tail immediately available for allocation.
func (f *FreeList) AddCapacity(extra uint32) {
	if extra == 0 {
		return
	}
	old := f.capacity
	f.capacity += extra
	start := old
	if start < minAlign {
		start = minAlign
	}
	if f.capacity <= start {
		return
	}
	// The new range is adjacent to the last block iff that block ends at the
	// old capacity.
	n := len(f.blocks)
	if n > 0 && f.blocks[n-1].off+f.blocks[n-1].size == start {
		f.blocks[n-1].size += f.capacity - start
		return
	}
	f.blocks = append(f.blocks, block{off: start, size: f.capacity - start})
}

// Capacity returns the total addressable bytes, including the reserved prefix.
func (f *FreeList) Capacity() uint32 {
	return f.capacity
}

// UsedBytes returns the number of bytes currently allocated.
func (f *FreeList) UsedBytes() uint32 {
	return f.used
}

// ForEachFree iterates over the free blocks in ascending offset order.
func (f *FreeList) ForEachFree(fn func(off, size uint32)) {
	for _, b := range f.blocks {
		fn(b.off, b.size)
	}
}
