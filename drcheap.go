// ABOUTME: Main drcheap package providing version information and package documentation
// ABOUTME: This is the root package for the deferred reference-counting GC heap

// Package drcheap provides a deferred reference-counting garbage collector
// for heap-allocated values inside a sandboxed WebAssembly-style VM runtime.
// It includes the collector core (drc), the backing free-list allocator
// (freelist), and debug heap snapshot serialization (heapdump).
package drcheap

// Version is the semantic version of the drcheap library
const Version = "0.1.0-dev"
