// Package heap implements object storage and garbage collection for a
// dynamically typed language runtime.
//
// # Overview
//
// This package provides a mark-and-sweep collected heap over a virtual
// address space of its own. Objects are addressed by tagged 64-bit words
// (see the value package), never by Go pointers, so object identity is
// stable, stale references are detectable, and the collector can scan
// ambiguous roots without help from the Go runtime.
//
// # Key Types
//
// The main types provided by this package are:
//
//   - Heap: one runtime instance's object storage and collector state
//   - Config: construction parameters (budget, trigger tuning, hooks)
//   - Report: per-cycle and on-demand occupancy statistics
//   - VecKind: sub-kinds of vector-like records
//   - Weakness: entry retention policies for weak hash tables
//   - Interval: text-property tree nodes hanging off strings
//
// # Storage Layout
//
// Small fixed-size objects (pairs, floats, symbols, string headers,
// interval nodes) live in aligned 1KB pool blocks with per-block free
// chains. Vector-like records are carved out of 4KB blocks with
// segregated per-size free region lists; very large records get a
// dedicated span. String payloads live in a separate slab pool that is
// compacted at every collection (see the strdata package).
//
//	[pure storage]  [pool blocks | vector blocks | large records ...]
//	 never swept     each registered in the range index
//
// # Allocating and Collecting
//
//	h, err := heap.New(heap.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var root value.Value
//	h.RegisterRoot(&root)
//
//	lst, err := h.List(value.MakeFixnum(1), value.MakeFixnum(2))
//	if err != nil {
//	    return err
//	}
//	root = lst
//
//	// Collect explicitly, or let MaybeCollect consult the trigger.
//	rep, err := h.Collect()
//
// Collection triggers automatically nowhere: the embedder calls
// MaybeCollect at safe points, typically once per evaluator loop
// iteration. The trigger fires after max(threshold, percentage x live
// bytes) of new allocation.
//
// # Roots
//
// Exact roots are registered slots the collector reads every cycle.
// Ambiguous roots come from WordRoots sources: an interpreter hands the
// collector every word of its value stack, and the collector decides
// conservatively which words pin objects, refusing words that point at
// free cells or outside any block.
//
// # Weak Tables and Finalizers
//
// Hash tables can be weak in keys, values, either or both; unretained
// entries are dropped between marking and sweeping. Finalizer records
// run a function once their object becomes unreachable, one collection
// cycle later, outside the stop-the-world section.
//
// # Pure Storage
//
// PureCopy moves bootstrap data into a region the collector never
// visits, sharing identical string payloads. After SealPure the copying
// table is dropped and later PureCopy calls return their argument
// unchanged. If pure space overflows, an emergency region keeps
// bootstrap alive but collection is permanently disabled.
//
// # Thread Safety
//
// Heap instances are not thread-safe. The embedder stops the world
// before calling Collect; additional VM threads participate by
// registering WordRoots sources covering their stacks.
//
// # Related Packages
//
//   - github.com/joshuapare/heapkit/heap/value: tagged word representation
//   - github.com/joshuapare/heapkit/heap/memindex: address range index
//   - github.com/joshuapare/heapkit/heap/strdata: string payload slabs
package heap
