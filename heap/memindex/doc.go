// Package memindex tracks which address ranges of the heap's virtual space
// belong to which allocation blocks.
//
// Its single consumer is the conservative stack scanner: given an arbitrary
// word that might be a reference, the index answers "is this inside any
// block, and what kind of block" in O(log n). Exact (trusted) dereferences
// never come through here; the heap resolves those with per-kind block
// directories.
//
// The structure is a classic red-black tree keyed by range start. Nodes
// live in a flat arena and refer to each other by index, with slot 0 acting
// as the shared sentinel leaf, so the tree performs no per-node allocation
// after the arena warms up.
package memindex
