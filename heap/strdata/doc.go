// Package strdata stores string payload bytes separately from string
// headers, so the collector can slide surviving payloads together and hand
// whole slabs back to the system.
//
// # Layout
//
// Small payloads (under LargeBytes) share 8 KiB slabs, each payload
// preceded by a header recording its owner and length. Slabs are append
// only between collections; Compact walks them oldest to newest and packs
// live payloads toward the front, releasing the empty tail. Payloads at or
// above LargeBytes receive a dedicated slab which is unmapped the moment
// the owning string dies, and never moves in between.
//
// A payload whose address must stay stable across collections can be
// pinned, which copies it out of the slab pool entirely.
//
// The package knows nothing about string semantics. Owners are opaque
// virtual addresses; the heap updates its headers through the Compact
// callback.
package strdata
