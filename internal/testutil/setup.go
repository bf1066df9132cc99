// Package testutil builds heaps and object graphs for tests outside the
// heap package. In-package tests use their own unexported helpers; these
// work through the public API only.
package testutil

import (
	"testing"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/value"
)

// NewTestHeap builds a heap with default tuning.
//
// Example:
//
//	h := testutil.NewTestHeap(t)
//	head := testutil.BuildList(t, h, 1, 2, 3)
func NewTestHeap(tb testing.TB) *heap.Heap {
	tb.Helper()
	return NewTestHeapWith(tb, heap.Config{})
}

// NewTestHeapWith builds a heap from cfg, failing the test on error.
func NewTestHeapWith(tb testing.TB, cfg heap.Config) *heap.Heap {
	tb.Helper()
	h, err := heap.New(cfg)
	if err != nil {
		tb.Fatalf("Failed to create heap: %v", err)
	}
	return h
}

// Retain registers a fresh exact root slot holding v and returns the slot.
// Clearing the slot (or retargeting it) changes what the root keeps alive.
func Retain(h *heap.Heap, v value.Value) *value.Value {
	slot := new(value.Value)
	*slot = v
	h.RegisterRoot(slot)
	return slot
}

// Collect runs a full collection, failing the test on error.
func Collect(tb testing.TB, h *heap.Heap) heap.Report {
	tb.Helper()
	rep, err := h.Collect()
	if err != nil {
		tb.Fatalf("Collection failed: %v", err)
	}
	return rep
}
