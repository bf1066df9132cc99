package testutil

import (
	"fmt"
	"testing"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/value"
)

// BuildList allocates a nil-terminated list of fixnums and returns its head.
// The list is not rooted; pair it with Retain to keep it.
func BuildList(tb testing.TB, h *heap.Heap, elems ...int64) value.Value {
	tb.Helper()
	head := value.Nil
	for i := len(elems) - 1; i >= 0; i-- {
		var err error
		head, err = h.Cons(value.MakeFixnum(elems[i]), head)
		if err != nil {
			tb.Fatalf("Failed to cons element %d: %v", i, err)
		}
	}
	return head
}

// ListFixnums reads a list of fixnums back into a slice.
func ListFixnums(tb testing.TB, h *heap.Heap, v value.Value) []int64 {
	tb.Helper()
	var out []int64
	for v.IsPair() {
		car := h.Car(v)
		if !car.IsFixnum() {
			tb.Fatalf("List element %d is %s, not a fixnum", len(out), car)
		}
		out = append(out, value.FixnumVal(car))
		v = h.Cdr(v)
	}
	if v != value.Nil {
		tb.Fatalf("Improper list tail %s", v)
	}
	return out
}

// BuildTree allocates a complete binary tree of pairs with fixnum leaves
// and returns its root. A depth of 0 is a single leaf.
func BuildTree(tb testing.TB, h *heap.Heap, depth int) value.Value {
	tb.Helper()
	if depth == 0 {
		return value.MakeFixnum(0)
	}
	left := BuildTree(tb, h, depth-1)
	right := BuildTree(tb, h, depth-1)
	v, err := h.Cons(left, right)
	if err != nil {
		tb.Fatalf("Failed to build tree node at depth %d: %v", depth, err)
	}
	return v
}

// CountTreePairs walks a BuildTree result and returns the pair count.
func CountTreePairs(h *heap.Heap, v value.Value) int {
	if !v.IsPair() {
		return 0
	}
	return 1 + CountTreePairs(h, h.Car(v)) + CountTreePairs(h, h.Cdr(v))
}

// FillGarbage allocates n unreachable pairs so a following collection has
// something to reclaim.
func FillGarbage(tb testing.TB, h *heap.Heap, n int) {
	tb.Helper()
	for i := range n {
		if _, err := h.Cons(value.MakeFixnum(int64(i)), value.Nil); err != nil {
			tb.Fatalf("Failed to cons garbage %d: %v", i, err)
		}
	}
}

// InternSymbols makes n symbols named by prefix and chains them the way an
// obarray bucket would, returning the chain head.
func InternSymbols(tb testing.TB, h *heap.Heap, prefix string, n int) value.Value {
	tb.Helper()
	next := value.Nil
	for i := n - 1; i >= 0; i-- {
		name, err := h.MakeString(fmt.Sprintf("%s-%d", prefix, i))
		if err != nil {
			tb.Fatalf("Failed to make symbol name %d: %v", i, err)
		}
		sym, err := h.MakeSymbol(name)
		if err != nil {
			tb.Fatalf("Failed to make symbol %d: %v", i, err)
		}
		h.SetSymbolNext(sym, next)
		next = sym
	}
	return next
}
