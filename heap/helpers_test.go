package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// newTestHeap builds a heap with default tuning, failing the test on error.
func newTestHeap(t testing.TB) *Heap {
	t.Helper()
	h, err := New(Config{})
	require.NoError(t, err)
	return h
}

// rooted registers a fresh exact root slot holding v and returns the slot
// so the test can retarget or clear it later.
func rooted(h *Heap, v value.Value) *value.Value {
	slot := new(value.Value)
	*slot = v
	h.RegisterRoot(slot)
	return slot
}

func mustCons(t testing.TB, h *Heap, car, cdr value.Value) value.Value {
	t.Helper()
	v, err := h.Cons(car, cdr)
	require.NoError(t, err)
	return v
}

func mustString(t testing.TB, h *Heap, s string) value.Value {
	t.Helper()
	v, err := h.MakeString(s)
	require.NoError(t, err)
	return v
}

func mustSymbol(t testing.TB, h *Heap, name string) value.Value {
	t.Helper()
	sym, err := h.MakeSymbol(mustString(t, h, name))
	require.NoError(t, err)
	return sym
}

func mustCollect(t testing.TB, h *Heap) Report {
	t.Helper()
	rep, err := h.Collect()
	require.NoError(t, err)
	return rep
}

// listLen walks a proper list and returns its element count.
func listLen(h *Heap, v value.Value) int {
	n := 0
	for v.IsPair() {
		n++
		v = h.Cdr(v)
	}
	return n
}

// freePairCount walks the pair free chain.
func freePairCount(h *Heap) int {
	n := 0
	for addr := h.pairFree; addr != 0; n++ {
		b, i := h.pairAt(addr)
		addr = uint64(b.cells[i].cdr)
	}
	return n
}

// kindRow finds one row of a report by kind name.
func kindRow(t testing.TB, rep Report, kind string) KindStats {
	t.Helper()
	for _, k := range rep.Kinds {
		if k.Kind == kind {
			return k
		}
	}
	t.Fatalf("report has no %q row", kind)
	return KindStats{}
}
