package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// TestConsBasics verifies pair construction and field access.
func TestConsBasics(t *testing.T) {
	h := newTestHeap(t)

	a := value.MakeFixnum(1)
	b := value.MakeFixnum(2)
	p := mustCons(t, h, a, b)

	require.True(t, p.IsPair())
	assert.Equal(t, a, h.Car(p))
	assert.Equal(t, b, h.Cdr(p))

	require.NoError(t, h.SetCar(p, value.True))
	require.NoError(t, h.SetCdr(p, value.Nil))
	assert.Equal(t, value.True, h.Car(p))
	assert.Equal(t, value.Nil, h.Cdr(p))
}

// TestConsDistinctCells verifies that every Cons yields a fresh cell.
func TestConsDistinctCells(t *testing.T) {
	h := newTestHeap(t)

	seen := map[value.Value]bool{}
	for i := range 200 {
		p := mustCons(t, h, value.MakeFixnum(int64(i)), value.Nil)
		require.False(t, seen[p], "cell %v handed out twice", p)
		seen[p] = true
	}
}

// TestListConstruction verifies List builds a proper Nil-terminated chain.
func TestListConstruction(t *testing.T) {
	h := newTestHeap(t)

	l, err := h.List(value.MakeFixnum(10), value.MakeFixnum(20), value.MakeFixnum(30))
	require.NoError(t, err)

	require.Equal(t, 3, listLen(h, l))
	assert.Equal(t, int64(10), value.FixnumVal(h.Car(l)))
	assert.Equal(t, int64(20), value.FixnumVal(h.Car(h.Cdr(l))))
	assert.Equal(t, int64(30), value.FixnumVal(h.Car(h.Cdr(h.Cdr(l)))))
	assert.Equal(t, value.Nil, h.Cdr(h.Cdr(h.Cdr(l))))

	empty, err := h.List()
	require.NoError(t, err)
	assert.Equal(t, value.Nil, empty)
}

// TestCarOfNonPairPanics verifies the accessor contract: type dispatch is
// the caller's job, so a mistyped access is a bug, not an error value.
func TestCarOfNonPairPanics(t *testing.T) {
	h := newTestHeap(t)

	require.Panics(t, func() { h.Car(value.MakeFixnum(7)) })
	require.Panics(t, func() { h.Cdr(value.Nil) })
	require.Panics(t, func() { h.SetCar(value.True, value.Nil) })
}

// TestConsReusesFreedCells verifies that collection puts dead cells back
// on the free chain and that allocation drains the chain before mapping
// new blocks.
func TestConsReusesFreedCells(t *testing.T) {
	h := newTestHeap(t)

	keep := rooted(h, value.Nil)
	for i := range 40 {
		*keep = mustCons(t, h, value.MakeFixnum(int64(i)), *keep)
	}

	// Garbage: nothing keeps these alive.
	for i := range 40 {
		mustCons(t, h, value.MakeFixnum(int64(i)), value.Nil)
	}

	blocksBefore := len(h.pairBlocks)
	mustCollect(t, h)

	freed := freePairCount(h)
	require.GreaterOrEqual(t, freed, 40, "dead cells should be chained for reuse")

	// Reallocating the same amount must come from the chain, not fresh
	// blocks.
	for i := range freed {
		mustCons(t, h, value.MakeFixnum(int64(i)), value.Nil)
	}
	assert.Equal(t, blocksBefore, len(h.pairBlocks), "reuse should not map new blocks")
	assert.Equal(t, 0, freePairCount(h))
}

// TestFreeCellsCarryDeadMarker verifies free pair cells hold the Dead
// sentinel, which the conservative scanner relies on to reject them.
func TestFreeCellsCarryDeadMarker(t *testing.T) {
	h := newTestHeap(t)

	p := mustCons(t, h, value.True, value.True)
	addr := p.Addr()
	mustCollect(t, h)

	b, i := h.pairAt(addr)
	assert.Equal(t, value.Dead, b.cells[i].car, "free cell must be poisoned")
}
