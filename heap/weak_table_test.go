package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// weakPair puts one cons->cons entry in a fresh table of the given mode
// and returns table, key and value.
func weakPair(t *testing.T, h *Heap, mode Weakness) (tbl, k, v value.Value) {
	t.Helper()
	tbl, err := h.MakeHashTable(mode, 0)
	require.NoError(t, err)
	rooted(h, tbl)
	k = mustCons(t, h, value.MakeFixnum(1), value.Nil)
	v = mustCons(t, h, value.MakeFixnum(2), value.Nil)
	require.NoError(t, h.HashPut(tbl, k, v))
	return tbl, k, v
}

// TestWeakKeyEntryDropsWithKey verifies a key-weak entry vanishes once
// nothing else references the key.
func TestWeakKeyEntryDropsWithKey(t *testing.T) {
	h := newTestHeap(t)
	tbl, k, _ := weakPair(t, h, WeakKey)

	slot := rooted(h, k)
	mustCollect(t, h)
	require.Equal(t, 1, h.HashCount(tbl), "rooted key retains the entry")
	got, ok := h.HashGet(tbl, k)
	require.True(t, ok)
	assert.Equal(t, int64(2), value.FixnumVal(h.Car(got)), "value resurrected through the entry")

	*slot = value.Nil
	rep := mustCollect(t, h)
	assert.Equal(t, 0, h.HashCount(tbl))
	assert.Equal(t, int64(0), kindRow(t, rep, "pair").Live, "entry no longer anchors either half")
}

// TestWeakTableDoesNotRetainByItself verifies a weak reference alone never
// keeps its target alive, even when the table is strongly rooted.
func TestWeakTableDoesNotRetainByItself(t *testing.T) {
	h := newTestHeap(t)
	tbl, _, _ := weakPair(t, h, WeakKey)

	rep := mustCollect(t, h)
	assert.Equal(t, 0, h.HashCount(tbl))
	assert.Equal(t, int64(0), kindRow(t, rep, "pair").Live)
}

// TestWeakValueEntryDropsWithValue verifies value-weak retention.
func TestWeakValueEntryDropsWithValue(t *testing.T) {
	h := newTestHeap(t)
	tbl, k, v := weakPair(t, h, WeakValue)

	vslot := rooted(h, v)
	kslot := rooted(h, k)
	mustCollect(t, h)
	require.Equal(t, 1, h.HashCount(tbl))

	// Key dying is irrelevant in value-weak mode; the entry stays while
	// the value lives, and the entry keeps the key reachable.
	*kslot = value.Nil
	mustCollect(t, h)
	require.Equal(t, 1, h.HashCount(tbl))
	got, ok := h.HashGet(tbl, k)
	require.True(t, ok)
	assert.Equal(t, v, got)

	*vslot = value.Nil
	mustCollect(t, h)
	assert.Equal(t, 0, h.HashCount(tbl))
}

// TestWeakKeyAndValue verifies both-anchors mode: one live half is not
// enough.
func TestWeakKeyAndValue(t *testing.T) {
	h := newTestHeap(t)
	tbl, k, _ := weakPair(t, h, WeakKeyAndValue)

	rooted(h, k)
	mustCollect(t, h)
	assert.Equal(t, 0, h.HashCount(tbl), "live key alone cannot hold the entry")
	_, ok := h.HashGet(tbl, k)
	assert.False(t, ok)
}

// TestWeakKeyOrValue verifies either-anchor mode: one live half carries
// the whole entry.
func TestWeakKeyOrValue(t *testing.T) {
	h := newTestHeap(t)
	tbl, k, v := weakPair(t, h, WeakKeyOrValue)

	slot := rooted(h, k)
	mustCollect(t, h)
	require.Equal(t, 1, h.HashCount(tbl))
	got, ok := h.HashGet(tbl, k)
	require.True(t, ok)
	assert.Equal(t, v, got)
	assert.Equal(t, int64(2), value.FixnumVal(h.Car(got)))

	*slot = value.Nil
	mustCollect(t, h)
	assert.Equal(t, 0, h.HashCount(tbl), "entry dies with both halves")
}

// TestWeakChainsSettleByFixpoint verifies liveness flowing through one
// weak table reaches entries of another, whatever the discovery order.
func TestWeakChainsSettleByFixpoint(t *testing.T) {
	h := newTestHeap(t)

	t1, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	t2, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	rooted(h, t1)
	rooted(h, t2)

	k := mustCons(t, h, value.MakeFixnum(10), value.Nil)
	mid := mustCons(t, h, value.MakeFixnum(20), value.Nil)
	leafVal := mustString(t, h, "end of chain")

	// t2's entry hangs off t1's value: k -> mid, then mid -> leaf.
	require.NoError(t, h.HashPut(t2, mid, leafVal))
	require.NoError(t, h.HashPut(t1, k, mid))
	rooted(h, k)

	mustCollect(t, h)

	require.Equal(t, 1, h.HashCount(t1))
	require.Equal(t, 1, h.HashCount(t2), "mid only became live through t1's entry")
	got, ok := h.HashGet(t2, mid)
	require.True(t, ok)
	assert.Equal(t, "end of chain", h.StringText(got))
}

// TestWeakChainCollapses verifies the same chain evaporates entirely once
// the head anchor dies.
func TestWeakChainCollapses(t *testing.T) {
	h := newTestHeap(t)

	t1, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	t2, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	rooted(h, t1)
	rooted(h, t2)

	k := mustCons(t, h, value.MakeFixnum(10), value.Nil)
	mid := mustCons(t, h, value.MakeFixnum(20), value.Nil)
	require.NoError(t, h.HashPut(t2, mid, mustString(t, h, "leaf")))
	require.NoError(t, h.HashPut(t1, k, mid))

	rep := mustCollect(t, h)

	assert.Equal(t, 0, h.HashCount(t1))
	assert.Equal(t, 0, h.HashCount(t2))
	assert.Equal(t, int64(0), kindRow(t, rep, "pair").Live)
	assert.Equal(t, int64(0), kindRow(t, rep, "string").Live)
}

// TestWeakEntriesPartiallyCleared verifies removal is per entry, with the
// count and the probe sequences of survivors intact.
func TestWeakEntriesPartiallyCleared(t *testing.T) {
	h := newTestHeap(t)

	tbl, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	rooted(h, tbl)

	var kept []value.Value
	for i := range 12 {
		k := mustCons(t, h, value.MakeFixnum(int64(i)), value.Nil)
		require.NoError(t, h.HashPut(tbl, k, value.MakeFixnum(int64(i))))
		if i%2 == 0 {
			rooted(h, k)
			kept = append(kept, k)
		}
	}

	mustCollect(t, h)

	require.Equal(t, 6, h.HashCount(tbl))
	for _, k := range kept {
		got, ok := h.HashGet(tbl, k)
		require.True(t, ok, "surviving key lost its binding")
		assert.Equal(t, value.FixnumVal(h.Car(k)), value.FixnumVal(got))
	}

	// Cleared slots are tombstones, so insertion reuses them.
	extra := mustCons(t, h, value.True, value.Nil)
	rooted(h, extra)
	require.NoError(t, h.HashPut(tbl, extra, value.True))
	assert.Equal(t, 7, h.HashCount(tbl))
}

// TestWeakTableSurvivesCollectionAsJunk verifies an unreachable weak table
// is simply swept, entries and all.
func TestWeakTableSurvivesCollectionAsJunk(t *testing.T) {
	h := newTestHeap(t)

	tbl, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	k := mustCons(t, h, value.Nil, value.Nil)
	require.NoError(t, h.HashPut(tbl, k, value.True))

	rep := mustCollect(t, h)
	assert.Equal(t, int64(0), kindRow(t, rep, "pair").Live)
	assert.Empty(t, h.weakTables, "registry must drain between cycles")
	_ = tbl
}

// TestImmediateKeysNeverExpire verifies fixnum keys are permanent anchors:
// weakness only observes heap objects.
func TestImmediateKeysNeverExpire(t *testing.T) {
	h := newTestHeap(t)

	tbl, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	rooted(h, tbl)
	require.NoError(t, h.HashPut(tbl, value.MakeFixnum(5), mustString(t, h, "stays")))

	mustCollect(t, h)
	require.Equal(t, 1, h.HashCount(tbl))
	got, ok := h.HashGet(tbl, value.MakeFixnum(5))
	require.True(t, ok)
	assert.Equal(t, "stays", h.StringText(got))
}
