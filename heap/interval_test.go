package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// buildPropTree attaches a small text-property tree to s: a root interval
// with one left child, each carrying a plist.
func buildPropTree(t *testing.T, h *Heap, s value.Value) (root, left Interval) {
	t.Helper()

	root, err := h.MakeInterval()
	require.NoError(t, err)
	h.SetIntervalSpan(root, 10, 5)

	left, err = h.MakeInterval()
	require.NoError(t, err)
	h.SetIntervalSpan(left, 5, 0)
	h.SetIntervalChildren(root, left, 0)
	h.SetIntervalParent(left, root)

	plist, err := h.List(mustString(t, h, "face"), mustString(t, h, "bold"))
	require.NoError(t, err)
	h.SetIntervalPlist(root, plist)
	h.SetIntervalPlist(left, mustCons(t, h, value.True, value.Nil))

	require.NoError(t, h.SetStringIntervals(s, root))
	return root, left
}

// TestIntervalFields verifies span, tree and plist accessors round-trip.
func TestIntervalFields(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "properties")
	root, left := buildPropTree(t, h, s)

	length, pos := h.IntervalSpan(root)
	assert.Equal(t, int64(10), length)
	assert.Equal(t, int64(5), pos)

	l, r := h.IntervalChildren(root)
	assert.Equal(t, left, l)
	assert.Equal(t, Interval(0), r)

	parent, _, isOwner := h.IntervalParent(left)
	require.False(t, isOwner)
	assert.Equal(t, root, parent)

	_, owner, isOwner := h.IntervalParent(root)
	require.True(t, isOwner, "tree root points back at the string")
	assert.Equal(t, s, owner)
	assert.Equal(t, root, h.StringIntervals(s))
}

// TestIntervalsSurviveWithString verifies a string's property tree and
// the plists hanging off it live exactly as long as the string.
func TestIntervalsSurviveWithString(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "styled text")
	slot := rooted(h, s)
	root, left := buildPropTree(t, h, s)

	rep := mustCollect(t, h)
	require.Equal(t, int64(2), kindRow(t, rep, "interval").Live)

	// Plists are intact after the cycle.
	assert.Equal(t, "face", h.StringText(h.Car(h.IntervalPlist(root))))
	assert.Equal(t, value.True, h.Car(h.IntervalPlist(left)))

	// Dropping the string drops the tree.
	*slot = value.Nil
	rep = mustCollect(t, h)
	assert.Equal(t, int64(0), kindRow(t, rep, "interval").Live)
	assert.Equal(t, int64(0), kindRow(t, rep, "string").Live)
}

// TestIntervalCellsAreNotConservativeTargets verifies ambiguous words
// cannot pin interval cells: their storage only answers to exact
// references from string headers.
func TestIntervalCellsAreNotConservativeTargets(t *testing.T) {
	h := newTestHeap(t)
	stack := newWordStack(h)

	s := mustString(t, h, "ephemeral")
	root, _ := buildPropTree(t, h, s)
	stack.words = append(stack.words, uint64(root))

	// Nothing roots the string, so the whole tree dies despite the word.
	rep := mustCollect(t, h)
	assert.Equal(t, int64(0), kindRow(t, rep, "interval").Live)
}

// TestIntervalReuseAfterSweep verifies swept interval cells return
// through the free chain.
func TestIntervalReuseAfterSweep(t *testing.T) {
	h := newTestHeap(t)

	iv, err := h.MakeInterval()
	require.NoError(t, err)
	addr := uint64(iv)
	mustCollect(t, h)

	again, err := h.MakeInterval()
	require.NoError(t, err)
	assert.Equal(t, addr, uint64(again))
}
