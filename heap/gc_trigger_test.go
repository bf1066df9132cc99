package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// TestMaybeCollectBelowAllowance verifies no cycle runs while allocation
// stays under the allowance.
func TestMaybeCollectBelowAllowance(t *testing.T) {
	h := newTestHeap(t)

	mustCons(t, h, value.Nil, value.Nil)
	ran, err := h.MaybeCollect(1)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, int64(0), h.Stats().Collections)
}

// TestMaybeCollectAboveAllowance verifies a cycle runs once cumulative
// allocation exceeds the allowance.
func TestMaybeCollectAboveAllowance(t *testing.T) {
	h, err := New(Config{GCThreshold: MinGCThreshold})
	require.NoError(t, err)

	for int64(pairSize)*2 < MinGCThreshold-h.bytesSinceGC {
		mustCons(t, h, value.Nil, value.Nil)
	}
	ran, err := h.MaybeCollect(1)
	require.NoError(t, err)
	require.False(t, ran, "still at the edge of the allowance")

	for range MinGCThreshold / pairSize {
		mustCons(t, h, value.Nil, value.Nil)
	}
	ran, err = h.MaybeCollect(1)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(1), h.Stats().Collections)
	assert.Equal(t, int64(0), h.Stats().BytesSinceGC)
}

// TestMaybeCollectFactor verifies larger factors shrink the effective
// allowance and factors below one disable the check.
func TestMaybeCollectFactor(t *testing.T) {
	h, err := New(Config{GCThreshold: MinGCThreshold})
	require.NoError(t, err)

	// Just over a quarter of the allowance.
	for range MinGCThreshold/(4*pairSize) + 2 {
		mustCons(t, h, value.Nil, value.Nil)
	}

	ran, err := h.MaybeCollect(0)
	require.NoError(t, err)
	assert.False(t, ran, "factor 0 never collects")

	ran, err = h.MaybeCollect(1)
	require.NoError(t, err)
	assert.False(t, ran, "quarter of the allowance is well under it")

	ran, err = h.MaybeCollect(4)
	require.NoError(t, err)
	assert.True(t, ran, "factor 4 divides the allowance below what was consed")
}

// TestThresholdClampedToMinimum verifies tiny thresholds are raised so the
// runtime cannot be configured into collecting on every allocation.
func TestThresholdClampedToMinimum(t *testing.T) {
	h := newTestHeap(t)

	h.SetThreshold(1)
	assert.Equal(t, int64(MinGCThreshold), h.bytesBetweenGC)

	h.SetThreshold(MinGCThreshold * 3)
	assert.Equal(t, int64(MinGCThreshold*3), h.bytesBetweenGC)
}

// TestPercentageScalesWithLiveHeap verifies the allowance follows the live
// heap once the percentage term dominates the fixed threshold.
func TestPercentageScalesWithLiveHeap(t *testing.T) {
	h := newTestHeap(t)

	root := rooted(h, value.Nil)
	const n = 30_000
	for range n {
		*root = mustCons(t, h, value.Nil, *root)
	}
	mustCollect(t, h)
	require.Equal(t, int64(n*pairSize), h.lastLiveBytes)

	h.SetThreshold(MinGCThreshold)
	h.SetPercentage(1.0)
	assert.Equal(t, int64(n*pairSize), h.bytesBetweenGC,
		"full live heap dominates the floor")

	h.SetPercentage(0.0)
	assert.Equal(t, int64(MinGCThreshold), h.bytesBetweenGC,
		"zero percentage falls back to the threshold")

	h.SetPercentage(-2.5)
	assert.Equal(t, int64(MinGCThreshold), h.bytesBetweenGC,
		"negative percentages clamp to zero")
}

// TestInhibitCollection verifies inhibition makes Collect fail without
// running, nests, and releases idempotently.
func TestInhibitCollection(t *testing.T) {
	h := newTestHeap(t)

	release1 := h.InhibitCollection()
	release2 := h.InhibitCollection()

	_, err := h.Collect()
	require.ErrorIs(t, err, ErrCollectInProgress)

	release1()
	release1() // second call must not unbalance the count
	_, err = h.Collect()
	require.ErrorIs(t, err, ErrCollectInProgress)

	release2()
	_, err = h.Collect()
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Stats().Collections)
}

// TestMaybeCollectWhileInhibited verifies the deferred trigger surfaces
// the inhibition error instead of silently skipping forever.
func TestMaybeCollectWhileInhibited(t *testing.T) {
	h, err := New(Config{GCThreshold: MinGCThreshold})
	require.NoError(t, err)

	for range 2 * MinGCThreshold / pairSize {
		mustCons(t, h, value.Nil, value.Nil)
	}
	release := h.InhibitCollection()
	defer release()

	_, err = h.MaybeCollect(1)
	assert.ErrorIs(t, err, ErrCollectInProgress)
}

// TestPostGCHookRuns verifies the hook observes each cycle's report and
// may allocate, with reentrant collection suppressed while it runs.
func TestPostGCHookRuns(t *testing.T) {
	var reports []Report
	var h *Heap
	var err error
	h, err = New(Config{OnPostGC: func(rep Report) {
		reports = append(reports, rep)
		// Allocating inside the hook must not start another cycle.
		_, herr := h.Cons(value.Nil, value.Nil)
		require.NoError(t, herr)
		_, cerr := h.Collect()
		require.ErrorIs(t, cerr, ErrCollectInProgress)
	}})
	require.NoError(t, err)

	mustCollect(t, h)
	mustCollect(t, h)

	require.Len(t, reports, 2)
	assert.Equal(t, int64(1), reports[0].Collections)
	assert.Equal(t, int64(2), reports[1].Collections)
}

// TestNextGCBytesReported verifies the report exposes the current
// allowance.
func TestNextGCBytesReported(t *testing.T) {
	h := newTestHeap(t)

	rep := mustCollect(t, h)
	assert.Equal(t, int64(DefaultGCThreshold), rep.NextGCBytes)

	h.SetThreshold(4 * DefaultGCThreshold)
	assert.Equal(t, int64(4*DefaultGCThreshold), h.Stats().NextGCBytes)
}
