package strdata

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, r Ref, seed byte) {
	t.Helper()
	buf := r.Bytes()
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

func verify(t *testing.T, r Ref, n int, seed byte) {
	t.Helper()
	buf := r.Bytes()
	require.Equal(t, n, len(buf))
	for i := range buf {
		require.Equal(t, seed+byte(i), buf[i], "byte %d", i)
	}
}

func TestAllocSmall(t *testing.T) {
	m := NewManager()
	r, err := m.Alloc(0x100000010, 20)
	require.NoError(t, err)
	assert.False(t, r.IsZero())
	assert.Equal(t, 20, r.Nbytes())
	assert.Equal(t, uint64(0x100000010), r.Owner())

	fill(t, r, 7)
	verify(t, r, 20, 7)

	slabs, mapped, inUse := m.Stats()
	assert.Equal(t, 1, slabs)
	assert.Equal(t, int64(SlabBytes), mapped)
	assert.Equal(t, int64(20), inUse)
}

func TestAllocZeroLength(t *testing.T) {
	m := NewManager()
	r, err := m.Alloc(0x100000010, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Nbytes())
	assert.Empty(t, r.Bytes())
}

func TestAllocRejectsBadArgs(t *testing.T) {
	m := NewManager()
	_, err := m.Alloc(0x100000010, -1)
	assert.Error(t, err)
	_, err = m.Alloc(0, 8)
	assert.Error(t, err)
}

func TestCompactSlidesLivePayloads(t *testing.T) {
	m := NewManager()
	a, err := m.Alloc(0xa0, 40)
	require.NoError(t, err)
	b, err := m.Alloc(0xb0, 100)
	require.NoError(t, err)
	c, err := m.Alloc(0xc0, 24)
	require.NoError(t, err)
	fill(t, a, 1)
	fill(t, b, 2)
	fill(t, c, 3)

	m.Release(b)

	refs := map[uint64]Ref{0xa0: a, 0xc0: c}
	movedOwners := []uint64{}
	m.Compact(func(owner uint64, r Ref) {
		movedOwners = append(movedOwners, owner)
		refs[owner] = r
	})

	assert.Equal(t, []uint64{0xc0}, movedOwners, "only the payload after the gap moves")
	verify(t, refs[0xa0], 40, 1)
	verify(t, refs[0xc0], 24, 3)

	_, _, inUse := m.Stats()
	assert.Equal(t, int64(64), inUse)
}

func TestCompactReleasesEmptySlabs(t *testing.T) {
	m := NewManager()
	const n = 200 // wide enough to spill into several slabs
	refs := map[uint64]Ref{}
	for i := 0; i < 64; i++ {
		owner := uint64(0x1000 + i*8)
		r, err := m.Alloc(owner, n)
		require.NoError(t, err)
		fill(t, r, byte(i))
		refs[owner] = r
	}
	slabsBefore, _, _ := m.Stats()
	require.Greater(t, slabsBefore, 1)

	// Kill everything but the last two payloads.
	for i := 0; i < 62; i++ {
		owner := uint64(0x1000 + i*8)
		m.Release(refs[owner])
		delete(refs, owner)
	}
	m.Compact(func(owner uint64, r Ref) { refs[owner] = r })

	slabsAfter, mapped, inUse := m.Stats()
	assert.Equal(t, 1, slabsAfter)
	assert.Equal(t, int64(SlabBytes), mapped)
	assert.Equal(t, int64(2*n), inUse)
	verify(t, refs[0x1000+62*8], n, 62)
	verify(t, refs[0x1000+63*8], n, 63)
}

func TestCompactPacksAfterwardsAllocations(t *testing.T) {
	m := NewManager()
	r1, err := m.Alloc(0x10, 64)
	require.NoError(t, err)
	m.Release(r1)
	m.Compact(func(uint64, Ref) {})

	// The slab cursor rewound; new payloads land at the front again.
	r2, err := m.Alloc(0x18, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), r2.off)
}

func TestLargePayloadDedicatedSlab(t *testing.T) {
	m := NewManager()
	big, err := m.Alloc(0x20, LargeBytes)
	require.NoError(t, err)
	fill(t, big, 9)

	small, err := m.Alloc(0x28, 16)
	require.NoError(t, err)
	fill(t, small, 1)

	moved := 0
	m.Compact(func(uint64, Ref) { moved++ })
	assert.Zero(t, moved, "dedicated payloads never move")
	verify(t, big, LargeBytes, 9)

	m.Release(big)
	m.Compact(func(uint64, Ref) {})
	slabs, _, inUse := m.Stats()
	assert.Equal(t, 1, slabs, "dedicated slab unmapped once dead")
	assert.Equal(t, int64(16), inUse)
}

func TestPinSurvivesCompaction(t *testing.T) {
	m := NewManager()
	first, err := m.Alloc(0x30, 32)
	require.NoError(t, err)
	r, err := m.Alloc(0x38, 48)
	require.NoError(t, err)
	fill(t, r, 5)

	pinned := m.Pin(r)
	verify(t, pinned, 48, 5)
	before := fmt.Sprintf("%p", &pinned.Bytes()[0])

	m.Release(first)
	m.Compact(func(owner uint64, r Ref) {
		t.Fatalf("nothing left in slabs should move, got owner %#x", owner)
	})
	assert.Equal(t, before, fmt.Sprintf("%p", &pinned.Bytes()[0]))
	verify(t, pinned, 48, 5)

	// Releasing a pinned payload is a no-op for slab accounting.
	m.Release(pinned)
}

func TestPinLargeIsIdentity(t *testing.T) {
	m := NewManager()
	big, err := m.Alloc(0x40, LargeBytes+8)
	require.NoError(t, err)
	pinned := m.Pin(big)
	assert.Equal(t, big, pinned)
}
