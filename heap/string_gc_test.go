package heap

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/strdata"
	"github.com/joshuapare/heapkit/heap/value"
)

// TestStringContents verifies the three constructors and their length
// accounting.
func TestStringContents(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "héllo")
	assert.Equal(t, int64(5), h.StringChars(s))
	assert.Equal(t, int64(6), h.StringBytesLen(s))
	assert.True(t, h.StringIsMultibyte(s))
	assert.Equal(t, "héllo", h.StringText(s))

	raw, err := h.MakeStringBytes([]byte{0x00, 0xFF, 0x80})
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.StringChars(raw))
	assert.Equal(t, int64(3), h.StringBytesLen(raw))
	assert.False(t, h.StringIsMultibyte(raw))

	lat, err := h.MakeStringLatin1([]byte{'c', 0xE9}) // "cé"
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.StringChars(lat))
	assert.Equal(t, int64(3), h.StringBytesLen(lat))
	assert.Equal(t, "cé", h.StringText(lat))

	empty := mustString(t, h, "")
	assert.Equal(t, int64(0), h.StringChars(empty))
	assert.Equal(t, "", h.StringText(empty))
}

// TestCompactionPreservesContents verifies payload compaction after a
// sweep relocates survivors byte for byte.
func TestCompactionPreservesContents(t *testing.T) {
	h := newTestHeap(t)

	// Interleave keepers with garbage so survivors sit behind holes.
	type kept struct {
		v    value.Value
		text string
	}
	var keepers []kept
	for i := range 200 {
		text := fmt.Sprintf("string-%04d", i)
		s := mustString(t, h, text)
		if i%3 == 0 {
			rooted(h, s)
			keepers = append(keepers, kept{s, text})
		}
	}

	_, _, inUseBefore := h.strs.Stats()
	mustCollect(t, h)
	_, _, inUseAfter := h.strs.Stats()

	require.Less(t, inUseAfter, inUseBefore, "dead payloads must be reclaimed")
	for _, k := range keepers {
		assert.Equal(t, k.text, h.StringText(k.v))
	}
}

// TestEmptyStringSurvives verifies zero-length strings hold a real payload
// reference and are not mistaken for free header cells.
func TestEmptyStringSurvives(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "")
	rooted(h, s)
	mustCollect(t, h)
	mustCollect(t, h)

	assert.Equal(t, "", h.StringText(s))
	assert.Equal(t, int64(0), h.StringBytesLen(s))
}

// TestPinnedStringStaysPut verifies a pinned payload keeps its storage
// across collections, so raw views stay valid.
func TestPinnedStringStaysPut(t *testing.T) {
	h := newTestHeap(t)

	// Garbage in front so compaction would slide an unpinned survivor.
	for i := range 50 {
		mustString(t, h, strings.Repeat("x", 40+i))
	}
	s := mustString(t, h, "do not move")
	rooted(h, s)
	h.PinString(s)

	before := h.StringBytes(s)
	mustCollect(t, h)
	after := h.StringBytes(s)

	require.Equal(t, "do not move", string(after))
	assert.Same(t, &before[0], &after[0], "pinned payload relocated")
}

// TestLargeStringDedicatedSlab verifies payloads at the dedicated-slab
// threshold survive collection and release their mapping when dead.
func TestLargeStringDedicatedSlab(t *testing.T) {
	h := newTestHeap(t)

	text := strings.Repeat("abcdefgh", strdata.LargeBytes/8) // exactly LargeBytes
	s, err := h.MakeString(text)
	require.NoError(t, err)
	slot := rooted(h, s)

	_, mappedBefore, _ := h.strs.Stats()
	mustCollect(t, h)
	assert.Equal(t, text, h.StringText(s))

	*slot = value.Nil
	mustCollect(t, h)
	_, mappedAfter, _ := h.strs.Stats()
	assert.Less(t, mappedAfter, mappedBefore, "dead dedicated slab must unmap")
}

// TestSetStringContents verifies in-place replacement, reallocation on
// size change and the multibyte validity check.
func TestSetStringContents(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "abcd")
	require.NoError(t, h.SetStringContents(s, []byte("wxyz")))
	assert.Equal(t, "wxyz", h.StringText(s))
	assert.Equal(t, int64(4), h.StringChars(s))

	// Different length reallocates and recounts.
	require.NoError(t, h.SetStringContents(s, []byte("héllo there")))
	assert.Equal(t, "héllo there", h.StringText(s))
	assert.Equal(t, int64(11), h.StringChars(s))
	assert.Equal(t, int64(12), h.StringBytesLen(s))

	// Character strings must stay valid UTF-8.
	err := h.SetStringContents(s, []byte{0xFF, 0xFE})
	assert.ErrorIs(t, err, ErrWrongType)
	assert.Equal(t, "héllo there", h.StringText(s), "failed replace must not clobber")

	// Byte strings take anything.
	raw, err := h.MakeStringBytes([]byte("old"))
	require.NoError(t, err)
	require.NoError(t, h.SetStringContents(raw, []byte{0xFF, 0xFE}))
	assert.Equal(t, int64(2), h.StringChars(raw))
}

// TestSetStringContentsSurvivesCollection verifies replacement payloads
// are owned correctly, so the sweep's cross-check passes and contents
// persist.
func TestSetStringContentsSurvivesCollection(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "first")
	rooted(h, s)
	require.NoError(t, h.SetStringContents(s, []byte("replacement text")))

	mustCollect(t, h)
	assert.Equal(t, "replacement text", h.StringText(s))
}

// TestStringRoundTripBytes verifies byte strings preserve arbitrary octet
// sequences across collection and compaction.
func TestStringRoundTripBytes(t *testing.T) {
	h := newTestHeap(t)

	payload := make([]byte, 257)
	for i := range payload {
		payload[i] = byte(i)
	}
	s, err := h.MakeStringBytes(payload)
	require.NoError(t, err)
	rooted(h, s)

	for range 30 {
		mustString(t, h, "filler garbage")
	}
	mustCollect(t, h)

	assert.True(t, bytes.Equal(payload, h.StringBytes(s)))
}
