package sysmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapZeroed(t *testing.T) {
	r, err := Map(64 << 10)
	require.NoError(t, err)
	defer r.Unmap()

	require.Equal(t, 64<<10, r.Len())
	for i, b := range r.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestMapReadWrite(t *testing.T) {
	r, err := Map(4096)
	require.NoError(t, err)
	defer r.Unmap()

	buf := r.Bytes()
	for i := range buf {
		buf[i] = byte(i)
	}
	assert.Equal(t, byte(0xff), r.Bytes()[255])
	assert.Equal(t, byte(0x00), r.Bytes()[256])
}

func TestUnmapTwice(t *testing.T) {
	r, err := Map(4096)
	require.NoError(t, err)
	require.NoError(t, r.Unmap())
	assert.ErrorIs(t, r.Unmap(), ErrClosed)
}

func TestMapRejectsBadSize(t *testing.T) {
	_, err := Map(0)
	assert.Error(t, err)
	_, err = Map(-1)
	assert.Error(t, err)
}
