package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroWordIsNil(t *testing.T) {
	var v Value
	assert.Equal(t, Nil, v)
	assert.True(t, v.IsNil())
	assert.Equal(t, TagSpecial, v.Tag())
}

func TestSpecialsAreDistinct(t *testing.T) {
	seen := map[Value]string{}
	for name, v := range map[string]Value{
		"nil": Nil, "t": True, "unbound": Unbound, "dead": Dead,
	} {
		prev, dup := seen[v]
		require.False(t, dup, "%s collides with %s", name, prev)
		seen[v] = name
		assert.True(t, v.IsSpecial())
		assert.True(t, v.Immediate())
	}
}

func TestFixnumRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, FixnumMax, FixnumMin, FixnumMax - 1, FixnumMin + 1}
	for _, n := range cases {
		v := MakeFixnum(n)
		require.Equal(t, TagFixnum, v.Tag(), "n=%d", n)
		assert.Equal(t, n, FixnumVal(v), "n=%d", n)
		assert.True(t, v.Immediate())
	}
}

func TestFixnumIdentity(t *testing.T) {
	// Equal fixnums are identical words.
	assert.Equal(t, MakeFixnum(7), MakeFixnum(7))
	assert.NotEqual(t, MakeFixnum(7), MakeFixnum(8))
}

func TestHeapTagAddrRoundTrip(t *testing.T) {
	const addr = uint64(0x1_0000_4380)
	for _, tag := range []Tag{TagPair, TagSymbol, TagString, TagVector, TagFloat} {
		v := FromAddr(tag, addr)
		assert.Equal(t, tag, v.Tag())
		assert.Equal(t, addr, v.Addr())
		assert.False(t, v.Immediate())
	}
}

func TestPredicates(t *testing.T) {
	p := FromAddr(TagPair, 0x100000000)
	assert.True(t, p.IsPair())
	assert.False(t, p.IsSymbol())
	assert.False(t, p.IsNil())

	assert.True(t, MakeBool(true) == True)
	assert.True(t, MakeBool(false) == Nil)
}

func TestStringForm(t *testing.T) {
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "t", True.String())
	assert.Equal(t, "-3", MakeFixnum(-3).String())
	assert.Contains(t, FromAddr(TagPair, 0x100000000).String(), "pair")
}
