package value

import "fmt"

// Value is a tagged 64-bit word referencing a heap object or carrying an
// immediate. The low 3 bits hold the type tag; heap tags keep an 8-aligned
// virtual heap address in the remaining bits, fixnums keep a signed 61-bit
// integer, and specials keep a small selector.
//
// The all-zero word is Nil, so zero-filled slot memory reads as Nil without
// further initialization.
type Value uint64

// Tag identifies the representation class of a Value.
type Tag uint8

const (
	TagSpecial Tag = 0 // Nil, True, Unbound, Dead
	TagFixnum  Tag = 1
	TagPair    Tag = 2
	TagSymbol  Tag = 3
	TagString  Tag = 4
	TagVector  Tag = 5 // all vector-like records
	TagFloat   Tag = 6

	// Tag 7 is permanently unassigned. A word carrying it is corrupt and
	// the collector aborts when it meets one.
)

// Special immediates. Dead is stored in the reference fields of free pool
// slots so that conservative liveness refinement can reject them; it must
// never be reachable from live data.
const (
	Nil     Value = Value(0)<<3 | Value(TagSpecial)
	True    Value = Value(1)<<3 | Value(TagSpecial)
	Unbound Value = Value(2)<<3 | Value(TagSpecial)
	Dead    Value = Value(3)<<3 | Value(TagSpecial)
)

// Fixnum limits. Fixnums are 61-bit two's complement; the evaluator owns
// promotion to bignums beyond this range.
const (
	FixnumMax = int64(1)<<60 - 1
	FixnumMin = -(int64(1) << 60)
)

// Tag returns the type tag of v.
func (v Value) Tag() Tag { return Tag(v & 7) }

// Addr returns the virtual heap address carried by a heap-tagged value.
// Meaningless for immediates.
func (v Value) Addr() uint64 { return uint64(v) &^ 7 }

// FromAddr builds a heap-tagged value from a virtual address. The address
// must be 8-aligned.
func FromAddr(t Tag, addr uint64) Value { return Value(addr | uint64(t)) }

// MakeFixnum boxes n as a fixnum. Values outside [FixnumMin, FixnumMax]
// wrap; callers that care must range-check first.
func MakeFixnum(n int64) Value { return Value(uint64(n)<<3 | uint64(TagFixnum)) }

// FixnumVal extracts the integer from a fixnum. The shift is arithmetic so
// negative values survive the round trip.
func FixnumVal(v Value) int64 { return int64(v) >> 3 }

// MakeBool maps a Go bool onto True/Nil.
func MakeBool(b bool) Value {
	if b {
		return True
	}
	return Nil
}

func (v Value) IsNil() bool     { return v == Nil }
func (v Value) IsSpecial() bool { return v.Tag() == TagSpecial }
func (v Value) IsFixnum() bool  { return v.Tag() == TagFixnum }
func (v Value) IsPair() bool    { return v.Tag() == TagPair }
func (v Value) IsSymbol() bool  { return v.Tag() == TagSymbol }
func (v Value) IsString() bool  { return v.Tag() == TagString }
func (v Value) IsVector() bool  { return v.Tag() == TagVector }
func (v Value) IsFloat() bool   { return v.Tag() == TagFloat }

// Immediate reports whether v carries no heap reference at all.
func (v Value) Immediate() bool {
	t := v.Tag()
	return t == TagSpecial || t == TagFixnum
}

// String renders a debugging description. Heap values print their tag and
// virtual address; object contents need the owning heap to resolve.
func (v Value) String() string {
	switch v.Tag() {
	case TagSpecial:
		switch v {
		case Nil:
			return "nil"
		case True:
			return "t"
		case Unbound:
			return "#<unbound>"
		case Dead:
			return "#<dead>"
		}
		return fmt.Sprintf("#<special %d>", uint64(v)>>3)
	case TagFixnum:
		return fmt.Sprintf("%d", FixnumVal(v))
	case TagPair:
		return fmt.Sprintf("#<pair %#x>", v.Addr())
	case TagSymbol:
		return fmt.Sprintf("#<symbol %#x>", v.Addr())
	case TagString:
		return fmt.Sprintf("#<string %#x>", v.Addr())
	case TagVector:
		return fmt.Sprintf("#<vector %#x>", v.Addr())
	case TagFloat:
		return fmt.Sprintf("#<float %#x>", v.Addr())
	}
	return fmt.Sprintf("#<corrupt %#x>", uint64(v))
}
