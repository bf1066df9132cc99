package heap

// VecKind is the sub-kind of a vector-like record, stored in its header
// word. All kinds share storage and sweeping; they differ in construction,
// tracing and teardown.
type VecKind uint8

const (
	VecPlain        VecKind = iota // ordinary vector
	VecRecord                      // record with a type descriptor in slot 0
	VecClosure                     // function object
	VecMarker                      // position marker
	VecOverlay                     // region annotation
	VecBoolVector                  // bit array in extra words
	VecCharTable                   // character dispatch table
	VecSubCharTable                // interior node of a char table
	VecHashTable                   // identity hash table
	VecBignum                      // arbitrary-precision integer, payload in a side table
	VecUserData                    // embedder payload with a release hook
	VecFinalizer                   // runs a function when its object dies

	// VecFree marks a free region inside a vector block. Never visible
	// through a Value.
	VecFree VecKind = 0xff
)

func (k VecKind) String() string {
	switch k {
	case VecPlain:
		return "vector"
	case VecRecord:
		return "record"
	case VecClosure:
		return "closure"
	case VecMarker:
		return "marker"
	case VecOverlay:
		return "overlay"
	case VecBoolVector:
		return "bool-vector"
	case VecCharTable:
		return "char-table"
	case VecSubCharTable:
		return "sub-char-table"
	case VecHashTable:
		return "hash-table"
	case VecBignum:
		return "bignum"
	case VecUserData:
		return "user-data"
	case VecFinalizer:
		return "finalizer"
	case VecFree:
		return "free"
	}
	return "unknown"
}

// Header word layout: traced slot count in the low 32 bits, untraced extra
// word count in the next 16, sub-kind in the next 8, mark in bit 63. A
// free region stores its total word count, header included, in the slot
// field.
const (
	vecSlotMask   = uint64(1)<<32 - 1
	vecExtraShift = 32
	vecExtraMask  = uint64(1)<<16 - 1
	vecKindShift  = 48
	vecKindMask   = uint64(0xff)
	vecMarkBit    = uint64(1) << 63
)

func vecHeader(kind VecKind, nslots, extra int) uint64 {
	return uint64(nslots) | uint64(extra)<<vecExtraShift | uint64(kind)<<vecKindShift
}

func vecHdrSlots(hdr uint64) int    { return int(hdr & vecSlotMask) }
func vecHdrExtra(hdr uint64) int    { return int(hdr >> vecExtraShift & vecExtraMask) }
func vecHdrKind(hdr uint64) VecKind { return VecKind(hdr >> vecKindShift & vecKindMask) }
func vecHdrMarked(hdr uint64) bool  { return hdr&vecMarkBit != 0 }

// vecHdrWords returns the total words a region occupies, header included.
func vecHdrWords(hdr uint64) int {
	if vecHdrKind(hdr) == VecFree {
		return vecHdrSlots(hdr)
	}
	return 1 + vecHdrSlots(hdr) + vecHdrExtra(hdr)
}
