package heap

import (
	"math/big"

	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

// VectorEltsMax bounds the traced slot count of a single record. Requests
// beyond it fail with ErrVectorTooLarge before reserving anything.
const VectorEltsMax = 1 << 28

// Free regions need a header word and a chain word.
const minRegionWords = 2

// vectorBlock carves variable-sized records out of a fixed span of words.
// Records and free regions tile the block completely, so a walk from word
// 0 visits every region boundary.
type vectorBlock struct {
	base  uint64
	words [vblockWords]value.Value
	next  *vectorBlock
}

// largeVector is a record too big for a block; it owns its span and is
// released the moment it dies.
type largeVector struct {
	base  uint64
	words []value.Value
	next  *largeVector
}

// vecLoc resolves a trusted vector address to its backing words and header
// index.
func (h *Heap) vecLoc(addr uint64) ([]value.Value, int) {
	if lv, ok := h.largeVecs[addr]; ok {
		return lv.words, 0
	}
	b := h.vecBlocks[addr&^(vblockBytes-1)]
	if b == nil {
		fatalf("vector reference %#x outside any vector block", addr)
	}
	off := addr - b.base
	if off%wordBytes != 0 {
		fatalf("misaligned vector reference %#x", addr)
	}
	return b.words[:], int(off / wordBytes)
}

func (h *Heap) vecHeaderOf(v value.Value) uint64 {
	if !v.IsVector() {
		panic("heap: vector accessor on " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return uint64(h.pure.readValue(addr))
	}
	words, hi := h.vecLoc(addr)
	return uint64(words[hi])
}

func (h *Heap) newVectorBlock() (*vectorBlock, error) {
	if err := h.chargeBlock(vblockBytes); err != nil {
		return nil, err
	}
	b := &vectorBlock{
		base: h.reserveRange(vblockBytes, vblockBytes),
		next: h.vecChain,
	}
	h.vecChain = b
	h.vecBlocks[b.base] = b
	h.index.Insert(b.base, b.base+vblockBytes, memindex.VectorBlock, b)
	return b, nil
}

// pushFreeRegion formats words[hi:hi+total] as a free region and chains it.
func (h *Heap) pushFreeRegion(base uint64, words []value.Value, hi, total int) {
	if total < minRegionWords {
		fatalf("free region of %d words at %#x", total, base+uint64(hi)*wordBytes)
	}
	words[hi] = value.Value(vecHeader(VecFree, total, 0))
	words[hi+1] = value.Value(h.vecFree[total])
	h.vecFree[total] = base + uint64(hi)*wordBytes
}

// popFreeRegion takes the head region of size total words off its chain.
func (h *Heap) popFreeRegion(total int) (uint64, []value.Value, int) {
	addr := h.vecFree[total]
	words, hi := h.vecLoc(addr)
	if vecHdrKind(uint64(words[hi])) != VecFree || vecHdrWords(uint64(words[hi])) != total {
		fatalf("free chain %d points at %#x with header %#x", total, addr, uint64(words[hi]))
	}
	h.vecFree[total] = uint64(words[hi+1])
	return addr, words, hi
}

// allocVector reserves a record of nslots traced slots and extra untraced
// words, filling the slots with fill and zeroing the extras.
func (h *Heap) allocVector(kind VecKind, nslots, extra int, fill value.Value) (value.Value, error) {
	if nslots < 0 || nslots > VectorEltsMax || extra < 0 || extra > int(vecExtraMask) {
		return value.Nil, ErrVectorTooLarge
	}
	total := 1 + nslots + extra
	if total < minRegionWords {
		// A 1-word record would leave unsplittable slivers; pad it.
		extra++
		total++
	}

	var (
		addr  uint64
		words []value.Value
		hi    int
	)
	switch {
	case total <= vblockWords:
		if w := h.smallVecFit(total); w != 0 {
			addr, words, hi = h.popFreeRegion(w)
			if rest := w - total; rest != 0 {
				base := addr &^ (vblockBytes - 1)
				h.pushFreeRegion(base, words, hi+total, rest)
			}
		} else {
			b, err := h.newVectorBlock()
			if err != nil {
				return value.Nil, err
			}
			if rest := vblockWords - total; rest == 1 {
				extra++
				total++
			} else if rest != 0 {
				h.pushFreeRegion(b.base, b.words[:], total, rest)
			}
			addr, words, hi = b.base, b.words[:], 0
		}
	default:
		nbytes := total * wordBytes
		if err := h.chargeBlock(nbytes); err != nil {
			return value.Nil, err
		}
		lv := &largeVector{
			base:  h.reserveRange(uint64(nbytes), wordBytes),
			words: make([]value.Value, total),
			next:  h.largeHead,
		}
		h.largeHead = lv
		h.largeVecs[lv.base] = lv
		h.index.Insert(lv.base, lv.base+uint64(nbytes), memindex.LargeVector, lv)
		addr, words, hi = lv.base, lv.words, 0
	}

	words[hi] = value.Value(vecHeader(kind, nslots, extra))
	for i := 0; i < nslots; i++ {
		words[hi+1+i] = fill
	}
	for i := 0; i < extra; i++ {
		words[hi+1+nslots+i] = 0
	}

	h.vectorCellsMade += int64(total - 1)
	h.tally(int64(total) * wordBytes)
	return value.FromAddr(value.TagVector, addr), nil
}

// smallVecFit picks the free-chain size class that can serve a record of
// total words: an exact fit, or one whose remainder still holds a region.
func (h *Heap) smallVecFit(total int) int {
	if h.vecFree[total] != 0 {
		return total
	}
	for w := total + minRegionWords; w <= vblockWords; w++ {
		if h.vecFree[w] != 0 {
			return w
		}
	}
	return 0
}

// MakeVector allocates a plain vector of n slots holding fill. All empty
// vectors are one shared record.
func (h *Heap) MakeVector(n int, fill value.Value) (value.Value, error) {
	if n == 0 {
		return h.zeroVec, nil
	}
	return h.allocVector(VecPlain, n, 0, fill)
}

// MakeRecord allocates a record of n slots. Slot 0 conventionally holds
// the type descriptor.
func (h *Heap) MakeRecord(n int, fill value.Value) (value.Value, error) {
	return h.allocVector(VecRecord, n, 0, fill)
}

// MakeClosure allocates a function object capturing slots.
func (h *Heap) MakeClosure(slots []value.Value) (value.Value, error) {
	v, err := h.allocVector(VecClosure, len(slots), 0, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	words, hi := h.vecLoc(v.Addr())
	copy(words[hi+1:hi+1+len(slots)], slots)
	return v, nil
}

// MakeSpecialized allocates a record of an arbitrary layout-free kind.
// Kinds backed by side state or a fixed layout (bool vectors, char tables,
// hash tables, bignums, finalizers, user data) must use their dedicated
// constructors and are rejected with ErrBadKind.
func (h *Heap) MakeSpecialized(kind VecKind, nslots, extra int, fill value.Value) (value.Value, error) {
	switch kind {
	case VecPlain, VecRecord, VecClosure, VecMarker, VecOverlay:
		return h.allocVector(kind, nslots, extra, fill)
	}
	return value.Nil, ErrBadKind
}

// VectorKind returns the sub-kind of record v.
func (h *Heap) VectorKind(v value.Value) VecKind { return vecHdrKind(h.vecHeaderOf(v)) }

// VectorLen returns the traced slot count of record v.
func (h *Heap) VectorLen(v value.Value) int { return vecHdrSlots(h.vecHeaderOf(v)) }

// VectorExtraWords returns the untraced word count of record v.
func (h *Heap) VectorExtraWords(v value.Value) int { return vecHdrExtra(h.vecHeaderOf(v)) }

// ARef returns slot i of record v.
func (h *Heap) ARef(v value.Value, i int) value.Value {
	hdr := h.vecHeaderOf(v)
	if i < 0 || i >= vecHdrSlots(hdr) {
		panic("heap: slot index out of range")
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return h.pure.readValue(addr + uint64(1+i)*wordBytes)
	}
	words, hi := h.vecLoc(addr)
	return words[hi+1+i]
}

// ASet stores x in slot i of record v.
func (h *Heap) ASet(v value.Value, i int, x value.Value) error {
	hdr := h.vecHeaderOf(v)
	if i < 0 || i >= vecHdrSlots(hdr) {
		panic("heap: slot index out of range")
	}
	if h.pure.contains(v.Addr()) {
		return ErrPureWrite
	}
	words, hi := h.vecLoc(v.Addr())
	words[hi+1+i] = x
	return nil
}

// VectorWord returns untraced extra word i of record v. Specialized kinds
// keep raw machine words here: bit arrays, counts, cached positions.
func (h *Heap) VectorWord(v value.Value, i int) uint64 {
	hdr := h.vecHeaderOf(v)
	if i < 0 || i >= vecHdrExtra(hdr) {
		panic("heap: extra word index out of range")
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return uint64(h.pure.readValue(addr + uint64(1+vecHdrSlots(hdr)+i)*wordBytes))
	}
	words, hi := h.vecLoc(addr)
	return uint64(words[hi+1+vecHdrSlots(hdr)+i])
}

// SetVectorWord stores a raw machine word in extra word i of record v.
func (h *Heap) SetVectorWord(v value.Value, i int, w uint64) error {
	hdr := h.vecHeaderOf(v)
	if i < 0 || i >= vecHdrExtra(hdr) {
		panic("heap: extra word index out of range")
	}
	if h.pure.contains(v.Addr()) {
		return ErrPureWrite
	}
	words, hi := h.vecLoc(v.Addr())
	words[hi+1+vecHdrSlots(hdr)+i] = value.Value(w)
	return nil
}

// Bool vectors store their bit length in extra word 0 and the bits after.

// MakeBoolVector allocates a bit array of nbits, all set to init.
func (h *Heap) MakeBoolVector(nbits int, init bool) (value.Value, error) {
	if nbits < 0 {
		return value.Nil, ErrVectorTooLarge
	}
	dataWords := (nbits + 63) / 64
	v, err := h.allocVector(VecBoolVector, 0, 1+dataWords, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	words, hi := h.vecLoc(v.Addr())
	words[hi+1] = value.Value(uint64(nbits))
	if init {
		for i := 0; i < dataWords; i++ {
			words[hi+2+i] = value.Value(^uint64(0))
		}
	}
	return v, nil
}

// BoolVectorLen returns the bit count of v.
func (h *Heap) BoolVectorLen(v value.Value) int {
	if h.VectorKind(v) != VecBoolVector {
		panic("heap: BoolVectorLen of " + v.String())
	}
	return int(h.VectorWord(v, 0))
}

// BoolVectorRef returns bit i of v.
func (h *Heap) BoolVectorRef(v value.Value, i int) bool {
	if i < 0 || i >= h.BoolVectorLen(v) {
		panic("heap: bit index out of range")
	}
	return h.VectorWord(v, 1+i/64)>>(uint(i)%64)&1 != 0
}

// BoolVectorSet sets bit i of v to b.
func (h *Heap) BoolVectorSet(v value.Value, i int, b bool) error {
	if i < 0 || i >= h.BoolVectorLen(v) {
		panic("heap: bit index out of range")
	}
	w := h.VectorWord(v, 1+i/64)
	if b {
		w |= 1 << (uint(i) % 64)
	} else {
		w &^= 1 << (uint(i) % 64)
	}
	return h.SetVectorWord(v, 1+i/64, w)
}

// Char tables dispatch on character ranges. A top-level table has a
// default, a parent and charTableGroups group slots; interior nodes skip
// the first two slots when traced specially.
const (
	charTableGroups   = 64
	subCharTableStart = 2 // depth and minimum character, stored as fixnums
	subCharTableSlots = subCharTableStart + 32
)

// MakeCharTable allocates a top-level char table.
func (h *Heap) MakeCharTable(dflt, parent value.Value) (value.Value, error) {
	v, err := h.allocVector(VecCharTable, 2+charTableGroups, 0, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	if err := h.ASet(v, 0, dflt); err != nil {
		return value.Nil, err
	}
	if err := h.ASet(v, 1, parent); err != nil {
		return value.Nil, err
	}
	return v, nil
}

// MakeSubCharTable allocates an interior char-table node for depth, whose
// range starts at minChar.
func (h *Heap) MakeSubCharTable(depth, minChar int64, fill value.Value) (value.Value, error) {
	v, err := h.allocVector(VecSubCharTable, subCharTableSlots, 0, fill)
	if err != nil {
		return value.Nil, err
	}
	if err := h.ASet(v, 0, value.MakeFixnum(depth)); err != nil {
		return value.Nil, err
	}
	if err := h.ASet(v, 1, value.MakeFixnum(minChar)); err != nil {
		return value.Nil, err
	}
	return v, nil
}

// MakeBignum boxes an arbitrary-precision integer. The record adopts x;
// the caller must not mutate it afterwards.
func (h *Heap) MakeBignum(x *big.Int) (value.Value, error) {
	v, err := h.allocVector(VecBignum, 0, 1, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	h.bignums[v.Addr()] = x
	return v, nil
}

// BignumVal returns the integer boxed in v. The result is shared; treat it
// as immutable.
func (h *Heap) BignumVal(v value.Value) *big.Int {
	if h.VectorKind(v) != VecBignum {
		panic("heap: BignumVal of " + v.String())
	}
	x, ok := h.bignums[v.Addr()]
	if !ok {
		fatalf("bignum %#x lost its payload", v.Addr())
	}
	return x
}

// userData pairs an embedder payload with its release hook.
type userData struct {
	payload any
	release func(any)
}

// MakeUserData wraps an embedder resource. desc is an ordinary traced slot
// for whatever the embedder wants reachable; release, if non-nil, runs
// during the sweep that reclaims the record, so the embedder can close
// handles exactly once.
func (h *Heap) MakeUserData(desc value.Value, payload any, release func(any)) (value.Value, error) {
	v, err := h.allocVector(VecUserData, 1, 0, desc)
	if err != nil {
		return value.Nil, err
	}
	h.userdata[v.Addr()] = &userData{payload: payload, release: release}
	return v, nil
}

// UserDataVal returns the payload stored in v.
func (h *Heap) UserDataVal(v value.Value) any {
	if h.VectorKind(v) != VecUserData {
		panic("heap: UserDataVal of " + v.String())
	}
	ud, ok := h.userdata[v.Addr()]
	if !ok {
		fatalf("user data %#x lost its payload", v.Addr())
	}
	return ud.payload
}

// UserDataDesc returns the traced descriptor slot of v.
func (h *Heap) UserDataDesc(v value.Value) value.Value {
	if h.VectorKind(v) != VecUserData {
		panic("heap: UserDataDesc of " + v.String())
	}
	return h.ARef(v, 0)
}
