package heap

import (
	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

const (
	pairSize   = 2 * wordBytes
	blockPairs = blockBytes / pairSize

	pairMarkWords = (blockPairs + 63) / 64
)

type pairCell struct {
	car, cdr value.Value
}

// pairBlock holds blockPairs cells plus a side mark bitmap, so marking
// never writes into cell memory. Blocks chain newest first; the head block
// is the one being filled.
type pairBlock struct {
	base  uint64
	cells [blockPairs]pairCell
	marks [pairMarkWords]uint64
	next  *pairBlock
}

func (b *pairBlock) marked(i int) bool { return b.marks[i/64]>>(uint(i)%64)&1 != 0 }
func (b *pairBlock) setMark(i int)     { b.marks[i/64] |= 1 << (uint(i) % 64) }

func (h *Heap) newPairBlock() error {
	if err := h.chargeBlock(blockBytes); err != nil {
		return err
	}
	b := &pairBlock{
		base: h.reserveRange(blockBytes, blockBytes),
		next: h.pairBlock,
	}
	h.pairBlocks[b.base] = b
	h.index.Insert(b.base, b.base+blockBytes, memindex.PairBlock, b)
	h.pairBlock = b
	h.pairIndex = 0
	return nil
}

// pairAt resolves a trusted pair address to its block and cell index.
func (h *Heap) pairAt(addr uint64) (*pairBlock, int) {
	b := h.pairBlocks[addr&^(blockBytes-1)]
	if b == nil {
		fatalf("pair reference %#x outside any pair block", addr)
	}
	off := addr - b.base
	if off%pairSize != 0 {
		fatalf("misaligned pair reference %#x", addr)
	}
	return b, int(off / pairSize)
}

// Cons allocates a fresh pair. Free cells from earlier collections are
// reused before the current block grows.
func (h *Heap) Cons(car, cdr value.Value) (value.Value, error) {
	var addr uint64
	if h.pairFree != 0 {
		addr = h.pairFree
		b, i := h.pairAt(addr)
		h.pairFree = uint64(b.cells[i].cdr)
		b.cells[i] = pairCell{car: car, cdr: cdr}
	} else {
		if h.pairBlock == nil || h.pairIndex == blockPairs {
			if err := h.newPairBlock(); err != nil {
				return value.Nil, err
			}
		}
		b := h.pairBlock
		i := h.pairIndex
		h.pairIndex++
		addr = b.base + uint64(i)*pairSize
		b.cells[i] = pairCell{car: car, cdr: cdr}
	}
	h.pairsConsed++
	h.tally(pairSize)
	return value.FromAddr(value.TagPair, addr), nil
}

// List builds a nil-terminated list of items.
func (h *Heap) List(items ...value.Value) (value.Value, error) {
	res := value.Nil
	for i := len(items) - 1; i >= 0; i-- {
		var err error
		res, err = h.Cons(items[i], res)
		if err != nil {
			return value.Nil, err
		}
	}
	return res, nil
}

// Car returns the head of pair v. v must carry the pair tag; typed
// dispatch belongs to the evaluator.
func (h *Heap) Car(v value.Value) value.Value {
	if !v.IsPair() {
		panic("heap: Car of " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return h.pure.readValue(addr)
	}
	b, i := h.pairAt(addr)
	return b.cells[i].car
}

// Cdr returns the tail of pair v.
func (h *Heap) Cdr(v value.Value) value.Value {
	if !v.IsPair() {
		panic("heap: Cdr of " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return h.pure.readValue(addr + wordBytes)
	}
	b, i := h.pairAt(addr)
	return b.cells[i].cdr
}

// SetCar replaces the head of pair v.
func (h *Heap) SetCar(v, car value.Value) error {
	if !v.IsPair() {
		panic("heap: SetCar of " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return ErrPureWrite
	}
	b, i := h.pairAt(addr)
	b.cells[i].car = car
	return nil
}

// SetCdr replaces the tail of pair v.
func (h *Heap) SetCdr(v, cdr value.Value) error {
	if !v.IsPair() {
		panic("heap: SetCdr of " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return ErrPureWrite
	}
	b, i := h.pairAt(addr)
	b.cells[i].cdr = cdr
	return nil
}
