package heap

import (
	"math"

	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

const (
	floatSize   = wordBytes
	blockFloats = blockBytes / floatSize

	floatMarkWords = (blockFloats + 63) / 64
)

// floatBlock stores boxed float64 cells with a side mark bitmap. A free
// cell's bits hold the virtual address of the next free cell, the same
// overlay the pair pool uses for its chain.
type floatBlock struct {
	base  uint64
	cells [blockFloats]float64
	marks [floatMarkWords]uint64
	next  *floatBlock
}

func (b *floatBlock) marked(i int) bool { return b.marks[i/64]>>(uint(i)%64)&1 != 0 }
func (b *floatBlock) setMark(i int)     { b.marks[i/64] |= 1 << (uint(i) % 64) }

func (h *Heap) newFloatBlock() error {
	if err := h.chargeBlock(blockBytes); err != nil {
		return err
	}
	b := &floatBlock{
		base: h.reserveRange(blockBytes, blockBytes),
		next: h.floatBlock,
	}
	h.floatBlocks[b.base] = b
	h.index.Insert(b.base, b.base+blockBytes, memindex.FloatBlock, b)
	h.floatBlock = b
	h.floatIndex = 0
	return nil
}

func (h *Heap) floatAt(addr uint64) (*floatBlock, int) {
	b := h.floatBlocks[addr&^(blockBytes-1)]
	if b == nil {
		fatalf("float reference %#x outside any float block", addr)
	}
	off := addr - b.base
	if off%floatSize != 0 {
		fatalf("misaligned float reference %#x", addr)
	}
	return b, int(off / floatSize)
}

// MakeFloat boxes f.
func (h *Heap) MakeFloat(f float64) (value.Value, error) {
	var addr uint64
	if h.floatFree != 0 {
		addr = h.floatFree
		b, i := h.floatAt(addr)
		h.floatFree = math.Float64bits(b.cells[i])
		b.cells[i] = f
	} else {
		if h.floatBlock == nil || h.floatIndex == blockFloats {
			if err := h.newFloatBlock(); err != nil {
				return value.Nil, err
			}
		}
		b := h.floatBlock
		i := h.floatIndex
		h.floatIndex++
		addr = b.base + uint64(i)*floatSize
		b.cells[i] = f
	}
	h.floatsMade++
	h.tally(floatSize)
	return value.FromAddr(value.TagFloat, addr), nil
}

// FloatVal unboxes a float value.
func (h *Heap) FloatVal(v value.Value) float64 {
	if !v.IsFloat() {
		panic("heap: FloatVal of " + v.String())
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return math.Float64frombits(uint64(h.pure.readValue(addr)))
	}
	b, i := h.floatAt(addr)
	return b.cells[i]
}
