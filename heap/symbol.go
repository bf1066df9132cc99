package heap

import (
	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

const (
	// Virtual footprint of one symbol cell. Only address arithmetic
	// cares; the Go-side struct may be smaller.
	symbolSize   = 8 * wordBytes
	blockSymbols = blockBytes / symbolSize
)

// BindKind selects how a symbol's value cell resolves.
type BindKind uint8

const (
	BindPlain     BindKind = iota // value sits in the val field
	BindAlias                     // val holds the symbol to defer to
	BindBoxed                     // value is context-local, held in a box
	BindForwarded                 // value lives outside the heap
)

// symBox backs a context-local binding. The box itself is not a heap
// object; the collector traces its three fields and the sweep frees it
// with its symbol.
type symBox struct {
	where   value.Value
	valcell value.Value
	defcell value.Value
}

type symbolCell struct {
	name  value.Value
	val   value.Value
	fn    value.Value // Dead while the cell is on the free chain
	plist value.Value
	next  value.Value // intern bucket chain, Nil at the end

	box     *symBox
	binding BindKind
	pinned  bool
	marked  bool
}

type symbolBlock struct {
	base  uint64
	cells [blockSymbols]symbolCell
	next  *symbolBlock
}

func (h *Heap) newSymbolBlock() error {
	if err := h.chargeBlock(blockBytes); err != nil {
		return err
	}
	b := &symbolBlock{
		base: h.reserveRange(blockBytes, blockBytes),
		next: h.symBlock,
	}
	h.symBlocks[b.base] = b
	h.index.Insert(b.base, b.base+blockBytes, memindex.SymbolBlock, b)
	h.symBlock = b
	h.symIndex = 0
	return nil
}

func (h *Heap) symbolAt(addr uint64) (*symbolBlock, int) {
	b := h.symBlocks[addr&^(blockBytes-1)]
	if b == nil {
		fatalf("symbol reference %#x outside any symbol block", addr)
	}
	off := addr - b.base
	if off%symbolSize != 0 {
		fatalf("misaligned symbol reference %#x", addr)
	}
	return b, int(off / symbolSize)
}

func (h *Heap) symCell(v value.Value) *symbolCell {
	if !v.IsSymbol() {
		panic("heap: symbol accessor on " + v.String())
	}
	b, i := h.symbolAt(v.Addr())
	return &b.cells[i]
}

// MakeSymbol allocates a fresh symbol named by the string name. The new
// symbol starts unbound with an empty function cell and property list, and
// belongs to no intern bucket.
func (h *Heap) MakeSymbol(name value.Value) (value.Value, error) {
	if !name.IsString() {
		return value.Nil, ErrWrongType
	}
	var addr uint64
	if h.symFree != 0 {
		addr = h.symFree
		b, i := h.symbolAt(addr)
		h.symFree = uint64(b.cells[i].next)
	} else {
		if h.symBlock == nil || h.symIndex == blockSymbols {
			if err := h.newSymbolBlock(); err != nil {
				return value.Nil, err
			}
		}
		addr = h.symBlock.base + uint64(h.symIndex)*symbolSize
		h.symIndex++
	}
	b, i := h.symbolAt(addr)
	b.cells[i] = symbolCell{
		name:  name,
		val:   value.Unbound,
		fn:    value.Nil,
		plist: value.Nil,
		next:  value.Nil,
	}
	h.symbolsMade++
	h.tally(symbolSize)
	return value.FromAddr(value.TagSymbol, addr), nil
}

// SymbolName returns the name string of sym.
func (h *Heap) SymbolName(sym value.Value) value.Value { return h.symCell(sym).name }

// SymbolValue returns the raw value cell. Alias and boxed resolution is
// the evaluator's business; the heap only stores the cells.
func (h *Heap) SymbolValue(sym value.Value) value.Value { return h.symCell(sym).val }

// SetSymbolValue stores v in the value cell.
func (h *Heap) SetSymbolValue(sym, v value.Value) { h.symCell(sym).val = v }

// SymbolFunction returns the function cell.
func (h *Heap) SymbolFunction(sym value.Value) value.Value { return h.symCell(sym).fn }

// SetSymbolFunction stores fn in the function cell.
func (h *Heap) SetSymbolFunction(sym, fn value.Value) { h.symCell(sym).fn = fn }

// SymbolPlist returns the property list.
func (h *Heap) SymbolPlist(sym value.Value) value.Value { return h.symCell(sym).plist }

// SetSymbolPlist stores the property list.
func (h *Heap) SetSymbolPlist(sym, plist value.Value) { h.symCell(sym).plist = plist }

// SymbolNext returns the next symbol in sym's intern bucket, or Nil.
func (h *Heap) SymbolNext(sym value.Value) value.Value { return h.symCell(sym).next }

// SetSymbolNext chains sym into an intern bucket. next must be a symbol or
// Nil.
func (h *Heap) SetSymbolNext(sym, next value.Value) {
	if !next.IsNil() && !next.IsSymbol() {
		panic("heap: intern chain link " + next.String())
	}
	h.symCell(sym).next = next
}

// Binding reports how sym's value cell resolves.
func (h *Heap) Binding(sym value.Value) BindKind { return h.symCell(sym).binding }

// SetAlias makes sym defer to target.
func (h *Heap) SetAlias(sym, target value.Value) {
	if !target.IsSymbol() {
		panic("heap: alias target " + target.String())
	}
	c := h.symCell(sym)
	c.binding = BindAlias
	c.val = target
	c.box = nil
}

// SetForwarded marks sym's value as living outside the heap. The value
// cell is ignored until the binding changes back.
func (h *Heap) SetForwarded(sym value.Value) {
	c := h.symCell(sym)
	c.binding = BindForwarded
	c.val = value.Nil
	c.box = nil
}

// SetBoxedBinding gives sym a context-local binding. The collector traces
// all three box fields for as long as sym lives.
func (h *Heap) SetBoxedBinding(sym, where, valcell, defcell value.Value) {
	c := h.symCell(sym)
	c.binding = BindBoxed
	c.val = value.Nil
	c.box = &symBox{where: where, valcell: valcell, defcell: defcell}
}

// BoxedBinding returns the box fields of a context-local binding.
func (h *Heap) BoxedBinding(sym value.Value) (where, valcell, defcell value.Value, ok bool) {
	c := h.symCell(sym)
	if c.binding != BindBoxed || c.box == nil {
		return value.Nil, value.Nil, value.Nil, false
	}
	return c.box.where, c.box.valcell, c.box.defcell, true
}

// SetPlainBinding resets sym to an ordinary value cell holding v.
func (h *Heap) SetPlainBinding(sym, v value.Value) {
	c := h.symCell(sym)
	c.binding = BindPlain
	c.val = v
	c.box = nil
}

// pinSymbol keeps sym alive across all future collections. Pure copies of
// interned symbols get pinned instead of moved, since symbol identity must
// survive.
func (h *Heap) pinSymbol(sym value.Value) {
	c := h.symCell(sym)
	if !c.pinned {
		c.pinned = true
		h.pinnedSyms = append(h.pinnedSyms, sym)
	}
}
