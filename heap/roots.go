package heap

import (
	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

// RegisterRoot declares *slot a permanent exact root. The collector reads
// it at every cycle; the slot may be reassigned freely between cycles.
func (h *Heap) RegisterRoot(slot *value.Value) {
	h.roots = append(h.roots, slot)
}

// AddWordRoots registers a conservative root source, such as an
// interpreter value stack. Sources run on every collection.
func (h *Heap) AddWordRoots(src WordRoots) {
	h.wordRoots = append(h.wordRoots, src)
}

// markRoots marks everything directly reachable: exact roots, pinned
// objects, and every word the registered sources emit.
func (h *Heap) markRoots() {
	for _, slot := range h.roots {
		h.markValue(*slot)
	}
	h.markPinned()
	for _, src := range h.wordRoots {
		src(h.markAmbiguousWord)
	}
}

// markPinned keeps everything pinned by pure bootstrap alive.
func (h *Heap) markPinned() {
	for _, v := range h.pinnedObjs {
		h.markValue(v)
	}
	for _, v := range h.pinnedSyms {
		h.markValue(v)
	}
}

// markAmbiguousWord treats w as a possible reference. It classifies the
// address through the range index and applies per-kind liveness refinement
// before marking anything, so a stale or coincidental word cannot
// resurrect a dead cell.
func (h *Heap) markAmbiguousWord(w uint64) {
	addr := w &^ 7 // fold tag bits; per-kind code folds interior offsets
	e, ok := h.index.Find(addr)
	if !ok {
		return
	}
	switch e.Kind {
	case memindex.Raw:
		// Exact-reference storage; ambiguous words never pin it.

	case memindex.PairBlock:
		b := e.Owner.(*pairBlock)
		i := int((addr - b.base) / pairSize)
		if b == h.pairBlock && i >= h.pairIndex {
			return
		}
		if b.cells[i].car == value.Dead {
			return
		}
		h.markValue(value.FromAddr(value.TagPair, b.base+uint64(i)*pairSize))

	case memindex.FloatBlock:
		b := e.Owner.(*floatBlock)
		i := int((addr - b.base) / floatSize)
		if b == h.floatBlock && i >= h.floatIndex {
			return
		}
		h.markValue(value.FromAddr(value.TagFloat, b.base+uint64(i)*floatSize))

	case memindex.SymbolBlock:
		b := e.Owner.(*symbolBlock)
		i := int((addr - b.base) / symbolSize)
		if b == h.symBlock && i >= h.symIndex {
			return
		}
		if b.cells[i].fn == value.Dead {
			return
		}
		h.markValue(value.FromAddr(value.TagSymbol, b.base+uint64(i)*symbolSize))

	case memindex.StringBlock:
		b := e.Owner.(*stringBlock)
		i := int((addr - b.base) / stringSize)
		if b.cells[i].data.IsZero() {
			return
		}
		h.markValue(value.FromAddr(value.TagString, b.base+uint64(i)*stringSize))

	case memindex.VectorBlock:
		b := e.Owner.(*vectorBlock)
		target := int((addr - b.base) / wordBytes)
		off := 0
		for off < vblockWords {
			hdr := uint64(b.words[off])
			total := vecHdrWords(hdr &^ vecMarkBit)
			if total <= 0 {
				fatalf("vector block %#x loses tiling at word %d", b.base, off)
			}
			if target < off+total {
				if vecHdrKind(hdr) != VecFree {
					h.markValue(value.FromAddr(value.TagVector, b.base+uint64(off)*wordBytes))
				}
				return
			}
			off += total
		}

	case memindex.LargeVector:
		lv := e.Owner.(*largeVector)
		h.markValue(value.FromAddr(value.TagVector, lv.base))
	}
}
