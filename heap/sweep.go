package heap

import (
	"math"

	"github.com/joshuapare/heapkit/heap/strdata"
	"github.com/joshuapare/heapkit/heap/value"
)

// sweepStats accumulates one cycle's reclamation results. Live counts
// feed the collection trigger; blocksFreed clears the memory-full flag.
type sweepStats struct {
	livePairs, freePairs         int64
	liveFloats, freeFloats       int64
	liveIntervals, freeIntervals int64
	liveSymbols, freeSymbols     int64
	liveStrings, freeStrings     int64
	liveStringBytes              int64
	liveVectors                  int64
	liveVectorWords              int64
	freeVectorWords              int64
	blocksFreed                  int64
}

// liveBytes totals the storage occupied by surviving objects.
func (s *sweepStats) liveBytes() int64 {
	return s.livePairs*pairSize +
		s.liveFloats*floatSize +
		s.liveIntervals*intervalSize +
		s.liveSymbols*symbolSize +
		s.liveStrings*stringSize +
		s.liveStringBytes +
		s.liveVectorWords*wordBytes
}

// gcSweep reclaims everything left unmarked and rebuilds every free chain.
// Strings go first so payload compaction sees final liveness before any
// header cell is recycled.
func (h *Heap) gcSweep() {
	h.stat = sweepStats{}
	h.sweepStrings()
	h.sweepPairs()
	h.sweepFloats()
	h.sweepIntervals()
	h.sweepSymbols()
	h.sweepVectors()
	h.lastLiveBytes = h.stat.liveBytes()
}

// sweepStrings frees dead headers and payloads, then compacts the payload
// slabs. The free chain is rebuilt from scratch, so releasing a block only
// needs the chain rolled back to its state before that block was scanned.
func (h *Heap) sweepStrings() {
	h.strFree = 0
	bprev := &h.strBlock
	for b := *bprev; b != nil; b = *bprev {
		nfree := 0
		freeBefore := h.strFree
		for i := range b.cells {
			c := &b.cells[i]
			if c.data.IsZero() {
				// Already free; chain it again.
				*c = stringCell{charLen: int64(h.strFree)}
				h.strFree = b.base + uint64(i)*stringSize
				nfree++
				continue
			}
			if !c.marked {
				h.strs.Release(c.data)
				*c = stringCell{charLen: int64(h.strFree)}
				h.strFree = b.base + uint64(i)*stringSize
				nfree++
				continue
			}
			c.marked = false
			if got := int64(c.data.Nbytes()); got != c.bytesLen() {
				fatalf("string %#x holds %d payload bytes, header says %d",
					b.base+uint64(i)*stringSize, got, c.bytesLen())
			}
			h.stat.liveStrings++
			h.stat.liveStringBytes += c.bytesLen()
		}
		if nfree == blockStrings && h.stat.freeStrings > blockStrings {
			*bprev = b.next
			h.strFree = freeBefore
			h.index.Remove(b.base)
			delete(h.strBlocks, b.base)
			h.uncharge(blockBytes)
			h.stat.blocksFreed++
		} else {
			h.stat.freeStrings += int64(nfree)
			bprev = &b.next
		}
	}

	h.strs.Compact(func(owner uint64, r strdata.Ref) {
		b, i := h.stringAt(owner)
		b.cells[i].data = r
	})
}

// sweepPairs scans mark bitmaps a word at a time. Only the head block has
// a fill cursor; everything behind it is fully tiled.
func (h *Heap) sweepPairs() {
	h.pairFree = 0
	lim := h.pairIndex
	bprev := &h.pairBlock
	for b := *bprev; b != nil; b = *bprev {
		thisFree := 0
		ilim := (lim + 63) / 64
		for w := 0; w < ilim; w++ {
			if b.marks[w] == ^uint64(0) {
				// All 64 cells live.
				b.marks[w] = 0
				h.stat.livePairs += 64
				continue
			}
			start := w * 64
			stop := lim - start
			if stop > 64 {
				stop = 64
			}
			stop += start
			for i := start; i < stop; i++ {
				if b.marked(i) {
					h.stat.livePairs++
					continue
				}
				b.cells[i] = pairCell{
					car: value.Dead,
					cdr: value.Value(h.pairFree),
				}
				h.pairFree = b.base + uint64(i)*pairSize
				thisFree++
			}
			b.marks[w] = 0
		}
		lim = blockPairs
		if thisFree == blockPairs && h.stat.freePairs > blockPairs {
			*bprev = b.next
			// The block's cells sit contiguously at the chain head; cell
			// 0 went on first, so its link restores the rest of the
			// chain.
			h.pairFree = uint64(b.cells[0].cdr)
			h.index.Remove(b.base)
			delete(h.pairBlocks, b.base)
			h.uncharge(blockBytes)
			h.stat.blocksFreed++
		} else {
			h.stat.freePairs += int64(thisFree)
			bprev = &b.next
		}
	}
}

func (h *Heap) sweepFloats() {
	h.floatFree = 0
	lim := h.floatIndex
	bprev := &h.floatBlock
	for b := *bprev; b != nil; b = *bprev {
		thisFree := 0
		for i := 0; i < lim; i++ {
			if b.marked(i) {
				h.stat.liveFloats++
				continue
			}
			b.cells[i] = math.Float64frombits(h.floatFree)
			h.floatFree = b.base + uint64(i)*floatSize
			thisFree++
		}
		for w := range b.marks {
			b.marks[w] = 0
		}
		lim = blockFloats
		if thisFree == blockFloats && h.stat.freeFloats > blockFloats {
			*bprev = b.next
			h.floatFree = math.Float64bits(b.cells[0])
			h.index.Remove(b.base)
			delete(h.floatBlocks, b.base)
			h.uncharge(blockBytes)
			h.stat.blocksFreed++
		} else {
			h.stat.freeFloats += int64(thisFree)
			bprev = &b.next
		}
	}
}

func (h *Heap) sweepIntervals() {
	h.intFree = 0
	lim := h.intIndex
	bprev := &h.intBlock
	for b := *bprev; b != nil; b = *bprev {
		thisFree := 0
		for i := 0; i < lim; i++ {
			c := &b.cells[i]
			if c.marked {
				c.marked = false
				h.stat.liveIntervals++
				continue
			}
			*c = intervalCell{up: Interval(h.intFree)}
			h.intFree = b.base + uint64(i)*intervalSize
			thisFree++
		}
		lim = blockIntervals
		if thisFree == blockIntervals && h.stat.freeIntervals > blockIntervals {
			*bprev = b.next
			h.intFree = uint64(b.cells[0].up)
			h.index.Remove(b.base)
			delete(h.intBlocks, b.base)
			h.uncharge(blockBytes)
			h.stat.blocksFreed++
		} else {
			h.stat.freeIntervals += int64(thisFree)
			bprev = &b.next
		}
	}
}

func (h *Heap) sweepSymbols() {
	h.symFree = 0
	lim := h.symIndex
	bprev := &h.symBlock
	for b := *bprev; b != nil; b = *bprev {
		thisFree := 0
		for i := 0; i < lim; i++ {
			c := &b.cells[i]
			if c.marked {
				c.marked = false
				h.stat.liveSymbols++
				continue
			}
			// Dropping the box here releases any context-local binding.
			*c = symbolCell{
				fn:   value.Dead,
				next: value.Value(h.symFree),
			}
			h.symFree = b.base + uint64(i)*symbolSize
			thisFree++
		}
		lim = blockSymbols
		if thisFree == blockSymbols && h.stat.freeSymbols > blockSymbols {
			*bprev = b.next
			h.symFree = uint64(b.cells[0].next)
			h.index.Remove(b.base)
			delete(h.symBlocks, b.base)
			h.uncharge(blockBytes)
			h.stat.blocksFreed++
		} else {
			h.stat.freeSymbols += int64(thisFree)
			bprev = &b.next
		}
	}
}

// releaseVectorRecord tears down side state attached to a dead record.
func (h *Heap) releaseVectorRecord(addr uint64, hdr uint64) {
	switch vecHdrKind(hdr) {
	case VecBignum:
		delete(h.bignums, addr)
	case VecUserData:
		if ud := h.userdata[addr]; ud != nil {
			if ud.release != nil {
				ud.release(ud.payload)
			}
			delete(h.userdata, addr)
		}
	case VecFinalizer:
		h.unchainFinalizer(addr)
	}
}

// sweepVectors walks every block region by region, coalescing dead
// records and stale free regions into maximal runs. A block whose single
// run covers it entirely is unmapped; every other run is chained by size.
func (h *Heap) sweepVectors() {
	h.vecFree = [vblockWords + 1]uint64{}

	bprev := &h.vecChain
	for b := *bprev; b != nil; b = *bprev {
		freeThisBlock := false
		off := 0
		for off < vblockWords {
			hdr := uint64(b.words[off])
			if vecHdrMarked(hdr) {
				hdr &^= vecMarkBit
				b.words[off] = value.Value(hdr)
				total := vecHdrWords(hdr)
				h.stat.liveVectors++
				h.stat.liveVectorWords += int64(total)
				off += total
				continue
			}
			run := off
			for off < vblockWords {
				hdr := uint64(b.words[off])
				if vecHdrMarked(hdr) {
					break
				}
				if vecHdrKind(hdr) != VecFree {
					h.releaseVectorRecord(b.base+uint64(off)*wordBytes, hdr)
				}
				off += vecHdrWords(hdr)
			}
			if run == 0 && off == vblockWords {
				freeThisBlock = true
			} else {
				h.pushFreeRegion(b.base, b.words[:], run, off-run)
				h.stat.freeVectorWords += int64(off - run)
			}
		}
		if freeThisBlock {
			*bprev = b.next
			h.index.Remove(b.base)
			delete(h.vecBlocks, b.base)
			h.uncharge(vblockBytes)
			h.stat.blocksFreed++
		} else {
			bprev = &b.next
		}
	}

	lvprev := &h.largeHead
	for lv := *lvprev; lv != nil; lv = *lvprev {
		hdr := uint64(lv.words[0])
		if vecHdrMarked(hdr) {
			hdr &^= vecMarkBit
			lv.words[0] = value.Value(hdr)
			h.stat.liveVectors++
			h.stat.liveVectorWords += int64(vecHdrWords(hdr))
			lvprev = &lv.next
		} else {
			h.releaseVectorRecord(lv.base, hdr)
			*lvprev = lv.next
			h.index.Remove(lv.base)
			delete(h.largeVecs, lv.base)
			h.uncharge(len(lv.words) * wordBytes)
			h.stat.blocksFreed++
		}
	}
}
