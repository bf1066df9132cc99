package heap

import (
	"github.com/joshuapare/heapkit/heap/value"
)

// markEntry is one mark stack slot: a single value, or a run of
// consecutive record slots consumed left to right.
type markEntry struct {
	run []value.Value
	v   value.Value
}

type markStack struct {
	entries []markEntry
}

func (ms *markStack) empty() bool { return len(ms.entries) == 0 }

func (ms *markStack) push(v value.Value) {
	ms.entries = append(ms.entries, markEntry{v: v})
}

func (ms *markStack) pushRun(run []value.Value) {
	switch len(run) {
	case 0:
	case 1:
		ms.push(run[0])
	default:
		ms.entries = append(ms.entries, markEntry{run: run})
	}
}

func (ms *markStack) pop() value.Value {
	top := &ms.entries[len(ms.entries)-1]
	if top.run != nil {
		v := top.run[0]
		top.run = top.run[1:]
		if len(top.run) == 0 {
			ms.entries = ms.entries[:len(ms.entries)-1]
		}
		return v
	}
	v := top.v
	ms.entries = ms.entries[:len(ms.entries)-1]
	return v
}

// markValue marks v and everything reachable from it.
func (h *Heap) markValue(v value.Value) {
	base := len(h.mst.entries)
	h.mst.push(v)
	h.processMarkStack(base)
}

// processMarkStack drains the mark stack down to base, tracing objects as
// they pop. Pure objects are never traced: everything a pure object can
// reference is pure or pinned.
func (h *Heap) processMarkStack(base int) {
	for len(h.mst.entries) > base {
		obj := h.mst.pop()
	trace:
		for {
			if obj.Immediate() {
				break trace
			}
			addr := obj.Addr()
			if h.pure.contains(addr) {
				break trace
			}
			switch obj.Tag() {
			case value.TagPair:
				b, i := h.pairAt(addr)
				if b.marked(i) {
					break trace
				}
				if b.cells[i].car == value.Dead {
					fatalf("marking a free pair at %#x", addr)
				}
				b.setMark(i)
				// The cdr waits on the stack; chase the car in place
				// so long lists do not recurse.
				if !b.cells[i].cdr.IsNil() {
					h.mst.push(b.cells[i].cdr)
				}
				obj = b.cells[i].car
				continue trace

			case value.TagFloat:
				b, i := h.floatAt(addr)
				b.setMark(i)
				break trace

			case value.TagString:
				h.markString(addr)
				break trace

			case value.TagSymbol:
				// Walk the intern bucket chain iteratively; chains can
				// be long in a warmed-up runtime.
				for {
					c := h.symCell(obj)
					if c.marked {
						break
					}
					if c.fn == value.Dead {
						fatalf("marking a free symbol at %#x", obj.Addr())
					}
					c.marked = true
					h.mst.push(c.fn)
					h.mst.push(c.plist)
					switch c.binding {
					case BindPlain, BindAlias:
						h.mst.push(c.val)
					case BindBoxed:
						if c.box != nil {
							h.mst.push(c.box.where)
							h.mst.push(c.box.valcell)
							h.mst.push(c.box.defcell)
						}
					case BindForwarded:
						// Value lives outside the heap.
					}
					if !h.pure.contains(c.name.Addr()) {
						h.markString(c.name.Addr())
					}
					if c.next.IsNil() {
						break
					}
					obj = c.next
				}
				break trace

			case value.TagVector:
				h.markVector(obj)
				break trace

			default:
				fatalf("marking %s", obj.String())
			}
		}
	}
}

func (h *Heap) markString(addr uint64) {
	b, i := h.stringAt(addr)
	c := &b.cells[i]
	if c.marked {
		return
	}
	if c.data.IsZero() {
		fatalf("marking a free string at %#x", addr)
	}
	c.marked = true
	h.markIntervalTree(c.ivs)
}

// markIntervalTree marks a property tree, pushing each node's plist for
// the main loop to trace.
func (h *Heap) markIntervalTree(iv Interval) {
	if iv == 0 {
		return
	}
	stack := []Interval{iv}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b, i := h.intervalAt(cur)
		c := &b.cells[i]
		if c.marked {
			continue
		}
		c.marked = true
		h.mst.push(c.plist)
		if c.left != 0 {
			stack = append(stack, c.left)
		}
		if c.right != 0 {
			stack = append(stack, c.right)
		}
	}
}

func (h *Heap) vecMarked(addr uint64) bool {
	words, hi := h.vecLoc(addr)
	return vecHdrMarked(uint64(words[hi]))
}

// markVectorShell marks a record without tracing its slots. Weak tables
// use it to keep their backing storage while entry retention is decided
// later.
func (h *Heap) markVectorShell(v value.Value) {
	words, hi := h.vecLoc(v.Addr())
	words[hi] = value.Value(uint64(words[hi]) | vecMarkBit)
}

func (h *Heap) markVector(v value.Value) {
	addr := v.Addr()
	words, hi := h.vecLoc(addr)
	hdr := uint64(words[hi])
	if vecHdrMarked(hdr) {
		return
	}
	kind := vecHdrKind(hdr)
	if kind == VecFree {
		fatalf("marking a free vector region at %#x", addr)
	}
	words[hi] = value.Value(hdr | vecMarkBit)
	nslots := vecHdrSlots(hdr)

	switch kind {
	case VecHashTable:
		weak := Weakness(uint64(words[hi+1+htSlots+htExtraWeak]))
		if weak == WeakNone {
			h.mst.pushRun(words[hi+1 : hi+1+nslots])
			break
		}
		// Keep the halves' storage, not their contents; the weak phase
		// decides entry by entry.
		h.markVectorShell(words[hi+1+htKeys])
		h.markVectorShell(words[hi+1+htVals])
		h.mst.pushRun(words[hi+1+htTest : hi+1+htSlots])
		h.weakTables = append(h.weakTables, v)

	case VecCharTable, VecSubCharTable:
		h.markCharTable(words, hi, kind)

	default:
		h.mst.pushRun(words[hi+1 : hi+1+nslots])
	}
}

// markCharTable traces a char table, skipping fixnum payloads and symbols
// already marked, and descending into sub-tables directly. Interior nodes
// skip their two fixnum description slots.
func (h *Heap) markCharTable(words []value.Value, hi int, kind VecKind) {
	hdr := uint64(words[hi])
	start := 0
	if kind == VecSubCharTable {
		start = subCharTableStart
	}
	for i := start; i < vecHdrSlots(hdr); i++ {
		val := words[hi+1+i]
		if val.IsFixnum() {
			continue
		}
		if val.IsSymbol() && h.symCell(val).marked {
			continue
		}
		if val.IsVector() && !h.pure.contains(val.Addr()) {
			w2, h2 := h.vecLoc(val.Addr())
			hdr2 := uint64(w2[h2])
			if vecHdrKind(hdr2) == VecSubCharTable {
				if !vecHdrMarked(hdr2) {
					w2[h2] = value.Value(hdr2 | vecMarkBit)
					h.markCharTable(w2, h2, VecSubCharTable)
				}
				continue
			}
		}
		h.mst.push(val)
	}
}

// survives reports whether v is already safe from the coming sweep.
func (h *Heap) survives(v value.Value) bool {
	if v.Immediate() {
		return true
	}
	addr := v.Addr()
	if h.pure.contains(addr) {
		return true
	}
	switch v.Tag() {
	case value.TagPair:
		b, i := h.pairAt(addr)
		return b.marked(i)
	case value.TagFloat:
		b, i := h.floatAt(addr)
		return b.marked(i)
	case value.TagSymbol:
		return h.symCell(v).marked
	case value.TagString:
		b, i := h.stringAt(addr)
		return b.cells[i].marked
	case value.TagVector:
		return h.vecMarked(addr)
	}
	fatalf("liveness of %s", v.String())
	return false
}

// sweepWeakTable scans one weak table. With removeEntries false it marks
// the missing halves of entries whose anchor survived, reporting whether
// it marked anything new; with removeEntries true it drops dead entries.
func (h *Heap) sweepWeakTable(tbl value.Value, removeEntries bool) bool {
	words, hi := h.vecLoc(tbl.Addr())
	weak := Weakness(uint64(words[hi+1+htSlots+htExtraWeak]))
	kw, ki := h.vecLoc(words[hi+1+htKeys].Addr())
	vw, vi := h.vecLoc(words[hi+1+htVals].Addr())
	slots := vecHdrSlots(uint64(kw[ki]))

	markedNew := false
	removed := uint64(0)
	for s := 0; s < slots; s++ {
		k := kw[ki+1+s]
		if k == value.Unbound || k == value.Dead {
			continue
		}
		v := vw[vi+1+s]
		keyLive := h.survives(k)
		valLive := h.survives(v)
		var keep bool
		switch weak {
		case WeakKey:
			keep = keyLive
		case WeakValue:
			keep = valLive
		case WeakKeyAndValue:
			keep = keyLive && valLive
		case WeakKeyOrValue:
			keep = keyLive || valLive
		default:
			keep = true
		}
		if !removeEntries {
			if keep {
				if !keyLive {
					h.markValue(k)
					markedNew = true
				}
				if !valLive {
					h.markValue(v)
					markedNew = true
				}
			}
		} else if !keep {
			kw[ki+1+s] = value.Dead
			vw[vi+1+s] = value.Nil
			removed++
		}
	}
	if removeEntries && removed > 0 {
		count := uint64(words[hi+1+htSlots+htExtraCount])
		tombs := uint64(words[hi+1+htSlots+htExtraTombs])
		words[hi+1+htSlots+htExtraCount] = value.Value(count - removed)
		words[hi+1+htSlots+htExtraTombs] = value.Value(tombs + removed)
	}
	return markedNew
}

// markWeakTables runs entry retention to a fixpoint, then purges what
// died. Marking one table's entry can make another table's anchor live,
// so single passes are not enough.
func (h *Heap) markWeakTables() {
	for changed := true; changed; {
		changed = false
		for _, tbl := range h.weakTables {
			if h.sweepWeakTable(tbl, false) {
				changed = true
			}
		}
	}
	for _, tbl := range h.weakTables {
		h.sweepWeakTable(tbl, true)
	}
	h.weakTables = h.weakTables[:0]
}
