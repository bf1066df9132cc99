package heap

import (
	"time"

	"github.com/joshuapare/heapkit/heap/value"
)

// KindStats is one row of a Report: occupancy of a single storage kind as
// of the most recent sweep. The vector-slot and string-byte rows count
// words and bytes rather than objects; ObjectBytes is the unit size.
type KindStats struct {
	Kind        string
	ObjectBytes int64
	Live        int64
	Free        int64
}

// Report is a point-in-time picture of the heap. Collect returns one per
// cycle; Stats builds one on demand without collecting.
type Report struct {
	Collections  int64         // completed cycles
	Elapsed      time.Duration // total time spent collecting
	HeapBytes    int64         // mapped object block bytes
	PayloadBytes int64         // mapped string payload bytes
	LiveBytes    int64         // live object bytes at the last sweep
	BytesSinceGC int64         // allocation since the last cycle
	NextGCBytes  int64         // allowance before the trigger fires
	MemoryFull   bool
	PureUsed     int
	PureFree     int
	PureOverflow bool
	Kinds        []KindStats
}

func (h *Heap) report() Report {
	_, payload, _ := h.strs.Stats()
	lisp, data := h.pure.used()
	pureFree := 0
	for _, r := range h.pure.regions {
		pureFree += r.gap()
	}
	s := &h.stat
	return Report{
		Collections:  h.gcsDone,
		Elapsed:      h.gcElapsed,
		HeapBytes:    h.heapBytes,
		PayloadBytes: payload,
		LiveBytes:    h.lastLiveBytes,
		BytesSinceGC: h.bytesSinceGC,
		NextGCBytes:  h.bytesBetweenGC,
		MemoryFull:   h.memoryFull,
		PureUsed:     lisp + data,
		PureFree:     pureFree,
		PureOverflow: h.pure.overflowed,
		Kinds: []KindStats{
			{"pair", pairSize, s.livePairs, s.freePairs},
			{"symbol", symbolSize, s.liveSymbols, s.freeSymbols},
			{"string", stringSize, s.liveStrings, s.freeStrings},
			{"string-byte", 1, s.liveStringBytes, 0},
			{"vector", wordBytes, s.liveVectors, 0},
			{"vector-slot", wordBytes, s.liveVectorWords, s.freeVectorWords},
			{"float", floatSize, s.liveFloats, s.freeFloats},
			{"interval", intervalSize, s.liveIntervals, s.freeIntervals},
		},
	}
}

// Stats returns the current heap picture without collecting.
func (h *Heap) Stats() Report { return h.report() }

// Counts are the monotonically increasing allocation totals. Sweeps never
// decrement them.
type Counts struct {
	Pairs       int64
	Floats      int64
	VectorCells int64
	Symbols     int64
	StringChars int64
	Intervals   int64
	Strings     int64
}

// UseCounts reports how much of each kind has ever been allocated.
func (h *Heap) UseCounts() Counts {
	return Counts{
		Pairs:       h.pairsConsed,
		Floats:      h.floatsMade,
		VectorCells: h.vectorCellsMade,
		Symbols:     h.symbolsMade,
		StringChars: h.stringCharsMade,
		Intervals:   h.intervalsMade,
		Strings:     h.stringsMade,
	}
}

// WhichSymbols returns up to limit symbols whose value, function, property
// or binding cell holds obj. Debugging helper; costs a full pool walk.
func (h *Heap) WhichSymbols(obj value.Value, limit int) []value.Value {
	var found []value.Value
	if limit <= 0 {
		return found
	}
	lim := h.symIndex
	for b := h.symBlock; b != nil; b = b.next {
		for i := 0; i < lim; i++ {
			c := &b.cells[i]
			if c.fn == value.Dead {
				continue
			}
			hit := c.fn == obj || c.plist == obj
			switch c.binding {
			case BindPlain, BindAlias:
				hit = hit || c.val == obj
			case BindBoxed:
				if c.box != nil {
					hit = hit || c.box.where == obj ||
						c.box.valcell == obj || c.box.defcell == obj
				}
			}
			if hit {
				found = append(found, value.FromAddr(value.TagSymbol, b.base+uint64(i)*symbolSize))
				if len(found) == limit {
					return found
				}
			}
		}
		lim = blockSymbols
	}
	return found
}
