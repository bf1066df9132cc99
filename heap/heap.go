package heap

import (
	"container/list"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/strdata"
	"github.com/joshuapare/heapkit/heap/value"
)

// logGC enables collector tracing to stderr when HEAPKIT_LOG_GC is set.
var logGC = os.Getenv("HEAPKIT_LOG_GC") != ""

func debugLogf(format string, args ...any) {
	if logGC {
		fmt.Fprintf(os.Stderr, "[GC] "+format+"\n", args...)
	}
}

// fatalf aborts on heap corruption. Corruption is never recoverable; the
// panic message always carries the "heap: corrupted" prefix so embedders
// can tell it apart from their own failures.
func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("heap: corrupted: "+format, args...))
}

// Virtual address space layout. Addresses are minted monotonically and
// never reused, so a stale word can never alias a younger object.
const (
	wordBytes = 8

	// pool blocks for pairs, floats, symbols, intervals and string
	// headers; sized and aligned so a cell address maps back to its
	// block with a mask.
	blockBytes = 1 << 10

	// vector blocks carve variable-sized records from a larger span.
	vblockBytes = 4 << 10
	vblockWords = vblockBytes / wordBytes

	// pureBase..heapBase is reserved for pure storage regions.
	pureBase = uint64(1) << 16
	heapBase = uint64(1) << 32
)

// Tunables. Collection triggers when allocation since the last cycle
// exceeds max(threshold, percentage * live bytes).
const (
	DefaultGCThreshold  = 100_000 * wordBytes
	DefaultGCPercentage = 0.1
	DefaultPureBytes    = 256 << 10

	// Thresholds below this are clamped up; a tiny threshold would make
	// every allocation a collection.
	MinGCThreshold = DefaultGCThreshold >> 3
)

// Config parameterizes a new heap. The zero value gives a heap with
// default trigger tuning, default pure storage and no budget.
type Config struct {
	// PureBytes sizes the pure storage region. 0 means DefaultPureBytes.
	PureBytes int

	// MaxHeapBytes caps mapped block storage. 0 means unlimited.
	// Exceeding the cap fails the allocation with ErrMemoryFull and
	// raises the memory-full flag; it never aborts.
	MaxHeapBytes int64

	// GCThreshold and GCPercentage seed the collection trigger. Zero
	// values take the defaults.
	GCThreshold  int64
	GCPercentage float64

	// CallFunc invokes a function object on behalf of the heap; the
	// finalizer runner uses it. A nil CallFunc discards finalizer
	// functions without calling them.
	CallFunc func(fn value.Value) error

	// OnPostGC runs after every collection with that cycle's report.
	// Collection is still inhibited while it runs, so it may allocate
	// but never triggers a nested cycle.
	OnPostGC func(Report)
}

// WordRoots feeds ambiguous root words to the collector. The heap calls
// each registered source during the mark phase; the source passes every
// word that might be a reference to emit. A source standing in for a VM
// stack must cover all of it, spilled temporaries included.
type WordRoots func(emit func(word uint64))

// Heap owns all object storage for one runtime instance. All methods must
// be called from the mutator thread; the heap performs no internal
// locking, matching the stop-the-world contract of the collector.
type Heap struct {
	cfg Config

	index *memindex.Index
	strs  *strdata.Manager

	nextVaddr uint64
	heapBytes int64 // mapped block bytes, for the budget

	// Pair pool. pairBlock is the block being filled, pairIndex its fill
	// cursor, pairFree the head of the free-cell chain (0 = empty).
	pairBlocks map[uint64]*pairBlock
	pairBlock  *pairBlock
	pairIndex  int
	pairFree   uint64

	floatBlocks map[uint64]*floatBlock
	floatBlock  *floatBlock
	floatIndex  int
	floatFree   uint64

	symBlocks map[uint64]*symbolBlock
	symBlock  *symbolBlock
	symIndex  int
	symFree   uint64

	intBlocks map[uint64]*intervalBlock
	intBlock  *intervalBlock
	intIndex  int
	intFree   uint64

	// The string pool runs on its free chain alone; newStringBlock chains
	// every fresh cell up front.
	strBlocks map[uint64]*stringBlock
	strBlock  *stringBlock
	strFree   uint64

	// Vector storage: blocks for small records, a list for large ones,
	// and per-size free region chains indexed by total word count.
	vecBlocks map[uint64]*vectorBlock
	vecChain  *vectorBlock
	vecFree   [vblockWords + 1]uint64
	largeVecs map[uint64]*largeVector
	largeHead *largeVector
	zeroVec   value.Value

	// Side state for record kinds whose payload is not made of slots.
	bignums  map[uint64]*big.Int
	userdata map[uint64]*userData

	// Finalizers: live ones wait for their object to die, doomed ones
	// wait for RunFinalizers. finElems maps record address to its list
	// entry for O(1) unchaining.
	finLive   *list.List
	finDoomed *list.List
	finElems  map[uint64]*finEntry

	// Weak tables discovered during the current mark phase.
	weakTables []value.Value

	roots     []*value.Value
	wordRoots []WordRoots

	pure       *pureArena
	pureTable  map[value.Value]value.Value
	pureSealed bool
	pinnedObjs []value.Value
	pinnedSyms []value.Value

	inhibit    int
	inGC       bool
	memoryFull bool

	bytesSinceGC   int64
	bytesBetweenGC int64
	threshold      int64
	percentage     float64
	lastLiveBytes  int64

	mst markStack

	stat sweepStats

	// Monotonic allocation counters, never reset.
	pairsConsed     int64
	floatsMade      int64
	vectorCellsMade int64
	symbolsMade     int64
	stringCharsMade int64
	intervalsMade   int64
	stringsMade     int64

	gcsDone   int64
	gcElapsed time.Duration
}

// New builds an empty heap.
func New(cfg Config) (*Heap, error) {
	if cfg.PureBytes == 0 {
		cfg.PureBytes = DefaultPureBytes
	}
	if cfg.GCThreshold == 0 {
		cfg.GCThreshold = DefaultGCThreshold
	}
	if cfg.GCPercentage == 0 {
		cfg.GCPercentage = DefaultGCPercentage
	}

	h := &Heap{
		cfg:   cfg,
		index: memindex.New(),
		strs:  strdata.NewManager(),

		nextVaddr: heapBase,

		pairBlocks:  map[uint64]*pairBlock{},
		floatBlocks: map[uint64]*floatBlock{},
		symBlocks:   map[uint64]*symbolBlock{},
		intBlocks:   map[uint64]*intervalBlock{},
		strBlocks:   map[uint64]*stringBlock{},
		vecBlocks:   map[uint64]*vectorBlock{},
		largeVecs:   map[uint64]*largeVector{},

		bignums:  map[uint64]*big.Int{},
		userdata: map[uint64]*userData{},

		finLive:   list.New(),
		finDoomed: list.New(),
		finElems:  map[uint64]*finEntry{},

		pureTable: map[value.Value]value.Value{},

		threshold:  cfg.GCThreshold,
		percentage: cfg.GCPercentage,
	}
	if h.threshold < MinGCThreshold {
		h.threshold = MinGCThreshold
	}
	h.updateBytesBetweenGC()

	pure, err := newPureArena(cfg.PureBytes)
	if err != nil {
		return nil, err
	}
	h.pure = pure

	// The canonical zero-length vector lives in pure storage so every
	// empty vector shares one record forever.
	zv, err := h.pureAllocVector(VecPlain, nil, 0)
	if err != nil {
		return nil, err
	}
	h.zeroVec = zv

	return h, nil
}

// reserveRange carves n bytes of fresh virtual address space aligned to
// align, which must be a power of two.
func (h *Heap) reserveRange(n, align uint64) uint64 {
	base := (h.nextVaddr + align - 1) &^ (align - 1)
	h.nextVaddr = base + n
	return base
}

// chargeBlock checks the budget before mapping another block.
func (h *Heap) chargeBlock(n int) error {
	if h.cfg.MaxHeapBytes > 0 && h.heapBytes+int64(n) > h.cfg.MaxHeapBytes {
		h.memoryFull = true
		debugLogf("memory full: %d mapped, %d requested, %d budget",
			h.heapBytes, n, h.cfg.MaxHeapBytes)
		return ErrMemoryFull
	}
	h.heapBytes += int64(n)
	return nil
}

func (h *Heap) uncharge(n int) { h.heapBytes -= int64(n) }

// tally records n freshly allocated bytes toward the collection trigger.
func (h *Heap) tally(n int64) { h.bytesSinceGC += n }

// MemoryFull reports whether an allocation has failed for lack of memory
// since the last collection that freed whole blocks.
func (h *Heap) MemoryFull() bool { return h.memoryFull }

// InhibitCollection suppresses collection until the returned release
// function runs. Calls nest; each release undoes one call and is
// idempotent.
func (h *Heap) InhibitCollection() func() {
	h.inhibit++
	released := false
	return func() {
		if !released {
			released = true
			h.inhibit--
		}
	}
}

// SetThreshold adjusts the byte threshold of the collection trigger.
// Values below MinGCThreshold are clamped up to it.
func (h *Heap) SetThreshold(n int64) {
	if n < MinGCThreshold {
		n = MinGCThreshold
	}
	h.threshold = n
	h.updateBytesBetweenGC()
}

// SetPercentage adjusts the live-heap fraction of the collection trigger.
func (h *Heap) SetPercentage(p float64) {
	if p < 0 {
		p = 0
	}
	h.percentage = p
	h.updateBytesBetweenGC()
}

// updateBytesBetweenGC recomputes the allocation allowance until the next
// collection from the most recent live-byte measurement.
func (h *Heap) updateBytesBetweenGC() {
	byPct := int64(h.percentage * float64(h.lastLiveBytes))
	if byPct > h.threshold {
		h.bytesBetweenGC = byPct
	} else {
		h.bytesBetweenGC = h.threshold
	}
}
